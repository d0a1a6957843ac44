// Command sample demonstrates the span media pipeline with an in-memory
// user API covering schemas, load/dump policies, projection, and paging.
//
// Run:
//
//	go run ./cmd/sample
//
// Then explore:
//
//	GET  http://localhost:8080/v1/health                       — health check
//	GET  http://localhost:8080/v1/users                        — paged list (paging-limit, paging-offset)
//	GET  http://localhost:8080/v1/users?project.name=1         — field projection
//	POST http://localhost:8080/v1/users                        — create user (schema-validated)
//	GET  http://localhost:8080/v1/users/{id}                   — get user (Accept: application/bson works too)
//	PUT  http://localhost:8080/v1/users/{id}                   — update user
//	DELETE http://localhost:8080/v1/users/{id}                 — delete user
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bjaus/span"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	r := newRouter(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	slog.Info("starting server", "addr", ":8080")

	if err := r.ListenAndServe(ctx, ":8080"); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "err", err)
	}

	slog.Info("server stopped")
}

// User is the wire shape of a stored user.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name" required:"true" minLength:"1" maxLength:"64"`
	Email     string    `json:"email" required:"true" pattern:"^[^@\\s]+@[^@\\s]+$"`
	Role      string    `json:"role" enum:"admin,member"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	userSchema     = span.SchemaOf[User]()
	userListSchema = span.SchemaOf[User](span.Many())
	createSchema   = span.SchemaOf[User](span.Exclude("id", "created_at"))
)

func newRouter(logger *slog.Logger) *span.Router {
	r := span.New()

	r.Use(span.Recovery())
	r.Use(span.RequestID())
	r.Use(span.Logger(logger))
	r.Use(span.RateLimit(span.RateLimitConfig{Rate: 50, Burst: 100}))
	r.Use(span.BodyLimit(1 << 20)) // 1 MB

	v1 := r.Group("/v1")

	span.Get(v1, "/health", handleHealth)

	span.Get(v1, "/users", handleListUsers,
		span.WithResponseSchema(userListSchema),
		span.WithPaging(50, span.WithDefaultLimit(10)),
	)
	span.Post(v1, "/users", handleCreateUser,
		span.WithStatus(http.StatusCreated),
		span.WithRequestSchema(createSchema),
		span.WithResponseSchema(userSchema),
	)
	span.Get(v1, "/users/{id}", handleGetUser,
		span.WithResponseSchema(userSchema),
	)
	span.Put(v1, "/users/{id}", handleUpdateUser,
		span.WithRequestSchema(createSchema),
		span.WithResponseSchema(userSchema),
		span.WithDumpPolicy(span.DumpAndValidate),
	)
	span.Delete(v1, "/users/{id}", handleDeleteUser,
		span.WithStatus(http.StatusNoContent),
	)

	return r
}

var errUserNotFound = span.NewErrorClass("UserNotFoundError", http.StatusNotFound, 2000)

func handleHealth(_ context.Context, _ *span.Request, resp *span.Response) error {
	resp.SetMedia(map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

func handleListUsers(_ context.Context, req *span.Request, resp *span.Response) error {
	pg, err := req.Paging()
	if err != nil {
		return err
	}

	users := store.list()

	out, err := resp.Paging()
	if err != nil {
		return err
	}
	out.TotalItems = len(users)

	lo := min(pg.Offset, len(users))
	hi := min(pg.Offset+pg.Limit, len(users))
	resp.SetMedia(users[lo:hi])
	return nil
}

func handleCreateUser(_ context.Context, req *span.Request, resp *span.Response) error {
	loaded, err := req.MediaLoaded()
	if err != nil {
		return err
	}
	u := loaded.(User)
	u.ID = uuid.New()
	u.CreatedAt = time.Now().UTC()
	if u.Role == "" {
		u.Role = "member"
	}
	store.put(u)

	resp.SetMedia(u)
	return nil
}

func handleGetUser(_ context.Context, req *span.Request, resp *span.Response) error {
	u, ok := store.get(req.PathValue("id"))
	if !ok {
		return errUserNotFound.Errorf("no user with id %q", req.PathValue("id"))
	}
	resp.SetMedia(u)
	return nil
}

func handleUpdateUser(_ context.Context, req *span.Request, resp *span.Response) error {
	existing, ok := store.get(req.PathValue("id"))
	if !ok {
		return errUserNotFound.Errorf("no user with id %q", req.PathValue("id"))
	}

	loaded, err := req.MediaLoaded()
	if err != nil {
		return err
	}
	update := loaded.(User)
	existing.Name = update.Name
	existing.Email = update.Email
	if update.Role != "" {
		existing.Role = update.Role
	}
	store.put(existing)

	resp.SetMedia(existing)
	return nil
}

func handleDeleteUser(_ context.Context, req *span.Request, _ *span.Response) error {
	if !store.delete(req.PathValue("id")) {
		return errUserNotFound.Errorf("no user with id %q", req.PathValue("id"))
	}
	return nil
}

// In-memory store
// ---------------------------------------------------------------------------

var store = &userStore{users: map[string]User{}}

type userStore struct {
	mu    sync.RWMutex
	users map[string]User
}

func (s *userStore) list() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *userStore) get(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *userStore) put(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID.String()] = u
}

func (s *userStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return false
	}
	delete(s.users, id)
	return true
}
