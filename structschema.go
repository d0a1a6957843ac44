package span

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
)

// RuleFunc is a custom per-field validation rule. It receives the decoded
// field value and returns a non-nil error to reject it.
type RuleFunc func(value any) error

// StructSchema is a reflection-backed Schema over a struct type. Field
// names come from json tags; validation rules come from constraint tags
// (minLength, maxLength, pattern, minimum, maximum, enum, minItems,
// maxItems, required) and registered RuleFuncs.
type StructSchema struct {
	typ    reflect.Type
	fields []schemaField // visible fields, in declaration order
	many   bool
	rules  map[string][]RuleFunc
}

type schemaField struct {
	name     string // wire name from the json tag
	goName   string
	typ      reflect.Type
	required bool
	tag      reflect.StructTag
}

// SchemaOption configures a StructSchema at construction.
type SchemaOption func(*schemaConfig)

type schemaConfig struct {
	many    bool
	only    []string
	exclude []string
	rules   map[string][]RuleFunc
}

// Many puts the schema in sequence mode: values are ordered lists of
// records, loaded and validated element-wise.
func Many() SchemaOption {
	return func(c *schemaConfig) { c.many = true }
}

// Only restricts the schema to the named fields.
func Only(fields ...string) SchemaOption {
	return func(c *schemaConfig) { c.only = append(c.only, fields...) }
}

// Exclude removes the named fields from the schema.
func Exclude(fields ...string) SchemaOption {
	return func(c *schemaConfig) { c.exclude = append(c.exclude, fields...) }
}

// WithRule registers a custom validation rule for a field (by wire name).
func WithRule(field string, fn RuleFunc) SchemaOption {
	return func(c *schemaConfig) {
		if c.rules == nil {
			c.rules = make(map[string][]RuleFunc)
		}
		c.rules[field] = append(c.rules[field], fn)
	}
}

// SchemaOf builds a StructSchema for T. It panics on configuration errors
// (non-struct T, unknown field names, only combined with exclude) — schemas
// are built at route-registration time, not per request.
func SchemaOf[T any](opts ...SchemaOption) *StructSchema {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("span: SchemaOf requires a struct type, got %s", t))
	}

	var cfg schemaConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.only) > 0 && len(cfg.exclude) > 0 {
		panic("span: schema only and exclude are mutually exclusive")
	}

	s := &StructSchema{
		typ:   t,
		many:  cfg.many,
		rules: cfg.rules,
	}

	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := jsonFieldName(f)
		if name == "-" {
			continue
		}
		s.fields = append(s.fields, schemaField{
			name:     name,
			goName:   f.Name,
			typ:      f.Type,
			required: f.Tag.Get("required") == "true",
			tag:      f.Tag,
		})
	}

	restricted, err := s.Restrict(cfg.only, cfg.exclude)
	if err != nil {
		panic("span: " + err.Error())
	}
	return restricted.(*StructSchema)
}

// Many reports whether the schema operates on sequences.
func (s *StructSchema) Many() bool { return s.many }

// Fields returns the visible field names in declaration order.
func (s *StructSchema) Fields() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.name
	}
	return names
}

// Restrict derives a narrowed copy of the schema.
func (s *StructSchema) Restrict(only, exclude []string) (Schema, error) {
	visible := make(map[string]bool, len(s.fields))
	for _, f := range s.fields {
		visible[f.name] = true
	}

	keep := visible
	if len(only) > 0 {
		keep = make(map[string]bool, len(only))
		for _, name := range only {
			if !visible[name] {
				return nil, fmt.Errorf("schema has no field %q", name)
			}
			keep[name] = true
		}
	}
	for _, name := range exclude {
		if !visible[name] {
			return nil, fmt.Errorf("schema has no field %q", name)
		}
		delete(keep, name)
	}

	out := &StructSchema{typ: s.typ, many: s.many, rules: s.rules}
	for _, f := range s.fields {
		if keep[f.name] {
			out.fields = append(out.fields, f)
		}
	}
	return out, nil
}

// Validate checks a decoded value against field types, constraint tags, and
// custom rules. In many mode the value must be a sequence; element errors
// are prefixed with the element index and any failure fails the whole value.
func (s *StructSchema) Validate(data any) []FieldError {
	if s.many {
		items, ok := asList(data)
		if !ok {
			return []FieldError{{Message: fmt.Sprintf("expected a list, got %T", data)}}
		}
		var errs []FieldError
		for i, item := range items {
			for _, fe := range s.validateOne(item) {
				fe.Field = fmt.Sprintf("[%d].%s", i, fe.Field)
				errs = append(errs, fe)
			}
		}
		return errs
	}
	return s.validateOne(data)
}

func (s *StructSchema) validateOne(data any) []FieldError {
	m, ok := asMap(data)
	if !ok {
		return []FieldError{{Message: fmt.Sprintf("expected an object, got %T", data)}}
	}

	var errs []FieldError

	known := make(map[string]bool, len(s.fields))
	for _, f := range s.fields {
		known[f.name] = true
	}
	for key := range m {
		if !known[key] {
			errs = append(errs, FieldError{Field: key, Message: "unknown field"})
		}
	}

	for _, f := range s.fields {
		value, present := m[f.name]
		if !present {
			if f.required {
				errs = append(errs, FieldError{Field: f.name, Message: "missing required field"})
			}
			continue
		}

		if fe := checkFieldType(f, value); fe != nil {
			errs = append(errs, *fe)
			continue
		}
		errs = append(errs, checkConstraintTags(f, value)...)

		for _, rule := range s.rules[f.name] {
			if err := rule(value); err != nil {
				errs = append(errs, FieldError{Field: f.name, Message: err.Error(), Value: value})
			}
		}
	}

	return errs
}

// Load validates data and constructs the target struct (or slice of
// structs in many mode).
func (s *StructSchema) Load(data any) (any, error) {
	if errs := s.Validate(data); len(errs) > 0 {
		return nil, &SchemaError{Errors: errs}
	}

	if s.many {
		items, _ := asList(data)
		out := reflect.MakeSlice(reflect.SliceOf(s.typ), 0, len(items))
		for i, item := range items {
			v, err := s.loadOne(item)
			if err != nil {
				return nil, &SchemaError{Errors: []FieldError{{
					Field:   fmt.Sprintf("[%d]", i),
					Message: err.Error(),
				}}}
			}
			out = reflect.Append(out, reflect.ValueOf(v))
		}
		return out.Interface(), nil
	}

	v, err := s.loadOne(data)
	if err != nil {
		return nil, &SchemaError{Errors: []FieldError{{Message: err.Error()}}}
	}
	return v, nil
}

func (s *StructSchema) loadOne(data any) (any, error) {
	target := reflect.New(s.typ)

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target.Interface(),
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			decodeUUIDHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(data); err != nil {
		return nil, err
	}
	return target.Elem().Interface(), nil
}

// Dump serializes a struct, map, or (in many mode) a sequence of either to
// a primitive representation: maps with wire names as keys, UUIDs and
// times rendered as strings. Fields outside the visible set are dropped.
func (s *StructSchema) Dump(v any) (any, error) {
	if s.many {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice {
			return nil, fmt.Errorf("schema: expected a slice to dump, got %T", v)
		}
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			d, err := s.dumpOne(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	}
	return s.dumpOne(v)
}

func (s *StructSchema) dumpOne(v any) (any, error) {
	if m, ok := asMap(v); ok {
		out := make(map[string]any, len(s.fields))
		for _, f := range s.fields {
			value, present := m[f.name]
			if !present {
				continue
			}
			dumped, err := dumpValue(value)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.name, err)
			}
			out[f.name] = dumped
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("schema: cannot dump nil")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: cannot dump %T", v)
	}

	out := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		fv := rv.FieldByName(f.goName)
		if !fv.IsValid() {
			continue
		}
		dumped, err := dumpValue(fv.Interface())
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.name, err)
		}
		out[f.name] = dumped
	}
	return out, nil
}

// dumpValue converts a single value to its primitive wire shape.
func dumpValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case uuid.UUID:
		return val.String(), nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return val, nil
	}

	rv := reflect.ValueOf(v)
	//exhaustive:ignore
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			d, err := dumpValue(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("cannot serialize map with %s keys", rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		for _, key := range rv.MapKeys() {
			d, err := dumpValue(rv.MapIndex(key).Interface())
			if err != nil {
				return nil, err
			}
			out[key.String()] = d
		}
		return out, nil
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		t := rv.Type()
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := jsonFieldName(f)
			if name == "-" {
				continue
			}
			d, err := dumpValue(rv.Field(i).Interface())
			if err != nil {
				return nil, err
			}
			out[name] = d
		}
		return out, nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return dumpValue(rv.Elem().Interface())
	default:
		return nil, fmt.Errorf("cannot serialize %T", v)
	}
}

// checkFieldType verifies that a decoded value can populate the field.
func checkFieldType(f schemaField, value any) *FieldError {
	if value == nil {
		return nil
	}

	ft := f.typ
	if ft.Kind() == reflect.Pointer {
		ft = ft.Elem()
	}

	switch ft {
	case reflect.TypeFor[uuid.UUID]():
		switch val := value.(type) {
		case uuid.UUID:
			return nil
		case string:
			if _, err := uuid.Parse(val); err != nil {
				return &FieldError{Field: f.name, Message: "not a valid UUID", Value: val}
			}
			return nil
		default:
			return &FieldError{Field: f.name, Message: "not a valid UUID", Value: value}
		}
	case reflect.TypeFor[time.Time]():
		switch val := value.(type) {
		case time.Time:
			return nil
		case string:
			if _, err := time.Parse(time.RFC3339, val); err != nil {
				return &FieldError{Field: f.name, Message: "not a valid RFC 3339 timestamp", Value: val}
			}
			return nil
		default:
			return &FieldError{Field: f.name, Message: "not a valid timestamp", Value: value}
		}
	}

	//exhaustive:ignore
	switch ft.Kind() {
	case reflect.String:
		if _, ok := value.(string); !ok {
			return &FieldError{Field: f.name, Message: "expected a string", Value: value}
		}
	case reflect.Bool:
		if _, ok := value.(bool); !ok {
			return &FieldError{Field: f.name, Message: "expected a boolean", Value: value}
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := asNumber(value)
		if !ok || n != float64(int64(n)) {
			return &FieldError{Field: f.name, Message: "expected an integer", Value: value}
		}
	case reflect.Float32, reflect.Float64:
		if _, ok := asNumber(value); !ok {
			return &FieldError{Field: f.name, Message: "expected a number", Value: value}
		}
	case reflect.Slice, reflect.Array:
		if _, ok := asList(value); !ok {
			return &FieldError{Field: f.name, Message: "expected a list", Value: value}
		}
	case reflect.Map, reflect.Struct:
		if _, ok := asMap(value); !ok {
			return &FieldError{Field: f.name, Message: "expected an object", Value: value}
		}
	}
	return nil
}

// checkConstraintTags applies the struct-tag rule set to a decoded value.
func checkConstraintTags(f schemaField, value any) []FieldError {
	var errs []FieldError

	if val, ok := value.(string); ok {
		if tag := f.tag.Get("minLength"); tag != "" {
			if n, err := strconv.Atoi(tag); err == nil && len(val) < n {
				errs = append(errs, FieldError{
					Field:   f.name,
					Message: fmt.Sprintf("must be at least %d characters", n),
					Value:   val,
				})
			}
		}
		if tag := f.tag.Get("maxLength"); tag != "" {
			if n, err := strconv.Atoi(tag); err == nil && len(val) > n {
				errs = append(errs, FieldError{
					Field:   f.name,
					Message: fmt.Sprintf("must be at most %d characters", n),
					Value:   val,
				})
			}
		}
		if tag := f.tag.Get("pattern"); tag != "" {
			if matched, err := regexp.MatchString(tag, val); err == nil && !matched {
				errs = append(errs, FieldError{
					Field:   f.name,
					Message: fmt.Sprintf("must match pattern %s", tag),
					Value:   val,
				})
			}
		}
		if tag := f.tag.Get("enum"); tag != "" {
			allowed := strings.Split(tag, ",")
			found := false
			for _, a := range allowed {
				if a == val {
					found = true
					break
				}
			}
			if !found {
				errs = append(errs, FieldError{
					Field:   f.name,
					Message: fmt.Sprintf("must be one of [%s]", tag),
					Value:   val,
				})
			}
		}
	}

	if n, ok := asNumber(value); ok {
		if tag := f.tag.Get("minimum"); tag != "" {
			if lower, err := strconv.ParseFloat(tag, 64); err == nil && n < lower {
				errs = append(errs, FieldError{
					Field:   f.name,
					Message: fmt.Sprintf("must be at least %s", tag),
					Value:   n,
				})
			}
		}
		if tag := f.tag.Get("maximum"); tag != "" {
			if upper, err := strconv.ParseFloat(tag, 64); err == nil && n > upper {
				errs = append(errs, FieldError{
					Field:   f.name,
					Message: fmt.Sprintf("must be at most %s", tag),
					Value:   n,
				})
			}
		}
	}

	if items, ok := asList(value); ok {
		if tag := f.tag.Get("minItems"); tag != "" {
			if n, err := strconv.Atoi(tag); err == nil && len(items) < n {
				errs = append(errs, FieldError{
					Field:   f.name,
					Message: fmt.Sprintf("must have at least %d items", n),
					Value:   len(items),
				})
			}
		}
		if tag := f.tag.Get("maxItems"); tag != "" {
			if n, err := strconv.Atoi(tag); err == nil && len(items) > n {
				errs = append(errs, FieldError{
					Field:   f.name,
					Message: fmt.Sprintf("must have at most %d items", n),
					Value:   len(items),
				})
			}
		}
	}

	return errs
}

func decodeUUIDHook(from, to reflect.Type, data any) (any, error) {
	if to == reflect.TypeFor[uuid.UUID]() && from.Kind() == reflect.String {
		return uuid.Parse(data.(string))
	}
	return data, nil
}

// jsonFieldName returns the wire name for a struct field.
func jsonFieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

// asMap converts a decoded value to map[string]any when possible.
func asMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	m := make(map[string]any, rv.Len())
	for _, key := range rv.MapKeys() {
		m[key.String()] = rv.MapIndex(key).Interface()
	}
	return m, true
}

// asList converts a decoded value to []any when possible.
func asList(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range rv.Len() {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
