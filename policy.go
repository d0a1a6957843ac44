package span

// LoadPolicy controls how strictly a request body is validated and
// transformed before the handler sees it.
type LoadPolicy int

const (
	// LoadValidateAndLoad validates the decoded body against the request
	// schema and constructs the target object. The default.
	LoadValidateAndLoad LoadPolicy = iota
	// LoadValidateOnly validates the decoded body but hands the handler the
	// decoded (untransformed) value.
	LoadValidateOnly
	// LoadIgnore skips the schema entirely; the handler gets the decoded
	// value as-is.
	LoadIgnore
)

func (p LoadPolicy) String() string {
	switch p {
	case LoadValidateAndLoad:
		return "VALIDATE_AND_LOAD"
	case LoadValidateOnly:
		return "VALIDATE_ONLY"
	case LoadIgnore:
		return "IGNORE"
	default:
		return "UNKNOWN"
	}
}

// DumpPolicy controls how handler-provided response media is serialized
// and validated on the way out.
type DumpPolicy int

const (
	// DumpOnly serializes via the response schema without validating the
	// result. The default.
	DumpOnly DumpPolicy = iota
	// DumpAndValidate serializes, then validates the dumped representation.
	DumpAndValidate
	// DumpValidateOnly validates the handler-provided value as-is, without
	// transformation.
	DumpValidateOnly
	// DumpIgnore passes the value through untouched, including pre-encoded
	// BSON documents. The escape hatch for pre-serialized payloads.
	DumpIgnore
)

func (p DumpPolicy) String() string {
	switch p {
	case DumpOnly:
		return "DUMP_ONLY"
	case DumpAndValidate:
		return "DUMP_AND_VALIDATE"
	case DumpValidateOnly:
		return "VALIDATE_ONLY"
	case DumpIgnore:
		return "IGNORE"
	default:
		return "UNKNOWN"
	}
}
