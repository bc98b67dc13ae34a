package coffre

import "errors"

var (
	// ErrUnauthenticated is returned when a route requires a caller identity
	// and none could be resolved.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the caller is authenticated but does not
	// own the record for an owner-gated operation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned when a file id or resource name resolves to nothing.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned when request fields fail schema validation.
	ErrValidation = errors.New("validation failed")
	// ErrContentPolicy is returned when uploaded bytes do not match the
	// declared type or are not accepted by the target resource.
	ErrContentPolicy = errors.New("content policy violation")
	// ErrUpstream is returned when the metadata or identity service is
	// unreachable or misbehaving. Upstream detail is never surfaced.
	ErrUpstream = errors.New("upstream service failure")
	// ErrStorageInconsistency is returned when metadata and blob storage
	// disagree, e.g. a record whose blob is missing.
	ErrStorageInconsistency = errors.New("storage inconsistency")
	// ErrInvalidInput is returned on malformed input that never reached
	// schema validation, such as an unparsable patch body.
	ErrInvalidInput = errors.New("invalid input")
)
