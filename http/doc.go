// Package http provides the REST API for coffre.
//
// Routes:
//
//	POST   /files/upload    - upload a file into a resource (auth required)
//	GET    /files/{id}      - download a file (visibility-gated)
//	GET    /files/{id}/info - file metadata (visibility-gated)
//	PATCH  /files/{id}      - update category/visibility (owner-gated)
//	DELETE /files/{id}      - delete a file (owner-gated)
//
// Every request passes the identity resolver exactly once; the resolved
// caller (or anonymous) rides the request context from there. Errors are
// JSON envelopes with a stable error code and a human-readable message.
package http
