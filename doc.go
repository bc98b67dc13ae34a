// Package coffre implements an authenticated file-upload/download gateway.
//
// Applications upload user files into named resources (logical folders),
// each with its own allow-list of content types. Coffre authenticates the
// caller against an external identity/metadata service, validates the
// request fields against a declarative schema, verifies the uploaded bytes
// really are what they claim to be, and only then persists the blob
// locally and the record remotely.
//
// # Key Components
//
//   - FileService: the lifecycle orchestrator for upload, fetch, info,
//     update, and delete
//   - MetadataStore: interface to the external system of record
//     (identities, resources, file records)
//   - BlobStorage: interface for local blob persistence (filesystem)
//   - OwnerRequiredSet: per-operation ownership policies over the
//     visibility enum
//
// # Trust Model
//
// Client-declared content types and file extensions are treated as
// attacker-controlled. A file's effective MIME type is always the sniffed
// one; a mismatch with the declaration rejects the upload and is logged as
// a suspicious event. Ownership and visibility decisions are computed
// fresh on every request.
//
// See the http package for the REST API, the metastore package for the
// remote store client, and the schema and sniff packages for the
// validation building blocks.
package coffre
