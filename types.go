package coffre

import (
	"fmt"
	"slices"
	"time"
)

// Visibility classifies who may access a file and which operations
// require ownership.
type Visibility string

const (
	// VisibilityPublic files are readable by anyone, including anonymous callers.
	VisibilityPublic Visibility = "public"
	// VisibilityUnlisted files are readable by anyone holding the file id.
	VisibilityUnlisted Visibility = "unlisted"
	// VisibilityPrivate files are readable only by their owner.
	VisibilityPrivate Visibility = "private"
	// VisibilityApplication files belong to the application rather than a user.
	VisibilityApplication Visibility = "application"
)

func (v Visibility) IsValid() bool {
	switch v {
	case VisibilityPublic, VisibilityUnlisted, VisibilityPrivate, VisibilityApplication:
		return true
	default:
		return false
	}
}

func ParseVisibility(s string) (Visibility, error) {
	v := Visibility(s)
	if !v.IsValid() {
		return "", fmt.Errorf("invalid visibility: %s (valid values: public, unlisted, private, application)", s)
	}
	return v, nil
}

// Identity is a caller resolved from a session token. It is rebuilt on
// every request and never persisted.
type Identity struct {
	ID        string `json:"id"`
	ProfileID string `json:"profileId"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`

	// AuthToken is the opaque credential the identity was resolved from.
	// It is forwarded on metadata calls made on the caller's behalf.
	AuthToken string `json:"-"`
}

// Resource is a named upload destination. Its accepted MIME type set is
// the sole authority for what may be uploaded to it.
type Resource struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	AcceptMIMETypes []string `json:"acceptMimeTypes"`
}

// Accepts reports whether the resource admits the given MIME type.
func (r Resource) Accepts(mimeType string) bool {
	return slices.Contains(r.AcceptMIMETypes, mimeType)
}

// FileRecord is the metadata entry for one stored blob.
type FileRecord struct {
	ID           string     `json:"id"`
	OriginalName string     `json:"originalName"`
	StoredName   string     `json:"name"`
	Size         int64      `json:"size"`
	MIMEType     string     `json:"mimeType"`
	Visibility   Visibility `json:"visibility"`
	Category     string     `json:"category,omitempty"`
	Owner        string     `json:"owner"`
	SharedWith   []string   `json:"sharedWith,omitempty"`
	ResourceID   string     `json:"resource"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// NewFileRecord describes a record to be created in the metadata store.
type NewFileRecord struct {
	OriginalName string
	StoredName   string
	Size         int64
	MIMEType     string
	Visibility   Visibility
	Owner        string
	SharedWith   []string
	ResourceID   string
	CreatedAt    time.Time
}

// FilePatch carries the mutable fields of a file record. Only category and
// visibility may change after creation; everything else is fixed at upload.
type FilePatch struct {
	Category   *string     `json:"category,omitempty"`
	Visibility *Visibility `json:"visibility,omitempty"`
}

// OwnerRequiredSet is the set of visibilities for which an operation
// demands that the caller owns the record.
type OwnerRequiredSet []Visibility

// Requires reports whether records with visibility v need an owner check.
func (s OwnerRequiredSet) Requires(v Visibility) bool {
	return slices.Contains(s, v)
}

// Per-operation ownership policies. Reads are permissive: only private
// records are gated. Mutation and deletion always require the owner.
var (
	ReadPolicy   = OwnerRequiredSet{VisibilityPrivate}
	MutatePolicy = OwnerRequiredSet{VisibilityPublic, VisibilityUnlisted, VisibilityPrivate, VisibilityApplication}
	DeletePolicy = OwnerRequiredSet{VisibilityPublic, VisibilityUnlisted, VisibilityPrivate, VisibilityApplication}
)

// Authorize applies the policy to one record and caller. A nil caller is
// anonymous. Decisions are computed fresh on every call; nothing is cached.
func (s OwnerRequiredSet) Authorize(rec FileRecord, caller *Identity) error {
	if !s.Requires(rec.Visibility) {
		return nil
	}
	if caller == nil {
		return ErrUnauthenticated
	}
	if caller.ProfileID != rec.Owner {
		return ErrForbidden
	}
	return nil
}

// UploadRequest bundles everything the orchestrator needs to admit one
// upload: validated form fields, the resolved resource, and the name the
// blob will be stored under.
type UploadRequest struct {
	Resource     Resource
	Caller       Identity
	OriginalName string
	StoredName   string
	Size         int64
	DeclaredType string
	Visibility   Visibility
	SharedWith   []string
}
