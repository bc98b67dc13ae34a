package coffre

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// MetadataStore is the external system of record for identities, resources,
// and file records. It is reached over the network; implementations must
// map their own failure modes onto ErrNotFound, ErrValidation, and
// ErrUpstream so the service can stay transport-agnostic.
type MetadataStore interface {
	// UserByToken resolves a session token to an identity.
	// Returns ErrNotFound for a token the store does not recognize.
	UserByToken(ctx context.Context, token string) (Identity, error)

	// ResourceByName looks up a resource by exact name. When the store
	// holds several resources with the same name the first match wins.
	ResourceByName(ctx context.Context, name string) (Resource, error)

	// CreateFile creates a file record. Field-level rejections from the
	// store (e.g. an unknown sharedWith id) come back as ErrValidation.
	CreateFile(ctx context.Context, rec NewFileRecord) (FileRecord, error)

	// FileByID returns the record for the given id, or ErrNotFound.
	FileByID(ctx context.Context, id string) (FileRecord, error)

	// FileByStoredName returns the record referencing the given blob
	// name, or ErrNotFound. Used by orphan reclamation.
	FileByStoredName(ctx context.Context, storedName string) (FileRecord, error)

	// UpdateFile applies a patch to the record's mutable fields.
	UpdateFile(ctx context.Context, id string, patch FilePatch) (FileRecord, error)

	// DeleteFile removes the record and returns its stored blob name,
	// or ErrNotFound.
	DeleteFile(ctx context.Context, id string) (string, error)
}

// SaveResult reports the outcome of a blob write.
type SaveResult struct {
	BytesWritten int64
	Etag         string
}

// BlobInfo describes one blob in the store, for reclamation sweeps.
type BlobInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// BlobStorage holds file bytes under a flat namespace of stored names.
type BlobStorage interface {
	// Get opens a blob for reading. Returns ErrNotFound if absent.
	// The caller closes the returned reader.
	Get(ctx context.Context, name string) (io.ReadSeekCloser, error)

	// Write stores content under name. Names are unique by construction
	// (StoredName), so a write never clobbers another record's blob.
	Write(ctx context.Context, name string, content io.Reader) (SaveResult, error)

	// Delete removes a blob. Returns ErrNotFound if absent.
	Delete(ctx context.Context, name string) error

	// List enumerates every blob in the store.
	List(ctx context.Context) ([]BlobInfo, error)
}

// Sniffer determines a content type by inspecting bytes.
type Sniffer interface {
	// Detect reads from r and returns the detected MIME type without
	// parameters, e.g. "image/png".
	Detect(r io.Reader) (string, error)
}

// FileService orchestrates the upload, fetch, info, update, and delete
// pipelines over the metadata store and the blob store, keeping the two
// from diverging.
type FileService struct {
	meta           MetadataStore
	blobs          BlobStorage
	sniffer        Sniffer
	logger         *slog.Logger
	cleanupTimeout time.Duration

	readPolicy   OwnerRequiredSet
	mutatePolicy OwnerRequiredSet
	deletePolicy OwnerRequiredSet
}

// ServiceConfig holds configuration options for FileService.
type ServiceConfig struct {
	// ReadPolicy, MutatePolicy, DeletePolicy are the per-operation
	// owner-required sets. Zero values fall back to the package defaults.
	ReadPolicy   OwnerRequiredSet
	MutatePolicy OwnerRequiredSet
	DeletePolicy OwnerRequiredSet

	// CleanupTimeout bounds blob rollback after a failed metadata create
	// (default: 30s). Rollback runs on a background context because the
	// request context may already be cancelled.
	CleanupTimeout time.Duration

	// Logger for pipeline diagnostics (default: slog.Default()).
	Logger *slog.Logger
}

func NewFileService(meta MetadataStore, blobs BlobStorage, sniffer Sniffer, cfg ServiceConfig) (*FileService, error) {
	if meta == nil {
		return nil, errors.New("new file service: metadata store is required")
	}
	if blobs == nil {
		return nil, errors.New("new file service: blob storage is required")
	}
	if sniffer == nil {
		return nil, errors.New("new file service: sniffer is required")
	}

	if cfg.ReadPolicy == nil {
		cfg.ReadPolicy = ReadPolicy
	}
	if cfg.MutatePolicy == nil {
		cfg.MutatePolicy = MutatePolicy
	}
	if cfg.DeletePolicy == nil {
		cfg.DeletePolicy = DeletePolicy
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &FileService{
		meta:           meta,
		blobs:          blobs,
		sniffer:        sniffer,
		logger:         cfg.Logger,
		cleanupTimeout: cfg.CleanupTimeout,
		readPolicy:     cfg.ReadPolicy,
		mutatePolicy:   cfg.MutatePolicy,
		deletePolicy:   cfg.DeletePolicy,
	}, nil
}

// Upload admits one upload: writes the blob, sniffs its true content type,
// checks it against the declared type and the resource's accept set, and
// creates the metadata record. Any failure after the blob write deletes
// the blob again, so a rejected request leaves nothing behind.
func (s *FileService) Upload(ctx context.Context, req UploadRequest, content io.Reader) (FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return FileRecord{}, fmt.Errorf("upload: %w", err)
	}

	if !IsValidStoredName(req.StoredName) {
		return FileRecord{}, fmt.Errorf("upload: %w: invalid stored name %q", ErrInvalidInput, req.StoredName)
	}
	if !req.Visibility.IsValid() {
		return FileRecord{}, fmt.Errorf("upload: %w: invalid visibility %q", ErrInvalidInput, req.Visibility)
	}
	if len(req.Resource.AcceptMIMETypes) == 0 {
		return FileRecord{}, fmt.Errorf("upload: %w: resource %q accepts no content types", ErrInvalidInput, req.Resource.Name)
	}

	saved, err := s.blobs.Write(ctx, req.StoredName, content)
	if err != nil {
		return FileRecord{}, fmt.Errorf("upload %s: write blob: %w", req.StoredName, err)
	}

	sniffed, err := s.sniffBlob(ctx, req.StoredName)
	if err != nil {
		s.rollbackBlob(req.StoredName)
		return FileRecord{}, fmt.Errorf("upload %s: detect content type: %w", req.StoredName, err)
	}

	if sniffed != req.DeclaredType {
		s.rollbackBlob(req.StoredName)
		s.logger.Warn("rejected spoofed upload",
			"stored_name", req.StoredName,
			"declared_type", req.DeclaredType,
			"sniffed_type", sniffed,
			"owner", req.Caller.ProfileID,
		)
		return FileRecord{}, fmt.Errorf("upload %s: %w: content does not match declared type", req.StoredName, ErrContentPolicy)
	}

	if !req.Resource.Accepts(sniffed) {
		s.rollbackBlob(req.StoredName)
		s.logger.Warn("rejected upload of disallowed type",
			"stored_name", req.StoredName,
			"sniffed_type", sniffed,
			"resource", req.Resource.Name,
		)
		return FileRecord{}, fmt.Errorf("upload %s: %w: content type not allowed for this resource", req.StoredName, ErrContentPolicy)
	}

	// The sniffed type is the effective type from here on; the declared
	// one was only ever a claim.
	rec := NewFileRecord{
		OriginalName: req.OriginalName,
		StoredName:   req.StoredName,
		Size:         saved.BytesWritten,
		MIMEType:     sniffed,
		Visibility:   req.Visibility,
		Owner:        req.Caller.ProfileID,
		SharedWith:   req.SharedWith,
		ResourceID:   req.Resource.ID,
		CreatedAt:    time.Now().UTC(),
	}

	created, err := s.meta.CreateFile(ctx, rec)
	if err != nil {
		s.rollbackBlob(req.StoredName)
		return FileRecord{}, fmt.Errorf("upload %s: create record: %w", req.StoredName, err)
	}

	s.logger.Info("file uploaded",
		"id", created.ID,
		"resource", req.Resource.Name,
		"mime_type", created.MIMEType,
		"size", created.Size,
	)

	return created, nil
}

// sniffBlob reads the stored blob back and asks the sniffer for its type.
func (s *FileService) sniffBlob(ctx context.Context, name string) (string, error) {
	f, err := s.blobs.Get(ctx, name)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	return s.sniffer.Detect(f)
}

// rollbackBlob removes a blob written earlier in a request that has since
// failed. It runs on a background context; the request context may
// already be cancelled.
func (s *FileService) rollbackBlob(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cleanupTimeout)
	defer cancel()

	if err := s.blobs.Delete(ctx, name); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Error("blob rollback failed", "stored_name", name, "err", err)
	}
}

// Fetch resolves a record, authorizes the caller against the read policy,
// and opens its blob for streaming. The caller closes the reader.
func (s *FileService) Fetch(ctx context.Context, id string, caller *Identity) (FileRecord, io.ReadSeekCloser, error) {
	rec, err := s.authorize(ctx, id, caller, s.readPolicy)
	if err != nil {
		return FileRecord{}, nil, fmt.Errorf("fetch %s: %w", id, err)
	}

	f, err := s.blobs.Get(ctx, rec.StoredName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Error("record has no blob", "id", rec.ID, "stored_name", rec.StoredName)
			return FileRecord{}, nil, fmt.Errorf("fetch %s: %w: blob %s missing", id, ErrStorageInconsistency, rec.StoredName)
		}
		return FileRecord{}, nil, fmt.Errorf("fetch %s: %w", id, err)
	}

	return rec, f, nil
}

// Info resolves a record and authorizes the caller against the read policy.
func (s *FileService) Info(ctx context.Context, id string, caller *Identity) (FileRecord, error) {
	rec, err := s.authorize(ctx, id, caller, s.readPolicy)
	if err != nil {
		return FileRecord{}, fmt.Errorf("info %s: %w", id, err)
	}
	return rec, nil
}

// Update applies a patch to a record's mutable fields. The gate uses the
// mutate policy; a patch touching anything beyond category/visibility is
// rejected whole before this point (FilePatch cannot express it).
func (s *FileService) Update(ctx context.Context, id string, caller *Identity, patch FilePatch) (FileRecord, error) {
	if patch.Category == nil && patch.Visibility == nil {
		return FileRecord{}, fmt.Errorf("update %s: %w: empty patch", id, ErrInvalidInput)
	}
	if patch.Visibility != nil && !patch.Visibility.IsValid() {
		return FileRecord{}, fmt.Errorf("update %s: %w: invalid visibility %q", id, ErrInvalidInput, *patch.Visibility)
	}

	if _, err := s.authorize(ctx, id, caller, s.mutatePolicy); err != nil {
		return FileRecord{}, fmt.Errorf("update %s: %w", id, err)
	}

	updated, err := s.meta.UpdateFile(ctx, id, patch)
	if err != nil {
		return FileRecord{}, fmt.Errorf("update %s: %w", id, err)
	}
	return updated, nil
}

// Delete removes the record, then the blob. A blob that is already gone is
// a soft success: the caller wanted the file removed and the metadata, the
// single source of truth for existence, is gone. The anomaly is logged.
func (s *FileService) Delete(ctx context.Context, id string, caller *Identity) error {
	if _, err := s.authorize(ctx, id, caller, s.deletePolicy); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}

	storedName, err := s.meta.DeleteFile(ctx, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}

	if err := s.blobs.Delete(ctx, storedName); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("deleted record pointed at a missing blob", "id", id, "stored_name", storedName)
			return nil
		}
		return fmt.Errorf("delete %s: remove blob %s: %w", id, storedName, err)
	}

	s.logger.Info("file deleted", "id", id, "stored_name", storedName)
	return nil
}

// authorize resolves a record and applies the given ownership policy.
func (s *FileService) authorize(ctx context.Context, id string, caller *Identity, policy OwnerRequiredSet) (FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return FileRecord{}, err
	}

	rec, err := s.meta.FileByID(ctx, id)
	if err != nil {
		return FileRecord{}, err
	}

	if err := policy.Authorize(rec, caller); err != nil {
		return FileRecord{}, err
	}

	return rec, nil
}

// Reclaim removes blobs that no record references and that are older than
// cutoff. Interrupted uploads can leave such orphans behind; nothing in
// the request path sweeps them, so this runs as an explicit operator
// command. Returns the number of blobs removed.
func (s *FileService) Reclaim(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("reclaim: %w", err)
	}

	blobs, err := s.blobs.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("reclaim: %w", err)
	}

	removed := 0
	for _, b := range blobs {
		if err := ctx.Err(); err != nil {
			return removed, fmt.Errorf("reclaim: %w", err)
		}

		if !b.ModTime.Before(cutoff) {
			continue
		}

		_, err := s.meta.FileByStoredName(ctx, b.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return removed, fmt.Errorf("reclaim %s: %w", b.Name, err)
		}

		if err := s.blobs.Delete(ctx, b.Name); err != nil && !errors.Is(err, ErrNotFound) {
			return removed, fmt.Errorf("reclaim %s: %w", b.Name, err)
		}

		s.logger.Info("reclaimed orphaned blob", "stored_name", b.Name, "size", b.Size)
		removed++
	}

	return removed, nil
}
