// Package filesystem provides the local blob store backing coffre. Blobs
// live in a single flat directory; names are unique by construction
// (coffre.StoredName), so writes never collide. Writes are atomic via a
// temp file and rename.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/toccatech/coffre"
)

const tmpPrefix = ".tmp-"

// Store provides file system storage operations.
type Store struct {
	root *os.Root
}

// NewBlobStore creates a Store over the given root directory. The root
// sandboxes all file operations, preventing traversal out of the uploads
// directory.
func NewBlobStore(root *os.Root) *Store {
	return &Store{root: root}
}

// Get opens a blob for reading. Returns coffre.ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, name string) (io.ReadSeekCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := s.root.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, coffre.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}

	return f, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// Write atomically stores content under name using a temp file and rename.
// It returns the number of bytes written and a SHA256-based etag, and
// respects context cancellation mid-copy.
func (s *Store) Write(ctx context.Context, name string, content io.Reader) (coffre.SaveResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return coffre.SaveResult{}, ctxErr
	}

	tmpFile := tmpFileName()
	t, createErr := s.root.Create(tmpFile)
	if createErr != nil {
		return coffre.SaveResult{}, fmt.Errorf("could not open temp file: %w", createErr)
	}

	success := false
	defer func() {
		_ = t.Close()
		if !success {
			_ = s.root.Remove(tmpFile)
		}
	}()

	h := sha256.New()
	w := io.MultiWriter(h, t)

	written, err := io.Copy(w, &ctxReader{ctx: ctx, r: content})
	if err != nil {
		return coffre.SaveResult{}, fmt.Errorf("could not copy blob contents: %w", err)
	}

	if err := t.Sync(); err != nil {
		return coffre.SaveResult{}, fmt.Errorf("could not sync written blob: %w", err)
	}

	if renameErr := s.root.Rename(tmpFile, name); renameErr != nil {
		return coffre.SaveResult{}, fmt.Errorf("failed to rename blob: %w", renameErr)
	}

	etag := hex.EncodeToString(h.Sum(nil))
	success = true

	return coffre.SaveResult{BytesWritten: written, Etag: etag}, nil
}

// Delete removes a blob. Returns coffre.ErrNotFound if absent.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.root.Remove(name); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return coffre.ErrNotFound
		}
		return fmt.Errorf("could not delete blob: %w", err)
	}
	return nil
}

// List enumerates all blobs in the store with their size and modification
// time. In-flight temp files and anything that is not a regular file are
// skipped. Used by the reclaim sweep.
func (s *Store) List(ctx context.Context) ([]coffre.BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := fs.ReadDir(s.root.FS(), ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}

	entries := make([]coffre.BlobInfo, 0, len(dirEntries))
	for _, de := range dirEntries {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if de.IsDir() || strings.HasPrefix(de.Name(), tmpPrefix) {
			continue
		}

		info, infoErr := de.Info()
		if infoErr != nil {
			return nil, fmt.Errorf("failed to stat blob %s: %w", de.Name(), infoErr)
		}

		entries = append(entries, coffre.BlobInfo{
			Name:    de.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	return entries, nil
}

func tmpFileName() string {
	return tmpPrefix + uuid.NewString()
}
