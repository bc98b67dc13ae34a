package coffre_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/toccatech/coffre"
)

type SpyMetadataStore struct {
	mock.Mock
}

func (s *SpyMetadataStore) UserByToken(ctx context.Context, token string) (coffre.Identity, error) {
	args := s.Called(ctx, token)
	return args.Get(0).(coffre.Identity), args.Error(1)
}

func (s *SpyMetadataStore) ResourceByName(ctx context.Context, name string) (coffre.Resource, error) {
	args := s.Called(ctx, name)
	return args.Get(0).(coffre.Resource), args.Error(1)
}

func (s *SpyMetadataStore) CreateFile(ctx context.Context, rec coffre.NewFileRecord) (coffre.FileRecord, error) {
	args := s.Called(ctx, rec)
	return args.Get(0).(coffre.FileRecord), args.Error(1)
}

func (s *SpyMetadataStore) FileByID(ctx context.Context, id string) (coffre.FileRecord, error) {
	args := s.Called(ctx, id)
	return args.Get(0).(coffre.FileRecord), args.Error(1)
}

func (s *SpyMetadataStore) FileByStoredName(ctx context.Context, storedName string) (coffre.FileRecord, error) {
	args := s.Called(ctx, storedName)
	return args.Get(0).(coffre.FileRecord), args.Error(1)
}

func (s *SpyMetadataStore) UpdateFile(ctx context.Context, id string, patch coffre.FilePatch) (coffre.FileRecord, error) {
	args := s.Called(ctx, id, patch)
	return args.Get(0).(coffre.FileRecord), args.Error(1)
}

func (s *SpyMetadataStore) DeleteFile(ctx context.Context, id string) (string, error) {
	args := s.Called(ctx, id)
	return args.String(0), args.Error(1)
}

type SpyBlobStorage struct {
	mock.Mock
}

func (s *SpyBlobStorage) Get(ctx context.Context, name string) (io.ReadSeekCloser, error) {
	args := s.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadSeekCloser), args.Error(1)
}

func (s *SpyBlobStorage) Write(ctx context.Context, name string, content io.Reader) (coffre.SaveResult, error) {
	args := s.Called(ctx, name, content)
	return args.Get(0).(coffre.SaveResult), args.Error(1)
}

func (s *SpyBlobStorage) Delete(ctx context.Context, name string) error {
	args := s.Called(ctx, name)
	return args.Error(0)
}

func (s *SpyBlobStorage) List(ctx context.Context) ([]coffre.BlobInfo, error) {
	args := s.Called(ctx)
	return args.Get(0).([]coffre.BlobInfo), args.Error(1)
}

type stubSniffer struct {
	detected string
	err      error
}

func (s stubSniffer) Detect(r io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	return s.detected, s.err
}

type nopSeekCloser struct {
	*bytes.Reader
}

func (nopSeekCloser) Close() error { return nil }

func blobReader(content string) io.ReadSeekCloser {
	return nopSeekCloser{bytes.NewReader([]byte(content))}
}

func NewFileService(t *testing.T, sniffer coffre.Sniffer) (*coffre.FileService, *SpyMetadataStore, *SpyBlobStorage) {
	t.Helper()
	meta := new(SpyMetadataStore)
	blobs := new(SpyBlobStorage)
	svc, err := coffre.NewFileService(meta, blobs, sniffer, coffre.ServiceConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	assert.NoError(t, err, "new file service")
	return svc, meta, blobs
}

var (
	testOwner    = coffre.Identity{ID: "0x10", ProfileID: "0x20", Username: "ada"}
	testStranger = &coffre.Identity{ID: "0x11", ProfileID: "0x21", Username: "mallory"}
	testResource = coffre.Resource{
		ID:              "0x30",
		Name:            "avatars",
		AcceptMIMETypes: []string{"image/png", "image/jpeg"},
	}
)

func pngUploadRequest() coffre.UploadRequest {
	return coffre.UploadRequest{
		Resource:     testResource,
		Caller:       testOwner,
		OriginalName: "cat.png",
		StoredName:   "cat-1735689600000.png",
		DeclaredType: "image/png",
		Visibility:   coffre.VisibilityPrivate,
	}
}

func TestFileService_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		service, meta, blobs := NewFileService(t, stubSniffer{detected: "image/png"})
		req := pngUploadRequest()

		blobs.On("Write", ctx, req.StoredName, mock.Anything).
			Return(coffre.SaveResult{BytesWritten: 4, Etag: "abc"}, nil)
		blobs.On("Get", ctx, req.StoredName).Return(blobReader("\x89PNG"), nil)
		meta.On("CreateFile", ctx, mock.MatchedBy(func(rec coffre.NewFileRecord) bool {
			return rec.StoredName == req.StoredName &&
				rec.OriginalName == "cat.png" &&
				rec.MIMEType == "image/png" &&
				rec.Size == 4 &&
				rec.Owner == testOwner.ProfileID &&
				rec.Visibility == coffre.VisibilityPrivate &&
				rec.ResourceID == testResource.ID
		})).Return(coffre.FileRecord{ID: "0x40", StoredName: req.StoredName, MIMEType: "image/png"}, nil)

		created, err := service.Upload(ctx, req, bytes.NewReader([]byte("\x89PNG")))
		assert.NoError(t, err)
		assert.Equal(t, "0x40", created.ID)

		meta.AssertExpectations(t)
		blobs.AssertExpectations(t)
		blobs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("declared type spoofed", func(t *testing.T) {
		service, meta, blobs := NewFileService(t, stubSniffer{detected: "text/plain"})
		req := pngUploadRequest()

		blobs.On("Write", ctx, req.StoredName, mock.Anything).Return(coffre.SaveResult{BytesWritten: 11}, nil)
		blobs.On("Get", ctx, req.StoredName).Return(blobReader("not a png"), nil)
		blobs.On("Delete", mock.Anything, req.StoredName).Return(nil)

		_, err := service.Upload(ctx, req, bytes.NewReader([]byte("not a png")))
		assert.ErrorIs(t, err, coffre.ErrContentPolicy)

		blobs.AssertExpectations(t)
		meta.AssertNotCalled(t, "CreateFile", mock.Anything, mock.Anything)
	})

	t.Run("sniffed type not in accept set", func(t *testing.T) {
		service, meta, blobs := NewFileService(t, stubSniffer{detected: "application/pdf"})
		req := pngUploadRequest()
		req.DeclaredType = "application/pdf"
		req.OriginalName = "doc.pdf"
		req.StoredName = "doc-1735689600000.pdf"

		blobs.On("Write", ctx, req.StoredName, mock.Anything).Return(coffre.SaveResult{BytesWritten: 8}, nil)
		blobs.On("Get", ctx, req.StoredName).Return(blobReader("%PDF-1.4"), nil)
		blobs.On("Delete", mock.Anything, req.StoredName).Return(nil)

		_, err := service.Upload(ctx, req, bytes.NewReader([]byte("%PDF-1.4")))
		assert.ErrorIs(t, err, coffre.ErrContentPolicy)

		blobs.AssertExpectations(t)
		meta.AssertNotCalled(t, "CreateFile", mock.Anything, mock.Anything)
	})

	t.Run("metadata create failure rolls the blob back", func(t *testing.T) {
		service, meta, blobs := NewFileService(t, stubSniffer{detected: "image/png"})
		req := pngUploadRequest()

		blobs.On("Write", ctx, req.StoredName, mock.Anything).Return(coffre.SaveResult{BytesWritten: 4}, nil)
		blobs.On("Get", ctx, req.StoredName).Return(blobReader("\x89PNG"), nil)
		meta.On("CreateFile", ctx, mock.Anything).Return(coffre.FileRecord{}, coffre.ErrValidation)
		blobs.On("Delete", mock.Anything, req.StoredName).Return(nil)

		_, err := service.Upload(ctx, req, bytes.NewReader([]byte("\x89PNG")))
		assert.ErrorIs(t, err, coffre.ErrValidation)

		blobs.AssertExpectations(t)
	})

	t.Run("invalid stored name", func(t *testing.T) {
		service, meta, blobs := NewFileService(t, stubSniffer{detected: "image/png"})
		req := pngUploadRequest()
		req.StoredName = "../escape.png"

		_, err := service.Upload(ctx, req, bytes.NewReader(nil))
		assert.ErrorIs(t, err, coffre.ErrInvalidInput)

		blobs.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
		meta.AssertNotCalled(t, "CreateFile", mock.Anything, mock.Anything)
	})

	t.Run("invalid visibility", func(t *testing.T) {
		service, _, blobs := NewFileService(t, stubSniffer{detected: "image/png"})
		req := pngUploadRequest()
		req.Visibility = coffre.Visibility("everyone")

		_, err := service.Upload(ctx, req, bytes.NewReader(nil))
		assert.ErrorIs(t, err, coffre.ErrInvalidInput)
		blobs.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("resource with empty accept set", func(t *testing.T) {
		service, _, blobs := NewFileService(t, stubSniffer{detected: "image/png"})
		req := pngUploadRequest()
		req.Resource.AcceptMIMETypes = nil

		_, err := service.Upload(ctx, req, bytes.NewReader(nil))
		assert.ErrorIs(t, err, coffre.ErrInvalidInput)
		blobs.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("blob write failure", func(t *testing.T) {
		service, meta, blobs := NewFileService(t, stubSniffer{detected: "image/png"})
		req := pngUploadRequest()

		writeErr := errors.New("disk full")
		blobs.On("Write", ctx, req.StoredName, mock.Anything).Return(coffre.SaveResult{}, writeErr)

		_, err := service.Upload(ctx, req, bytes.NewReader([]byte("\x89PNG")))
		assert.ErrorIs(t, err, writeErr)
		meta.AssertNotCalled(t, "CreateFile", mock.Anything, mock.Anything)
	})
}

func TestFileService_Fetch(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		service, meta, blobs := NewFileService(t, stubSniffer{detected: "image/png"})
		rec := coffre.FileRecord{ID: "0x40", StoredName: "cat-1.png", Visibility: coffre.VisibilityPublic}

		meta.On("FileByID", ctx, "0x40").Return(rec, nil)
		blobs.On("Get", ctx, "cat-1.png").Return(blobReader("\x89PNG"), nil)

		got, f, err := service.Fetch(ctx, "0x40", nil)
		assert.NoError(t, err)
		assert.Equal(t, rec, got)

		data, err := io.ReadAll(f)
		assert.NoError(t, err)
		assert.Equal(t, []byte("\x89PNG"), data)
		assert.NoError(t, f.Close())
	})

	t.Run("private file without a session", func(t *testing.T) {
		service, meta, blobs := NewFileService(t, stubSniffer{detected: "image/png"})
		rec := coffre.FileRecord{ID: "0x40", StoredName: "cat-1.png", Owner: "0x20", Visibility: coffre.VisibilityPrivate}

		meta.On("FileByID", ctx, "0x40").Return(rec, nil)

		_, _, err := service.Fetch(ctx, "0x40", nil)
		assert.ErrorIs(t, err, coffre.ErrUnauthenticated)
		blobs.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("private file fetched by someone else", func(t *testing.T) {
		service, meta, _ := NewFileService(t, stubSniffer{detected: "image/png"})
		rec := coffre.FileRecord{ID: "0x40", StoredName: "cat-1.png", Owner: "0x20", Visibility: coffre.VisibilityPrivate}

		meta.On("FileByID", ctx, "0x40").Return(rec, nil)

		_, _, err := service.Fetch(ctx, "0x40", testStranger)
		assert.ErrorIs(t, err, coffre.ErrForbidden)
	})

	t.Run("record without a blob", func(t *testing.T) {
		service, meta, blobs := NewFileService(t, stubSniffer{detected: "image/png"})
		rec := coffre.FileRecord{ID: "0x40", StoredName: "cat-1.png", Visibility: coffre.VisibilityPublic}

		meta.On("FileByID", ctx, "0x40").Return(rec, nil)
		blobs.On("Get", ctx, "cat-1.png").Return(nil, coffre.ErrNotFound)

		_, _, err := service.Fetch(ctx, "0x40", nil)
		assert.ErrorIs(t, err, coffre.ErrStorageInconsistency)
	})

	t.Run("unknown record", func(t *testing.T) {
		service, meta, _ := NewFileService(t, stubSniffer{detected: "image/png"})

		meta.On("FileByID", ctx, "0x99").Return(coffre.FileRecord{}, coffre.ErrNotFound)

		_, _, err := service.Fetch(ctx, "0x99", nil)
		assert.ErrorIs(t, err, coffre.ErrNotFound)
	})
}

func TestFileService_Info(t *testing.T) {
	ctx := context.Background()

	t.Run("public record needs no session", func(t *testing.T) {
		service, meta, _ := NewFileService(t, stubSniffer{detected: "image/png"})
		rec := coffre.FileRecord{ID: "0x40", Visibility: coffre.VisibilityPublic}

		meta.On("FileByID", ctx, "0x40").Return(rec, nil)

		got, err := service.Info(ctx, "0x40", nil)
		assert.NoError(t, err)
		assert.Equal(t, rec, got)
	})

	t.Run("private record is gated", func(t *testing.T) {
		service, meta, _ := NewFileService(t, stubSniffer{detected: "image/png"})
		rec := coffre.FileRecord{ID: "0x40", Owner: "0x20", Visibility: coffre.VisibilityPrivate}

		meta.On("FileByID", ctx, "0x40").Return(rec, nil)

		_, err := service.Info(ctx, "0x40", nil)
		assert.ErrorIs(t, err, coffre.ErrUnauthenticated)

		got, err := service.Info(ctx, "0x40", &testOwner)
		assert.NoError(t, err)
		assert.Equal(t, rec, got)
	})
}

func TestFileService_Update(t *testing.T) {
	ctx := context.Background()
	category := "sheet music"
	visibility := coffre.VisibilityPublic

	t.Run("owner updates category and visibility", func(t *testing.T) {
		service, meta, _ := NewFileService(t, stubSniffer{detected: "image/png"})
		rec := coffre.FileRecord{ID: "0x40", Owner: testOwner.ProfileID, Visibility: coffre.VisibilityPrivate}
		patch := coffre.FilePatch{Category: &category, Visibility: &visibility}

		meta.On("FileByID", ctx, "0x40").Return(rec, nil)
		meta.On("UpdateFile", ctx, "0x40", patch).
			Return(coffre.FileRecord{ID: "0x40", Owner: testOwner.ProfileID, Visibility: coffre.VisibilityPublic}, nil)

		updated, err := service.Update(ctx, "0x40", &testOwner, patch)
		assert.NoError(t, err)
		assert.Equal(t, coffre.VisibilityPublic, updated.Visibility)
		meta.AssertExpectations(t)
	})

	t.Run("empty patch", func(t *testing.T) {
		service, meta, _ := NewFileService(t, stubSniffer{detected: "image/png"})

		_, err := service.Update(ctx, "0x40", &testOwner, coffre.FilePatch{})
		assert.ErrorIs(t, err, coffre.ErrInvalidInput)
		meta.AssertNotCalled(t, "FileByID", mock.Anything, mock.Anything)
	})

	t.Run("invalid visibility value", func(t *testing.T) {
		service, meta, _ := NewFileService(t, stubSniffer{detected: "image/png"})
		bad := coffre.Visibility("loud")

		_, err := service.Update(ctx, "0x40", &testOwner, coffre.FilePatch{Visibility: &bad})
		assert.ErrorIs(t, err, coffre.ErrInvalidInput)
		meta.AssertNotCalled(t, "UpdateFile", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("non-owner cannot update even a public file", func(t *testing.T) {
		service, meta, _ := NewFileService(t, stubSniffer{detected: "image/png"})
		rec := coffre.FileRecord{ID: "0x40", Owner: testOwner.ProfileID, Visibility: coffre.VisibilityPublic}

		meta.On("FileByID", ctx, "0x40").Return(rec, nil)

		_, err := service.Update(ctx, "0x40", testStranger, coffre.FilePatch{Category: &category})
		assert.ErrorIs(t, err, coffre.ErrForbidden)
		meta.AssertNotCalled(t, "UpdateFile", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestFileService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("record and blob removed", func(t *testing.T) {
		service, meta, blobs := NewFileService(t, stubSniffer{detected: "image/png"})
		rec := coffre.FileRecord{ID: "0x40", Owner: testOwner.ProfileID, StoredName: "cat-1.png", Visibility: coffre.VisibilityPublic}

		meta.On("FileByID", ctx, "0x40").Return(rec, nil)
		meta.On("DeleteFile", ctx, "0x40").Return("cat-1.png", nil)
		blobs.On("Delete", ctx, "cat-1.png").Return(nil)

		err := service.Delete(ctx, "0x40", &testOwner)
		assert.NoError(t, err)
		meta.AssertExpectations(t)
		blobs.AssertExpectations(t)
	})

	t.Run("missing blob is a soft success", func(t *testing.T) {
		service, meta, blobs := NewFileService(t, stubSniffer{detected: "image/png"})
		rec := coffre.FileRecord{ID: "0x40", Owner: testOwner.ProfileID, StoredName: "cat-1.png", Visibility: coffre.VisibilityPublic}

		meta.On("FileByID", ctx, "0x40").Return(rec, nil)
		meta.On("DeleteFile", ctx, "0x40").Return("cat-1.png", nil)
		blobs.On("Delete", ctx, "cat-1.png").Return(coffre.ErrNotFound)

		err := service.Delete(ctx, "0x40", &testOwner)
		assert.NoError(t, err)
	})

	t.Run("anonymous caller", func(t *testing.T) {
		service, meta, _ := NewFileService(t, stubSniffer{detected: "image/png"})
		rec := coffre.FileRecord{ID: "0x40", Owner: testOwner.ProfileID, Visibility: coffre.VisibilityPublic}

		meta.On("FileByID", ctx, "0x40").Return(rec, nil)

		err := service.Delete(ctx, "0x40", nil)
		assert.ErrorIs(t, err, coffre.ErrUnauthenticated)
		meta.AssertNotCalled(t, "DeleteFile", mock.Anything, mock.Anything)
	})

	t.Run("already deleted record", func(t *testing.T) {
		service, meta, _ := NewFileService(t, stubSniffer{detected: "image/png"})

		meta.On("FileByID", ctx, "0x40").Return(coffre.FileRecord{}, coffre.ErrNotFound)

		err := service.Delete(ctx, "0x40", &testOwner)
		assert.ErrorIs(t, err, coffre.ErrNotFound)
	})
}

func TestFileService_Reclaim(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	cutoff := now.Add(-24 * time.Hour)

	t.Run("removes only old unreferenced blobs", func(t *testing.T) {
		service, meta, blobs := NewFileService(t, stubSniffer{detected: "image/png"})

		blobs.On("List", ctx).Return([]coffre.BlobInfo{
			{Name: "orphan-1.png", ModTime: now.Add(-48 * time.Hour)},
			{Name: "fresh-2.png", ModTime: now.Add(-time.Hour)},
			{Name: "kept-3.png", ModTime: now.Add(-48 * time.Hour)},
		}, nil)
		meta.On("FileByStoredName", ctx, "orphan-1.png").Return(coffre.FileRecord{}, coffre.ErrNotFound)
		meta.On("FileByStoredName", ctx, "kept-3.png").Return(coffre.FileRecord{ID: "0x40"}, nil)
		blobs.On("Delete", ctx, "orphan-1.png").Return(nil)

		removed, err := service.Reclaim(ctx, cutoff)
		assert.NoError(t, err)
		assert.Equal(t, 1, removed)

		meta.AssertNotCalled(t, "FileByStoredName", ctx, "fresh-2.png")
		blobs.AssertNotCalled(t, "Delete", ctx, "kept-3.png")
		blobs.AssertExpectations(t)
	})

	t.Run("metadata outage aborts the sweep", func(t *testing.T) {
		service, meta, blobs := NewFileService(t, stubSniffer{detected: "image/png"})

		blobs.On("List", ctx).Return([]coffre.BlobInfo{
			{Name: "a-1.png", ModTime: now.Add(-48 * time.Hour)},
		}, nil)
		meta.On("FileByStoredName", ctx, "a-1.png").Return(coffre.FileRecord{}, coffre.ErrUpstream)

		removed, err := service.Reclaim(ctx, cutoff)
		assert.ErrorIs(t, err, coffre.ErrUpstream)
		assert.Equal(t, 0, removed)
		blobs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})
}
