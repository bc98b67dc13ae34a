package filesystem_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toccatech/coffre"
	"github.com/toccatech/coffre/filesystem"
)

func newStore(t *testing.T) (*filesystem.Store, string) {
	t.Helper()
	dir := t.TempDir()
	root, err := os.OpenRoot(dir)
	require.NoError(t, err, "open root")
	t.Cleanup(func() { _ = root.Close() })
	return filesystem.NewBlobStore(root), dir
}

func TestStore_WriteAndGet(t *testing.T) {
	ctx := context.Background()
	store, dir := newStore(t)
	content := []byte("\x89PNG blob bytes")

	saved, err := store.Write(ctx, "cat-1.png", bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), saved.BytesWritten)

	sum := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), saved.Etag)

	f, err := store.Get(ctx, "cat-1.png")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cat-1.png", entries[0].Name())
}

func TestStore_Get_Missing(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.Get(context.Background(), "nope.png")
	assert.ErrorIs(t, err, coffre.ErrNotFound)
}

func TestStore_Get_BlocksTraversal(t *testing.T) {
	store, dir := newStore(t)

	outside := filepath.Join(filepath.Dir(dir), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o600))
	t.Cleanup(func() { _ = os.Remove(outside) })

	_, err := store.Get(context.Background(), "../secret.txt")
	assert.Error(t, err)
}

func TestStore_Write_Cancelled(t *testing.T) {
	store, dir := newStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Write(ctx, "cat-1.png", bytes.NewReader([]byte("data")))
	assert.ErrorIs(t, err, context.Canceled)

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "a failed write leaves nothing behind")
}

func TestStore_Write_CancelledMidCopy(t *testing.T) {
	store, dir := newStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	reader := &cancelAfterFirstRead{cancel: cancel, data: bytes.Repeat([]byte("x"), 1<<20)}

	_, err := store.Write(ctx, "big-1.bin", reader)
	assert.ErrorIs(t, err, context.Canceled)

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "interrupted copies are cleaned up")
}

type cancelAfterFirstRead struct {
	cancel context.CancelFunc
	data   []byte
	reads  int
}

func (r *cancelAfterFirstRead) Read(p []byte) (int, error) {
	if r.reads > 0 {
		return 0, io.EOF
	}
	r.reads++
	n := copy(p, r.data)
	r.cancel()
	return n, nil
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	_, err := store.Write(ctx, "cat-1.png", bytes.NewReader([]byte("data")))
	require.NoError(t, err)

	assert.NoError(t, store.Delete(ctx, "cat-1.png"))
	assert.ErrorIs(t, store.Delete(ctx, "cat-1.png"), coffre.ErrNotFound)

	_, err = store.Get(ctx, "cat-1.png")
	assert.ErrorIs(t, err, coffre.ErrNotFound)
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	store, dir := newStore(t)

	_, err := store.Write(ctx, "a-1.png", bytes.NewReader([]byte("aaa")))
	require.NoError(t, err)
	_, err = store.Write(ctx, "b-2.pdf", bytes.NewReader([]byte("bbbbb")))
	require.NoError(t, err)

	// A stranded temp file from a crashed upload must not show up.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-stranded"), []byte("junk"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o750))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byName := map[string]coffre.BlobInfo{}
	for _, e := range entries {
		byName[e.Name] = e
	}

	assert.Equal(t, int64(3), byName["a-1.png"].Size)
	assert.Equal(t, int64(5), byName["b-2.pdf"].Size)
	assert.WithinDuration(t, time.Now(), byName["a-1.png"].ModTime, time.Minute)
}
