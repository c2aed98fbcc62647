package upload

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chataru/craftsite/internal/domain"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 32)...)

func newTestStore(t *testing.T, opts ...DiskOption) (*DiskStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "uploads")
	s, err := NewDiskStore(dir, "/uploads", opts...)
	require.NoError(t, err)
	return s, dir
}

func TestSaveWritesFileUnderPrefix(t *testing.T) {
	s, dir := newTestStore(t, WithImagesOnly(true))

	ref, err := s.Save(context.Background(), &File{Filename: "Mug.PNG", Reader: bytes.NewReader(pngBytes)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "/uploads/"))
	assert.True(t, strings.HasSuffix(ref, ".png"))

	data, err := os.ReadFile(filepath.Join(dir, filepath.Base(ref)))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
}

func TestSaveNamesDoNotCollide(t *testing.T) {
	s, _ := newTestStore(t)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		ref, err := s.Save(context.Background(), &File{Filename: "a.jpg", Reader: bytes.NewReader(pngBytes)})
		require.NoError(t, err)
		require.False(t, seen[ref])
		seen[ref] = true
	}
}

func TestSaveRejectsNonImage(t *testing.T) {
	s, dir := newTestStore(t, WithImagesOnly(true))

	_, err := s.Save(context.Background(), &File{Filename: "notes.png", Reader: strings.NewReader("just some text")})
	ve, ok := domain.IsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "image")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveRequiresFile(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Save(context.Background(), nil)
	_, ok := domain.IsValidation(err)
	assert.True(t, ok)
}

func TestSaveCancelledLeavesNoFile(t *testing.T) {
	s, dir := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Save(ctx, &File{Filename: "a.png", Reader: bytes.NewReader(pngBytes)})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCleanExt(t *testing.T) {
	assert.Equal(t, ".jpg", cleanExt("photo.JPG"))
	assert.Equal(t, ".webp", cleanExt(`C:\pics\x.webp`))
	assert.Equal(t, "", cleanExt("noext"))
	assert.Equal(t, "", cleanExt("evil.p/hp"))
	assert.Equal(t, "", cleanExt("x.toolongextension"))
}

func TestRemoveIgnoresForeignRefs(t *testing.T) {
	s, dir := newTestStore(t)
	outside := filepath.Join(filepath.Dir(dir), "keep.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	assert.NoError(t, s.Remove(context.Background(), "/uploads/../keep.txt"))
	assert.NoError(t, s.Remove(context.Background(), "/elsewhere/keep.txt"))
	assert.NoError(t, s.Remove(context.Background(), "/uploads/missing.png"))
	assert.FileExists(t, outside)
}

func TestSweepOrphans(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()

	kept, err := s.Save(ctx, &File{Filename: "kept.png", Reader: bytes.NewReader(pngBytes)})
	require.NoError(t, err)
	orphan, err := s.Save(ctx, &File{Filename: "orphan.png", Reader: bytes.NewReader(pngBytes)})
	require.NoError(t, err)
	fresh, err := s.Save(ctx, &File{Filename: "fresh.png", Reader: bytes.NewReader(pngBytes)})
	require.NoError(t, err)

	old := time.Now().Add(-48 * time.Hour)
	for _, ref := range []string{kept, orphan} {
		require.NoError(t, os.Chtimes(filepath.Join(dir, filepath.Base(ref)), old, old))
	}

	n, err := s.SweepOrphans(ctx, map[string]struct{}{kept: {}}, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.FileExists(t, filepath.Join(dir, filepath.Base(kept)))
	assert.NoFileExists(t, filepath.Join(dir, filepath.Base(orphan)))
	assert.FileExists(t, filepath.Join(dir, filepath.Base(fresh)))
}
