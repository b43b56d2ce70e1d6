package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeworks/mediascribe/pkg/source"
)

func writeTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	}
	return root
}

func identities(t *testing.T, root string, items []source.WorkItem) []string {
	t.Helper()
	var out []string
	for _, it := range items {
		rel, err := filepath.Rel(root, it.Identity)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestDiscover_RecognizedMediaOnly(t *testing.T) {
	root := writeTree(t,
		"a.jpg",
		"b.png",
		"clip.mp4",
		"notes.txt",
		"archive.zip",
	)

	s, err := New(Config{Root: root})
	require.NoError(t, err)

	items, err := s.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.png", "clip.mp4"}, identities(t, root, items))

	for _, it := range items {
		assert.Equal(t, it.Identity, it.Path)
		assert.Equal(t, int64(4), it.Size)
	}
	assert.Equal(t, source.KindImage, items[0].Kind)
	assert.Equal(t, source.KindVideo, items[2].Kind)
}

func TestDiscover_DeterministicOrder(t *testing.T) {
	root := writeTree(t, "z.jpg", "a/nested.jpg", "m.png")

	s, err := New(Config{Root: root})
	require.NoError(t, err)

	items, err := s.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a/nested.jpg", "m.png", "z.jpg"}, identities(t, root, items))
}

func TestDiscover_IncludesAndExcludes(t *testing.T) {
	root := writeTree(t,
		"keep/a.jpg",
		"keep/b.png",
		"thumbs/a.jpg",
		"keep/raw/c.jpg",
	)

	s, err := New(Config{
		Root:     root,
		Includes: []string{"keep/**"},
		Excludes: []string{"**/raw/**"},
	})
	require.NoError(t, err)

	items, err := s.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"keep/a.jpg", "keep/b.png"}, identities(t, root, items))
}

func TestDiscover_HiddenPathsSkipped(t *testing.T) {
	root := writeTree(t, "a.jpg", ".hidden.jpg", ".cache/b.jpg")

	s, err := New(Config{Root: root})
	require.NoError(t, err)

	items, err := s.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg"}, identities(t, root, items))
}

func TestDiscover_MissingRoot(t *testing.T) {
	s, err := New(Config{Root: filepath.Join(t.TempDir(), "absent")})
	require.NoError(t, err)

	_, err = s.Discover(context.Background())
	require.Error(t, err)
	assert.True(t, source.IsInputError(err))
}

func TestDiscover_RootIsFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	s, err := New(Config{Root: file})
	require.NoError(t, err)

	_, err = s.Discover(context.Background())
	assert.True(t, source.IsInputError(err))
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New(Config{Root: t.TempDir(), Includes: []string{"[unclosed"}})
	require.Error(t, err)
	assert.True(t, source.IsInputError(err))
}

func TestKindForPath(t *testing.T) {
	assert.Equal(t, source.KindImage, source.KindForPath("x/photo.JPG"))
	assert.Equal(t, source.KindVideo, source.KindForPath("x/clip.mkv"))
	assert.Empty(t, string(source.KindForPath("x/doc.pdf")))
}
