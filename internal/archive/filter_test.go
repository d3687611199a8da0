package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.md", "d.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(dir, "a.txt"), filepath.Join(dir, "link.txt")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	tests := []struct {
		name    string
		include []string
		exclude []string
		want    []string
	}{
		{name: "defaults to everything", want: []string{"a.txt", "b.txt", "c.md", "d.log"}},
		{name: "include", include: []string{"*.txt"}, want: []string{"a.txt", "b.txt"}},
		{name: "include union", include: []string{"*.txt", "*.md"}, want: []string{"a.txt", "b.txt", "c.md"}},
		{name: "exclude wins", include: []string{"*.txt"}, exclude: []string{"a.txt"}, want: []string{"b.txt"}},
		{name: "exclude only", exclude: []string{"*.log", "c.*"}, want: []string{"a.txt", "b.txt"}},
		{name: "no match", include: []string{"*.go"}, want: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got []string
			for _, e := range selectFiles(entries, tt.include, tt.exclude) {
				got = append(got, e.Name())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateMasks(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateMasks([]string{"*.txt", "file?.md"}, nil))
	assert.ErrorIs(t, validateMasks(nil, []string{"[z-"}), filepath.ErrBadPattern)
}

func TestDefaultSkipCompression(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name string, size int) os.FileInfo {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
		info, err := os.Stat(path)
		require.NoError(t, err)
		return info
	}

	skip := DefaultSkipCompression(64)
	assert.True(t, skip("small.txt", write("small.txt", 10)))
	assert.False(t, skip("large.txt", write("large.txt", 100)))
	assert.True(t, skip("photo.JPG", write("photo.JPG", 100)))
	assert.True(t, skip("bundle.zst", write("bundle.zst", 100)))

	noMin := DefaultSkipCompression(0)
	assert.False(t, noMin("small.txt", write("small2.txt", 1)))
}
