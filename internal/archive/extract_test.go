package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/maneesh/packfile/internal/checksum"
	"github.com/maneesh/packfile/internal/codec"
	"github.com/maneesh/packfile/internal/models"
	"github.com/maneesh/packfile/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirs map[int64]*models.DirEntry

func (f fakeDirs) GetDir(_ context.Context, id int64) (*models.DirEntry, error) {
	d, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("%w: directory %d not found", storage.ErrCorrupt, id)
	}
	return d, nil
}

func TestResolvePath(t *testing.T) {
	t.Parallel()

	dirs := fakeDirs{
		0: {ID: 0, Name: ".", ParentID: -1},
		1: {ID: 1, Name: "src", ParentID: 0},
		2: {ID: 2, Name: "pkg", ParentID: 1},
		3: {ID: 3, Name: "orphan", ParentID: 99},
		4: {ID: 4, Name: "loop-a", ParentID: 5},
		5: {ID: 5, Name: "loop-b", ParentID: 4},
	}

	tests := []struct {
		name    string
		id      int64
		root    string
		want    string
		wantErr error
	}{
		{name: "root", id: 0, want: "./"},
		{name: "child of root", id: 1, want: "./src/"},
		{name: "nested", id: 2, want: "./src/pkg/"},
		{name: "with prefix", id: 2, root: "/tmp/out/", want: "/tmp/out/./src/pkg/"},
		{name: "missing ancestor", id: 3, wantErr: storage.ErrCorrupt},
		{name: "cycle", id: 4, wantErr: storage.ErrCorrupt},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ResolvePath(context.Background(), dirs, tt.id, tt.root)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newStore(t *testing.T) *storage.Handle {
	t.Helper()
	h, err := storage.Initialize(context.Background(), "", storage.ErrorIfExists)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestExtractChecksumMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	dir, err := store.InsertDir(ctx, &models.DirEntry{
		Name:       "data",
		ParentID:   models.RootDirID,
		Attributes: uint32(os.ModeDir | 0o755),
	})
	require.NoError(t, err)
	require.NoError(t, store.InsertFile(ctx, &models.FileEntry{
		Name:        "tampered.txt",
		DirID:       dir,
		Attributes:  0o644,
		Compression: uint8(codec.None),
		Payload:     []byte("abc"),
		Checksum:    checksum.Compute([]byte("xyz")),
	}))

	err = NewExtractor(store).ExtractAll(ctx, t.TempDir())
	assert.ErrorIs(t, err, ErrExtraction)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	dest := t.TempDir()
	require.NoError(t, NewExtractor(store, WithChecksumVerification(false)).ExtractAll(ctx, dest))
	got, err := os.ReadFile(filepath.Join(dest, "data", "tampered.txt"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestExtractCorruptPayload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.InsertFile(ctx, &models.FileEntry{
		Name:        "broken.gz",
		DirID:       models.RootDirID,
		Compression: uint8(codec.GZip),
		Payload:     []byte("definitely not gzip"),
	}))

	err := NewExtractor(store).ExtractAll(ctx, t.TempDir())
	assert.ErrorIs(t, err, ErrExtraction)
	assert.ErrorIs(t, err, codec.ErrDecompression)
}

func TestExtractRefusesEscapingNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(ctx context.Context, store *storage.Handle) error
	}{
		{
			name: "parent dir name",
			setup: func(ctx context.Context, store *storage.Handle) error {
				_, err := store.InsertDir(ctx, &models.DirEntry{Name: "..", ParentID: models.RootDirID})
				return err
			},
		},
		{
			name: "dir name with separator",
			setup: func(ctx context.Context, store *storage.Handle) error {
				_, err := store.InsertDir(ctx, &models.DirEntry{Name: "a/../../b", ParentID: models.RootDirID})
				return err
			},
		},
		{
			name: "file name with separator",
			setup: func(ctx context.Context, store *storage.Handle) error {
				return store.InsertFile(ctx, &models.FileEntry{Name: "../evil.txt", DirID: models.RootDirID, Payload: []byte("x")})
			},
		},
		{
			name: "empty file name",
			setup: func(ctx context.Context, store *storage.Handle) error {
				return store.InsertFile(ctx, &models.FileEntry{Name: "", DirID: models.RootDirID})
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := newStore(t)
			require.NoError(t, tt.setup(ctx, store))

			base := t.TempDir()
			dest := filepath.Join(base, "out")
			err := NewExtractor(store).ExtractAll(ctx, dest)
			assert.ErrorIs(t, err, ErrExtraction)

			entries, err := os.ReadDir(base)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "nothing written outside the destination")
		})
	}
}

func TestExtractRestoresReadOnlyDirectoryLast(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	dir, err := store.InsertDir(ctx, &models.DirEntry{
		Name:       "locked",
		ParentID:   models.RootDirID,
		Attributes: uint32(os.ModeDir | 0o555),
		ModifiedAt: fixedTime.Unix(),
		AccessedAt: fixedTime.Unix(),
	})
	require.NoError(t, err)
	require.NoError(t, store.InsertFile(ctx, &models.FileEntry{
		Name:       "inside.txt",
		DirID:      dir,
		Attributes: 0o444,
		Payload:    []byte("ro"),
		ModifiedAt: fixedTime.Unix(),
		AccessedAt: fixedTime.Unix(),
	}))

	dest := t.TempDir()
	require.NoError(t, NewExtractor(store).ExtractAll(ctx, dest))
	t.Cleanup(func() { os.Chmod(filepath.Join(dest, "locked"), 0o755) })

	info, err := os.Stat(filepath.Join(dest, "locked"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o555), info.Mode().Perm())
	assert.Equal(t, fixedTime.Unix(), info.ModTime().Unix())

	info, err = os.Stat(filepath.Join(dest, "locked", "inside.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o444), info.Mode().Perm())
}

func TestExtractCancelled(t *testing.T) {
	t.Parallel()
	store := newStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewExtractor(store).ExtractAll(ctx, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}

type skewedStore struct {
	*storage.Handle
	maxID int64
}

func (s skewedStore) MaxDirID(context.Context) (int64, error) {
	return s.maxID, nil
}

func TestExtractRejectsInconsistentDirectoryIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	_, err := store.InsertDir(ctx, &models.DirEntry{
		Name:       "data",
		ParentID:   models.RootDirID,
		Attributes: uint32(os.ModeDir | 0o755),
	})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "out")
	err = NewExtractor(skewedStore{Handle: store, maxID: 7}).ExtractAll(ctx, dest)
	assert.ErrorIs(t, err, storage.ErrCorrupt)
	assert.NoDirExists(t, filepath.Join(dest, "data"))

	require.NoError(t, NewExtractor(skewedStore{Handle: store, maxID: 1}).ExtractAll(ctx, dest))
	assert.DirExists(t, filepath.Join(dest, "data"))
}

func TestExtractUnknownAttributesKeepDefaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.InsertFile(ctx, &models.FileEntry{
		Name:       "legacy.txt",
		DirID:      models.RootDirID,
		Attributes: models.UnknownAttributes,
		Payload:    []byte("old"),
	}))

	dest := t.TempDir()
	require.NoError(t, NewExtractor(store).ExtractAll(ctx, dest))

	info, err := os.Stat(filepath.Join(dest, "legacy.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}
