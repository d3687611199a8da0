package archive

import (
	"context"

	"github.com/maneesh/packfile/internal/models"
	"go.opentelemetry.io/otel/attribute"
)

// Reader is the part of the store used to enumerate and extract a packfile.
type Reader interface {
	DirGetter
	DirIDs(ctx context.Context) ([]int64, error)
	MaxDirID(ctx context.Context) (int64, error)
	ChildDirs(ctx context.Context, parent int64) ([]*models.DirEntry, error)
	FilesInDir(ctx context.Context, dir int64) ([]*models.FileEntry, error)
	FileNamesInDir(ctx context.Context, dir int64) ([]string, error)
}

// Lister renders the file paths stored in a packfile.
type Lister struct {
	store Reader
}

// NewLister creates a Lister reading from store.
func NewLister(store Reader) *Lister {
	return &Lister{store: store}
}

// ListAll returns "./dir/.../name" for every file, grouped by directory in
// ascending directory id order and in insertion order within a directory.
// Directories are not listed on their own.
func (l *Lister) ListAll(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "list_all")
	defer span.End()

	ids, err := l.store.DirIDs(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var entries []string
	for _, id := range ids {
		names, err := l.store.FileNamesInDir(ctx, id)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if len(names) == 0 {
			continue
		}

		dir, err := ResolvePath(ctx, l.store, id, "")
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		for _, name := range names {
			entries = append(entries, dir+name)
		}
	}

	span.SetAttributes(attribute.Int("file_count", len(entries)))
	return entries, nil
}
