package archive

import (
	"context"
	"fmt"

	"github.com/maneesh/packfile/internal/models"
	"github.com/maneesh/packfile/internal/storage"
)

// DirGetter fetches a single directory row.
type DirGetter interface {
	GetDir(ctx context.Context, id int64) (*models.DirEntry, error)
}

// ResolvePath walks the parent chain of dirID up to the root and returns the
// slash separated path of the directory, root first, with a trailing slash,
// prefixed by root. The archive root itself resolves to root + "./".
func ResolvePath(ctx context.Context, store DirGetter, dirID int64, root string) (string, error) {
	var path string
	seen := make(map[int64]struct{})

	for id := dirID; ; {
		if _, ok := seen[id]; ok {
			return "", fmt.Errorf("%w: directory %d is its own ancestor", storage.ErrCorrupt, dirID)
		}
		seen[id] = struct{}{}

		d, err := store.GetDir(ctx, id)
		if err != nil {
			return "", err
		}
		path = d.Name + "/" + path
		if d.IsRoot() {
			return root + path, nil
		}
		id = d.ParentID
	}
}
