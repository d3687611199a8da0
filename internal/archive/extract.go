package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/maneesh/packfile/internal/checksum"
	"github.com/maneesh/packfile/internal/codec"
	"github.com/maneesh/packfile/internal/models"
	"github.com/maneesh/packfile/internal/storage"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Extractor restores a packfile onto the filesystem.
//
// Extraction fails fast: the first entry that cannot be written aborts the
// run with ErrExtraction. Entries already written are left in place.
type Extractor struct {
	store  Reader
	verify bool
}

// ExtractOption configures an Extractor.
type ExtractOption func(*Extractor)

// WithChecksumVerification enables or disables content digest checks.
// Verification is on by default.
func WithChecksumVerification(enabled bool) ExtractOption {
	return func(e *Extractor) {
		e.verify = enabled
	}
}

// NewExtractor creates an Extractor reading from store.
func NewExtractor(store Reader, opts ...ExtractOption) *Extractor {
	e := &Extractor{store: store, verify: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type pendingDir struct {
	path  string
	entry *models.DirEntry
}

// ExtractAll recreates every directory and file under dest.
//
// Directory ids are visited in ascending order. A parent always has a lower
// id than its children, so a directory exists on disk before its files or
// subdirectories are written. Directory metadata is applied last, deepest
// first, so writing children does not disturb parent times or permissions.
func (e *Extractor) ExtractAll(ctx context.Context, dest string) error {
	ctx, span := tracer.Start(ctx, "extract_all",
		trace.WithAttributes(attribute.String("destination", dest)),
	)
	defer span.End()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		span.RecordError(err)
		return extractionError(dest, err)
	}

	ids, err := e.store.DirIDs(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := e.checkDirIDs(ctx, ids); err != nil {
		span.RecordError(err)
		return err
	}

	var pending []pendingDir
	var fileCount int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := ResolvePath(ctx, e.store, id, "")
		if err != nil {
			span.RecordError(err)
			return err
		}
		dirPath, err := within(dest, rel)
		if err != nil {
			span.RecordError(err)
			return err
		}

		files, err := e.store.FilesInDir(ctx, id)
		if err != nil {
			span.RecordError(err)
			return err
		}
		for _, f := range files {
			if err := e.extractFile(dirPath, f); err != nil {
				span.RecordError(err)
				return err
			}
			fileCount++
		}

		children, err := e.store.ChildDirs(ctx, id)
		if err != nil {
			span.RecordError(err)
			return err
		}
		for _, child := range children {
			if err := validName(child.Name); err != nil {
				span.RecordError(err)
				return extractionError(filepath.Join(dirPath, child.Name), err)
			}
			path := filepath.Join(dirPath, child.Name)
			if err := mkdir(path); err != nil {
				span.RecordError(err)
				return extractionError(path, err)
			}
			pending = append(pending, pendingDir{path: path, entry: child})
		}
	}

	for i := len(pending) - 1; i >= 0; i-- {
		d := pending[i]
		if err := restoreMetadata(d.path, d.entry.Attributes, d.entry.AccessedAt, d.entry.ModifiedAt); err != nil {
			span.RecordError(err)
			return extractionError(d.path, err)
		}
	}

	span.SetAttributes(
		attribute.Int("dir_count", len(pending)),
		attribute.Int("file_count", fileCount),
	)
	return nil
}

// checkDirIDs makes sure the id listing starts at the root and reaches the
// highest assigned id.
func (e *Extractor) checkDirIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 || ids[0] != models.RootDirID {
		return fmt.Errorf("%w: root directory missing", storage.ErrCorrupt)
	}
	maxID, err := e.store.MaxDirID(ctx)
	if err != nil {
		return err
	}
	if last := ids[len(ids)-1]; last != maxID {
		return fmt.Errorf("%w: directory listing ends at %d, highest id is %d", storage.ErrCorrupt, last, maxID)
	}
	return nil
}

func (e *Extractor) extractFile(dir string, f *models.FileEntry) error {
	path := filepath.Join(dir, f.Name)
	if err := validName(f.Name); err != nil {
		return extractionError(path, err)
	}

	var data []byte
	if f.Payload != nil {
		var err error
		data, err = codec.Decode(f.Payload, codec.Kind(f.Compression))
		if err != nil {
			return extractionError(path, err)
		}
	}
	if e.verify && !checksum.Verify(data, f.Checksum) {
		return extractionError(path, ErrChecksumMismatch)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return extractionError(path, err)
	}
	if err := restoreMetadata(path, f.Attributes, f.AccessedAt, f.ModifiedAt); err != nil {
		return extractionError(path, err)
	}

	log.WithFields(log.Fields{"path": path, "size": len(data)}).Debug("extracted file")
	return nil
}

// mkdir creates path, accepting an existing directory but not a file.
func mkdir(path string) error {
	err := os.Mkdir(path, 0o755)
	if err == nil || !errors.Is(err, fs.ErrExist) {
		return err
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		return statErr
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists and is not a directory", path)
	}
	return nil
}

// within joins the slash separated rel onto dest and refuses results that
// escape dest.
func within(dest, rel string) (string, error) {
	path := filepath.Join(dest, filepath.FromSlash(rel))
	r, err := filepath.Rel(dest, path)
	if err != nil {
		return "", extractionError(path, err)
	}
	if r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", extractionError(path, fmt.Errorf("path escapes destination"))
	}
	return path, nil
}

// validName accepts only bare entry names.
func validName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("invalid entry name %q", name)
	}
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) {
		return fmt.Errorf("entry name %q contains a path separator", name)
	}
	return nil
}

func extractionError(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrExtraction, path, err)
}
