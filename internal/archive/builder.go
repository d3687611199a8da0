package archive

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/maneesh/packfile/internal/checksum"
	"github.com/maneesh/packfile/internal/codec"
	"github.com/maneesh/packfile/internal/models"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("packfile-archive")

// Writer is the part of the store the Builder inserts rows through.
type Writer interface {
	InsertDir(ctx context.Context, d *models.DirEntry) (int64, error)
	InsertFile(ctx context.Context, f *models.FileEntry) error
}

// BuildOptions configures which files a Builder stores and how.
type BuildOptions struct {
	// Include masks select files among the direct children of every packed
	// directory. Empty means "*".
	Include []string

	// Exclude masks remove files selected by Include.
	Exclude []string

	// SkipCompression contains predicates that decide to store a file
	// uncompressed. If any predicate returns true, compression is skipped.
	SkipCompression []SkipCompressionFunc
}

// Builder walks source trees and inserts them into a packfile.
type Builder struct {
	store Writer
	opts  BuildOptions
}

// NewBuilder creates a Builder writing to store.
func NewBuilder(store Writer, opts BuildOptions) (*Builder, error) {
	if err := validateMasks(opts.Include, opts.Exclude); err != nil {
		return nil, err
	}
	return &Builder{store: store, opts: opts}, nil
}

// Add packs every path under the archive root. Directories become subtrees of
// the root, files become root files.
func (b *Builder) Add(ctx context.Context, kind codec.Kind, paths ...string) error {
	ctx, span := tracer.Start(ctx, "build",
		trace.WithAttributes(
			attribute.StringSlice("sources", paths),
			attribute.String("compression", kind.String()),
		),
	)
	defer span.End()

	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if err := b.AddEntry(ctx, path, kind, models.RootDirID); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}

// AddEntry packs path under the directory parentID. A directory is inserted
// and then recursed into; a file is read, compressed and inserted.
func (b *Builder) AddEntry(ctx context.Context, path string, kind codec.Kind, parentID int64) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %d", codec.ErrUnsupportedCodec, kind)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceNotFound, err)
	}

	if info.IsDir() {
		_, err := b.addDir(ctx, path, info, kind, parentID)
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrSourceNotFound, path)
	}
	return b.addFile(ctx, path, info, kind, parentID)
}

func (b *Builder) addDir(ctx context.Context, path string, info fs.FileInfo, kind codec.Kind, parentID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	name, err := entryName(path)
	if err != nil {
		return 0, err
	}

	st := statStamp(info)
	id, err := b.store.InsertDir(ctx, &models.DirEntry{
		Name:       name,
		Attributes: st.attributes,
		CreatedAt:  st.created,
		ModifiedAt: st.modified,
		AccessedAt: st.accessed,
		ParentID:   parentID,
	})
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{"path": path, "dir_id": id, "parent_id": parentID}).Debug("added directory")

	entries, err := os.ReadDir(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSourceNotFound, err)
	}

	for _, entry := range selectFiles(entries, b.opts.Include, b.opts.Exclude) {
		child := filepath.Join(path, entry.Name())
		childInfo, err := entry.Info()
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrSourceNotFound, err)
		}
		if err := b.addFile(ctx, child, childInfo, kind, id); err != nil {
			return 0, err
		}
	}

	// Subdirectories are always walked; masks only filter files.
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		child := filepath.Join(path, entry.Name())
		childInfo, err := entry.Info()
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrSourceNotFound, err)
		}
		if _, err := b.addDir(ctx, child, childInfo, kind, id); err != nil {
			return 0, err
		}
	}

	return id, nil
}

func (b *Builder) addFile(ctx context.Context, path string, info fs.FileInfo, kind codec.Kind, dirID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceNotFound, err)
	}

	if kind != codec.None && b.shouldSkipCompression(path, info) {
		kind = codec.None
	}

	var payload []byte
	if len(data) > 0 {
		payload, err = codec.Encode(data, kind)
		if err != nil {
			return fmt.Errorf("compress %s: %w", path, err)
		}
	}

	st := statStamp(info)
	err = b.store.InsertFile(ctx, &models.FileEntry{
		Name:        filepath.Base(path),
		DirID:       dirID,
		Attributes:  st.attributes,
		CreatedAt:   st.created,
		ModifiedAt:  st.modified,
		AccessedAt:  st.accessed,
		Compression: uint8(kind),
		Payload:     payload,
		Checksum:    checksum.Compute(data),
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"path":        path,
		"dir_id":      dirID,
		"size":        len(data),
		"stored":      len(payload),
		"compression": kind.String(),
	}).Debug("added file")
	return nil
}

func (b *Builder) shouldSkipCompression(path string, info fs.FileInfo) bool {
	for _, fn := range b.opts.SkipCompression {
		if fn == nil {
			continue
		}
		if fn(path, info) {
			return true
		}
	}
	return false
}

// entryName returns the bare name a source directory is stored under.
func entryName(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSourceNotFound, err)
	}
	name := filepath.Base(abs)
	if name == string(filepath.Separator) || name == "." {
		return "", fmt.Errorf("%w: cannot pack filesystem root %s", ErrSourceNotFound, path)
	}
	return name, nil
}
