package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("packfile-storage")

const driverName = "sqlite3"

var (
	// ErrAlreadyExists is returned when the target packfile exists and neither
	// overwrite nor append was requested.
	ErrAlreadyExists = errors.New("storage: packfile already exists")

	// ErrNotFound is returned when opening a packfile that does not exist.
	ErrNotFound = errors.New("storage: packfile not found")

	// ErrPersistence is returned when a row insert or transaction fails.
	ErrPersistence = errors.New("storage: write failed")

	// ErrCorrupt is returned when the stored tree is inconsistent.
	ErrCorrupt = errors.New("storage: corrupt packfile")
)

// Mode decides what happens when the target packfile already exists.
type Mode int

const (
	ErrorIfExists Mode = iota
	OverwriteIfExists
	AppendIfExists
)

func (m Mode) String() string {
	switch m {
	case ErrorIfExists:
		return "error"
	case OverwriteIfExists:
		return "overwrite"
	case AppendIfExists:
		return "append"
	default:
		return "unknown"
	}
}

// Handle owns the connection to a packfile, either a durable file or an
// in-memory staging database.
type Handle struct {
	db   *sql.DB
	path string

	// noChecksums is set for read-only packfiles whose files table predates
	// the checksum column.
	noChecksums bool

	// Staging databases live only while at least one connection is open, so
	// the handle pins one on a separate pool for its whole lifetime.
	anchor *sql.DB
	keep   *sql.Conn
}

// Initialize opens the packfile at target, honouring mode, and makes sure the
// schema and root directory exist. An empty target creates an in-memory
// staging database that must later be persisted with BackupTo.
func Initialize(ctx context.Context, target string, mode Mode) (*Handle, error) {
	ctx, span := tracer.Start(ctx, "sqlite.initialize",
		trace.WithAttributes(
			attribute.String("target", target),
			attribute.String("mode", mode.String()),
		),
	)
	defer span.End()

	if target == "" {
		h, err := openMemory(ctx)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if err := h.createSchema(ctx); err != nil {
			h.Close()
			span.RecordError(err)
			return nil, err
		}
		return h, nil
	}

	exists, err := CheckTarget(target, mode)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if exists && mode == OverwriteIfExists {
		if err := os.Remove(target); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("%w: remove %s: %w", ErrPersistence, target, err)
		}
		exists = false
	}

	h, err := openFile(ctx, target, false)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if exists {
		ok, err := h.hasSchema(ctx)
		if err != nil {
			h.Close()
			span.RecordError(err)
			return nil, err
		}
		if ok {
			if err := h.upgradeSchema(ctx); err != nil {
				h.Close()
				span.RecordError(err)
				return nil, err
			}
			span.SetAttributes(attribute.Bool("reused", true))
			return h, nil
		}
	}

	if err := h.createSchema(ctx); err != nil {
		h.Close()
		span.RecordError(err)
		return nil, err
	}
	return h, nil
}

// Open opens an existing packfile read-only, for listing and extraction.
func Open(ctx context.Context, path string) (*Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}

	h, err := openFile(ctx, path, true)
	if err != nil {
		return nil, err
	}
	ok, err := h.hasSchema(ctx)
	if err != nil {
		h.Close()
		return nil, err
	}
	if !ok {
		h.Close()
		return nil, fmt.Errorf("%w: %s has no packfile tables", ErrCorrupt, path)
	}
	sums, err := h.hasChecksumColumn(ctx)
	if err != nil {
		h.Close()
		return nil, err
	}
	h.noChecksums = !sums
	return h, nil
}

// CheckTarget applies the creation-mode policy to path without writing
// anything. It reports whether the file already exists.
func CheckTarget(path string, mode Mode) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return true, fmt.Errorf("packfile %s is a directory", path)
	}
	if mode == ErrorIfExists {
		return true, fmt.Errorf("%w: %s exists and append/overwrite not specified", ErrAlreadyExists, path)
	}
	return true, nil
}

// Path returns the durable file backing the handle, or "" for staging.
func (h *Handle) Path() string {
	return h.path
}

// InMemory reports whether the handle is an in-memory staging database.
func (h *Handle) InMemory() bool {
	return h.path == ""
}

// Close releases the database and, for staging handles, the pinned
// connection. The staging contents are gone after Close.
func (h *Handle) Close() error {
	var errs []error
	if h.db != nil {
		errs = append(errs, h.db.Close())
	}
	if h.keep != nil {
		errs = append(errs, h.keep.Close())
	}
	if h.anchor != nil {
		errs = append(errs, h.anchor.Close())
	}
	return errors.Join(errs...)
}

func openFile(ctx context.Context, path string, readOnly bool) (*Handle, error) {
	dsn, err := fileDSN(path, readOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to open packfile %s: %w", path, err)
	}

	db, err := openDB(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open packfile %s: %w", path, err)
	}
	return &Handle{db: db, path: path}, nil
}

// fileDSN builds a file: URI for path. The path is percent-escaped so that
// '?', '#' and '%' in file names reach SQLite literally.
func fileDSN(path string, readOnly bool) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("_foreign_keys", "1")
	if readOnly {
		params.Set("mode", "ro")
	}

	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(abs),
		RawQuery: params.Encode(),
	}
	return u.String(), nil
}

func openMemory(ctx context.Context) (*Handle, error) {
	dsn := fmt.Sprintf("file:packfile-%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())

	anchor, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open staging database: %w", err)
	}
	keep, err := anchor.Conn(ctx)
	if err != nil {
		anchor.Close()
		return nil, fmt.Errorf("failed to pin staging database: %w", err)
	}

	db, err := openDB(ctx, dsn)
	if err != nil {
		keep.Close()
		anchor.Close()
		return nil, fmt.Errorf("failed to open staging database: %w", err)
	}
	return &Handle{db: db, anchor: anchor, keep: keep}, nil
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	// One producer, one reader: a single connection avoids SQLITE_BUSY between
	// pooled connections on the same file.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
