package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/maneesh/packfile/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Stats summarizes the contents of a packfile.
type Stats struct {
	Dirs         int64
	Files        int64
	PayloadBytes int64
}

// InsertDir stores a directory row under d.ParentID and returns its new id.
// The parent must already exist; since ids only grow, the parent id is always
// below the returned id, which extraction relies on.
func (h *Handle) InsertDir(ctx context.Context, d *models.DirEntry) (int64, error) {
	ctx, span := tracer.Start(ctx, "sqlite.insert_dir",
		trace.WithAttributes(
			attribute.String("dir_name", d.Name),
			attribute.Int64("parent_id", d.ParentID),
		),
	)
	defer span.End()

	query := `INSERT INTO dirs (dirname, attributes, creationTime, writeTime, accessTime, parent)
			  SELECT ?, ?, ?, ?, ?, ?
			  WHERE EXISTS (SELECT 1 FROM dirs WHERE id = ?)`

	res, err := h.db.ExecContext(ctx, query,
		d.Name, attributesValue(d.Attributes), d.CreatedAt, d.ModifiedAt, d.AccessedAt, d.ParentID, d.ParentID)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("%w: insert dir %q: %w", ErrPersistence, d.Name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("%w: insert dir %q: %w", ErrPersistence, d.Name, err)
	}
	if n == 0 {
		err := fmt.Errorf("%w: insert dir %q: parent %d does not exist", ErrPersistence, d.Name, d.ParentID)
		span.RecordError(err)
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("%w: insert dir %q: %w", ErrPersistence, d.Name, err)
	}
	if d.ParentID >= id {
		err := fmt.Errorf("%w: dir %q got id %d not above parent %d", ErrPersistence, d.Name, id, d.ParentID)
		span.RecordError(err)
		return 0, err
	}

	d.ID = id
	span.SetAttributes(attribute.Int64("dir_id", id))
	return id, nil
}

// InsertFile stores a file row. A nil payload is stored as NULL.
func (h *Handle) InsertFile(ctx context.Context, f *models.FileEntry) error {
	ctx, span := tracer.Start(ctx, "sqlite.insert_file",
		trace.WithAttributes(
			attribute.String("file_name", f.Name),
			attribute.Int64("dir_id", f.DirID),
			attribute.Int("compression", int(f.Compression)),
			attribute.Int("payload_bytes", len(f.Payload)),
		),
	)
	defer span.End()

	query := `INSERT INTO files (filename, dir, attributes, creationTime, writeTime, accessTime, encoding, data, checksum)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var payload any
	if f.Payload != nil {
		payload = f.Payload
	}
	checksum := sql.NullString{String: f.Checksum, Valid: f.Checksum != ""}

	_, err := h.db.ExecContext(ctx, query,
		f.Name, f.DirID, attributesValue(f.Attributes), f.CreatedAt, f.ModifiedAt, f.AccessedAt,
		int64(f.Compression), payload, checksum)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: insert file %q: %w", ErrPersistence, f.Name, err)
	}

	span.SetAttributes(attribute.Bool("insert_success", true))
	return nil
}

// GetDir fetches a single directory row.
func (h *Handle) GetDir(ctx context.Context, id int64) (*models.DirEntry, error) {
	ctx, span := tracer.Start(ctx, "sqlite.get_dir",
		trace.WithAttributes(attribute.Int64("dir_id", id)),
	)
	defer span.End()

	query := `SELECT id, dirname, attributes, creationTime, writeTime, accessTime, parent
			  FROM dirs WHERE id = ?`

	d, err := scanDir(h.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, fmt.Errorf("%w: directory %d not found", ErrCorrupt, id)
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query dir %d: %w", id, err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return d, nil
}

// DirIDs returns every directory id in ascending order, root first.
func (h *Handle) DirIDs(ctx context.Context) ([]int64, error) {
	ctx, span := tracer.Start(ctx, "sqlite.dir_ids")
	defer span.End()

	rows, err := h.db.QueryContext(ctx, `SELECT id FROM dirs ORDER BY id ASC`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query dir ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan dir id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating dir ids: %w", err)
	}

	span.SetAttributes(attribute.Int("dir_count", len(ids)))
	return ids, nil
}

// MaxDirID returns the highest assigned directory id, or -1 for an empty table.
func (h *Handle) MaxDirID(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "sqlite.max_dir_id")
	defer span.End()

	var maxID sql.NullInt64
	if err := h.db.QueryRowContext(ctx, `SELECT MAX(id) FROM dirs`).Scan(&maxID); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to query max dir id: %w", err)
	}
	if !maxID.Valid {
		return models.NoParentID, nil
	}
	return maxID.Int64, nil
}

// ChildDirs returns the direct subdirectories of parent in id order.
func (h *Handle) ChildDirs(ctx context.Context, parent int64) ([]*models.DirEntry, error) {
	ctx, span := tracer.Start(ctx, "sqlite.child_dirs",
		trace.WithAttributes(attribute.Int64("parent_id", parent)),
	)
	defer span.End()

	query := `SELECT id, dirname, attributes, creationTime, writeTime, accessTime, parent
			  FROM dirs
			  WHERE parent = ? AND id <> ?
			  ORDER BY id ASC`

	rows, err := h.db.QueryContext(ctx, query, parent, parent)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query subdirs of %d: %w", parent, err)
	}
	defer rows.Close()

	var dirs []*models.DirEntry
	for rows.Next() {
		d, err := scanDir(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan dir: %w", err)
		}
		dirs = append(dirs, d)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating subdirs: %w", err)
	}

	span.SetAttributes(attribute.Int("dir_count", len(dirs)))
	return dirs, nil
}

// FilesInDir returns the file rows owned by dir, payloads included, in
// insertion order.
func (h *Handle) FilesInDir(ctx context.Context, dir int64) ([]*models.FileEntry, error) {
	ctx, span := tracer.Start(ctx, "sqlite.files_in_dir",
		trace.WithAttributes(attribute.Int64("dir_id", dir)),
	)
	defer span.End()

	sumColumn := "checksum"
	if h.noChecksums {
		sumColumn = "NULL"
	}
	query := `SELECT filename, attributes, creationTime, writeTime, accessTime, encoding, data, ` + sumColumn + `
			  FROM files
			  WHERE dir = ?
			  ORDER BY rowid ASC`

	rows, err := h.db.QueryContext(ctx, query, dir)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query files of %d: %w", dir, err)
	}
	defer rows.Close()

	var files []*models.FileEntry
	for rows.Next() {
		var (
			f                          models.FileEntry
			attrs, ctime, mtime, atime sql.NullInt64
			encoding                   sql.NullInt64
			sum                        sql.NullString
		)
		if err := rows.Scan(&f.Name, &attrs, &ctime, &mtime, &atime, &encoding, &f.Payload, &sum); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		f.DirID = dir
		f.Attributes = scanAttributes(attrs)
		f.CreatedAt = ctime.Int64
		f.ModifiedAt = mtime.Int64
		f.AccessedAt = atime.Int64
		f.Compression = uint8(encoding.Int64)
		f.Checksum = sum.String
		files = append(files, &f)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating files: %w", err)
	}

	span.SetAttributes(attribute.Int("file_count", len(files)))
	return files, nil
}

// FileNamesInDir returns only the names of the files owned by dir, in
// insertion order, without loading payloads.
func (h *Handle) FileNamesInDir(ctx context.Context, dir int64) ([]string, error) {
	ctx, span := tracer.Start(ctx, "sqlite.file_names_in_dir",
		trace.WithAttributes(attribute.Int64("dir_id", dir)),
	)
	defer span.End()

	rows, err := h.db.QueryContext(ctx, `SELECT filename FROM files WHERE dir = ? ORDER BY rowid ASC`, dir)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query file names of %d: %w", dir, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan file name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating file names: %w", err)
	}
	return names, nil
}

// Stats counts directories (root excluded), files and stored payload bytes.
func (h *Handle) Stats(ctx context.Context) (Stats, error) {
	ctx, span := tracer.Start(ctx, "sqlite.stats")
	defer span.End()

	var s Stats
	query := `SELECT
				(SELECT COUNT(*) FROM dirs WHERE parent >= 0),
				(SELECT COUNT(*) FROM files),
				(SELECT COALESCE(SUM(LENGTH(data)), 0) FROM files)`
	if err := h.db.QueryRowContext(ctx, query).Scan(&s.Dirs, &s.Files, &s.PayloadBytes); err != nil {
		span.RecordError(err)
		return Stats{}, fmt.Errorf("failed to query stats: %w", err)
	}

	span.SetAttributes(
		attribute.Int64("dirs", s.Dirs),
		attribute.Int64("files", s.Files),
		attribute.Int64("payload_bytes", s.PayloadBytes),
	)
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDir(row rowScanner) (*models.DirEntry, error) {
	var (
		d                          models.DirEntry
		attrs, ctime, mtime, atime sql.NullInt64
	)
	if err := row.Scan(&d.ID, &d.Name, &attrs, &ctime, &mtime, &atime, &d.ParentID); err != nil {
		return nil, err
	}
	d.Attributes = scanAttributes(attrs)
	d.CreatedAt = ctime.Int64
	d.ModifiedAt = mtime.Int64
	d.AccessedAt = atime.Int64
	return &d, nil
}

// attributesValue stores UnknownAttributes as NULL.
func attributesValue(attrs uint32) any {
	if attrs == models.UnknownAttributes {
		return nil
	}
	return int64(attrs)
}

func scanAttributes(attrs sql.NullInt64) uint32 {
	if !attrs.Valid {
		return models.UnknownAttributes
	}
	return uint32(attrs.Int64)
}
