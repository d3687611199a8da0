package storage

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Column names match the first packfile layout so containers stay readable
// by older tooling that only knows dirs and files.
const (
	createDirsTable = `CREATE TABLE IF NOT EXISTS dirs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dirname TEXT NOT NULL,
		attributes INT4,
		creationTime INT8,
		writeTime INT8,
		accessTime INT8,
		parent INT8
	)`

	insertRootDir = `INSERT INTO dirs (id, dirname, parent) VALUES (0, '.', -1)`

	createFilesTable = `CREATE TABLE IF NOT EXISTS files (
		filename TEXT NOT NULL,
		dir INTEGER NOT NULL,
		attributes INT4,
		creationTime INT8,
		writeTime INT8,
		accessTime INT8,
		encoding INT1,
		data BLOB,
		checksum TEXT,
		FOREIGN KEY (dir) REFERENCES dirs (id)
	)`

	createFilesDirIndex   = `CREATE INDEX IF NOT EXISTS files_dir ON files (dir)`
	createDirsParentIndex = `CREATE INDEX IF NOT EXISTS dirs_parent ON dirs (parent)`
)

// createSchema creates both tables and the root row in one transaction.
func (h *Handle) createSchema(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "sqlite.create_schema")
	defer span.End()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: begin schema transaction: %w", ErrPersistence, err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		createDirsTable,
		insertRootDir,
		createFilesTable,
		createFilesDirIndex,
		createDirsParentIndex,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			span.RecordError(err)
			return fmt.Errorf("%w: create schema: %w", ErrPersistence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: commit schema: %w", ErrPersistence, err)
	}
	return nil
}

// hasSchema reports whether both packfile tables are present.
func (h *Handle) hasSchema(ctx context.Context) (bool, error) {
	var n int
	err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('dirs', 'files')`,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}

	switch n {
	case 0:
		return false, nil
	case 2:
		return true, nil
	default:
		return false, fmt.Errorf("%w: partial schema", ErrCorrupt)
	}
}

func (h *Handle) hasChecksumColumn(ctx context.Context) (bool, error) {
	var n int
	err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('files') WHERE name = 'checksum'`,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to inspect files table: %w", err)
	}
	return n == 1, nil
}

// upgradeSchema adds the checksum column to packfiles written before it
// existed. Rows already present keep a NULL checksum and are not verified.
func (h *Handle) upgradeSchema(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "sqlite.upgrade_schema")
	defer span.End()

	ok, err := h.hasChecksumColumn(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if ok {
		return nil
	}

	if _, err := h.db.ExecContext(ctx, `ALTER TABLE files ADD COLUMN checksum TEXT`); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: add checksum column: %w", ErrPersistence, err)
	}
	span.SetAttributes(attribute.Bool("upgraded", true))
	return nil
}
