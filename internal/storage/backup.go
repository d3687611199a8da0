package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BackupTo copies the whole database behind h into dest. The copy is written
// to a temporary file next to dest and renamed over it once complete, so dest
// is either the previous file or the full new one.
func (h *Handle) BackupTo(ctx context.Context, dest string) error {
	ctx, span := tracer.Start(ctx, "sqlite.backup_to",
		trace.WithAttributes(
			attribute.String("destination", dest),
			attribute.Bool("in_memory", h.InMemory()),
		),
	)
	defer span.End()

	tmp := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+"."+uuid.NewString()+".tmp")

	dsn, err := fileDSN(tmp, false)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: open %s: %w", ErrPersistence, tmp, err)
	}
	dst, err := sql.Open(driverName, dsn)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: open %s: %w", ErrPersistence, tmp, err)
	}

	if err := copyDatabase(ctx, dst, h.db); err != nil {
		dst.Close()
		os.Remove(tmp)
		span.RecordError(err)
		return fmt.Errorf("%w: backup to %s: %w", ErrPersistence, dest, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		span.RecordError(err)
		return fmt.Errorf("%w: close %s: %w", ErrPersistence, tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		span.RecordError(err)
		return fmt.Errorf("%w: commit %s: %w", ErrPersistence, dest, err)
	}

	span.SetAttributes(attribute.Bool("backup_success", true))
	return nil
}

// BackupFrom replaces the contents of h with the packfile at src. It is used
// to stage an existing packfile in memory before appending to it.
func (h *Handle) BackupFrom(ctx context.Context, src string) error {
	ctx, span := tracer.Start(ctx, "sqlite.backup_from",
		trace.WithAttributes(
			attribute.String("source", src),
			attribute.Bool("in_memory", h.InMemory()),
		),
	)
	defer span.End()

	source, err := Open(ctx, src)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer source.Close()

	if err := copyDatabase(ctx, h.db, source.db); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: backup from %s: %w", ErrPersistence, src, err)
	}
	if err := h.upgradeSchema(ctx); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(attribute.Bool("backup_success", true))
	return nil
}

// copyDatabase runs the SQLite online backup of src's main database into
// dst's main database in a single step.
func copyDatabase(ctx context.Context, dst, src *sql.DB) error {
	dstConn, err := dst.Conn(ctx)
	if err != nil {
		return err
	}
	defer dstConn.Close()

	srcConn, err := src.Conn(ctx)
	if err != nil {
		return err
	}
	defer srcConn.Close()

	return dstConn.Raw(func(dstDriver any) error {
		return srcConn.Raw(func(srcDriver any) error {
			to, ok := dstDriver.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected destination connection %T", dstDriver)
			}
			from, ok := srcDriver.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected source connection %T", srcDriver)
			}

			b, err := to.Backup("main", from, "main")
			if err != nil {
				return err
			}
			done, err := b.Step(-1)
			if err != nil {
				b.Finish()
				return err
			}
			if !done {
				b.Finish()
				return errors.New("backup did not complete in one step")
			}
			return b.Finish()
		})
	})
}
