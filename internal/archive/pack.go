package archive

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/maneesh/packfile/internal/codec"
	"github.com/maneesh/packfile/internal/storage"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PackOptions describes one pack run.
type PackOptions struct {
	Sources []string
	Include []string
	Exclude []string

	// Target is the packfile path.
	Target string
	Mode   storage.Mode

	Compression codec.Kind

	// NoMemoryBuffer writes rows straight into Target instead of staging them
	// in memory and committing the whole packfile at the end.
	NoMemoryBuffer bool

	SkipCompression []SkipCompressionFunc
}

// Pack archives opts.Sources into opts.Target and returns the resulting
// packfile statistics.
//
// With the memory buffer enabled (the default), a failed run leaves Target
// untouched. Without it, rows inserted before the failure stay in Target.
func Pack(ctx context.Context, opts PackOptions) (storage.Stats, error) {
	ctx, span := tracer.Start(ctx, "pack",
		trace.WithAttributes(
			attribute.String("target", opts.Target),
			attribute.String("mode", opts.Mode.String()),
			attribute.String("compression", opts.Compression.String()),
			attribute.Bool("memory_buffer", !opts.NoMemoryBuffer),
		),
	)
	defer span.End()

	stats, err := pack(ctx, opts)
	if err != nil {
		span.RecordError(err)
		return storage.Stats{}, err
	}
	span.SetAttributes(
		attribute.Int64("dirs", stats.Dirs),
		attribute.Int64("files", stats.Files),
		attribute.Int64("payload_bytes", stats.PayloadBytes),
	)
	return stats, nil
}

func pack(ctx context.Context, opts PackOptions) (storage.Stats, error) {
	if !opts.Compression.Valid() {
		return storage.Stats{}, fmt.Errorf("%w: %d", codec.ErrUnsupportedCodec, opts.Compression)
	}
	if strings.TrimSpace(opts.Target) == "" {
		return storage.Stats{}, fmt.Errorf("packfile path is required")
	}
	sources, err := checkSources(opts.Sources)
	if err != nil {
		return storage.Stats{}, err
	}
	if err := validateMasks(opts.Include, opts.Exclude); err != nil {
		return storage.Stats{}, err
	}

	var store *storage.Handle
	if opts.NoMemoryBuffer {
		store, err = storage.Initialize(ctx, opts.Target, opts.Mode)
		if err != nil {
			return storage.Stats{}, err
		}
	} else {
		exists, err := storage.CheckTarget(opts.Target, opts.Mode)
		if err != nil {
			return storage.Stats{}, err
		}
		store, err = storage.Initialize(ctx, "", opts.Mode)
		if err != nil {
			return storage.Stats{}, err
		}
		if exists && opts.Mode == storage.AppendIfExists {
			if err := store.BackupFrom(ctx, opts.Target); err != nil {
				store.Close()
				return storage.Stats{}, err
			}
		}
	}
	defer store.Close()

	builder, err := NewBuilder(store, BuildOptions{
		Include:         opts.Include,
		Exclude:         opts.Exclude,
		SkipCompression: opts.SkipCompression,
	})
	if err != nil {
		return storage.Stats{}, err
	}
	if err := builder.Add(ctx, opts.Compression, sources...); err != nil {
		return storage.Stats{}, err
	}

	if store.InMemory() {
		if err := store.BackupTo(ctx, opts.Target); err != nil {
			return storage.Stats{}, err
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return storage.Stats{}, err
	}

	log.WithFields(log.Fields{
		"packfile":      opts.Target,
		"dirs":          stats.Dirs,
		"files":         stats.Files,
		"payload_bytes": stats.PayloadBytes,
	}).Info("packfile written")
	return stats, nil
}

// checkSources trims the source list and makes sure every entry exists before
// the target is touched.
func checkSources(sources []string) ([]string, error) {
	var out []string
	for _, s := range sources {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := os.Stat(s); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceNotFound, err)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no source paths given", ErrSourceNotFound)
	}
	return out, nil
}

// Unpack restores the packfile at container into dest.
func Unpack(ctx context.Context, container, dest string, opts ...ExtractOption) error {
	ctx, span := tracer.Start(ctx, "unpack",
		trace.WithAttributes(
			attribute.String("packfile", container),
			attribute.String("destination", dest),
		),
	)
	defer span.End()

	store, err := storage.Open(ctx, container)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer store.Close()

	if err := NewExtractor(store, opts...).ExtractAll(ctx, dest); err != nil {
		span.RecordError(err)
		return err
	}

	log.WithFields(log.Fields{"packfile": store.Path(), "destination": dest}).Info("packfile extracted")
	return nil
}

// List returns the relative path of every file in the packfile at container.
func List(ctx context.Context, container string) ([]string, error) {
	store, err := storage.Open(ctx, container)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return NewLister(store).ListAll(ctx)
}
