package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/maneesh/packfile/internal/archive"
	"github.com/maneesh/packfile/internal/codec"
	"github.com/maneesh/packfile/internal/config"
	"github.com/maneesh/packfile/internal/storage"
)

type packConfig struct {
	sources        listFlag
	include        listFlag
	exclude        listFlag
	packfile       string
	compression    int
	overwrite      bool
	append         bool
	noMemoryBuffer bool
	skipCompressed bool
}

func runPack(ctx context.Context, env *config.Config, args []string, stdout, stderr io.Writer) error {
	cfg := packConfig{
		compression:    env.Compression,
		noMemoryBuffer: !env.MemoryBuffer,
		skipCompressed: env.SkipCompressed,
	}

	fs := flag.NewFlagSet("pack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	for _, name := range []string{"s", "source"} {
		fs.Var(&cfg.sources, name, "files or directories to pack, ';' separated")
	}
	for _, name := range []string{"i", "include"} {
		fs.Var(&cfg.include, name, "file masks to include, ';' separated")
	}
	for _, name := range []string{"x", "exclude"} {
		fs.Var(&cfg.exclude, name, "file masks to exclude, ';' separated")
	}
	for _, name := range []string{"f", "packfile"} {
		fs.StringVar(&cfg.packfile, name, "", "packfile to write")
	}
	for _, name := range []string{"c", "compression"} {
		fs.IntVar(&cfg.compression, name, cfg.compression, "compression level 0..5")
	}
	fs.BoolVar(&cfg.overwrite, "overwrite", false, "replace an existing packfile")
	fs.BoolVar(&cfg.append, "append", false, "add to an existing packfile")
	fs.BoolVar(&cfg.noMemoryBuffer, "no-memory-buffer", cfg.noMemoryBuffer, "write rows straight to the packfile")
	fs.BoolVar(&cfg.skipCompressed, "skip-compressed", cfg.skipCompressed, "store small and already compressed files as is")

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(positional) > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(positional, " "))
	}

	kind, err := codec.ParseKind(cfg.compression)
	if err != nil {
		return err
	}
	if cfg.overwrite && cfg.append {
		return errors.New("--overwrite and --append are mutually exclusive")
	}
	if len(cfg.sources) == 0 {
		return errors.New("--source is required")
	}
	if cfg.packfile == "" {
		return errors.New("--packfile is required")
	}

	mode := storage.ErrorIfExists
	switch {
	case cfg.overwrite:
		mode = storage.OverwriteIfExists
	case cfg.append:
		mode = storage.AppendIfExists
	}

	opts := archive.PackOptions{
		Sources:        cfg.sources,
		Include:        cfg.include,
		Exclude:        cfg.exclude,
		Target:         cfg.packfile,
		Mode:           mode,
		Compression:    kind,
		NoMemoryBuffer: cfg.noMemoryBuffer,
	}
	if cfg.skipCompressed {
		opts.SkipCompression = []archive.SkipCompressionFunc{archive.DefaultSkipCompression(env.SkipMinSize)}
	}

	stats, err := archive.Pack(ctx, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "packed %d files in %d directories into %s (%s stored, %s)\n",
		stats.Files, stats.Dirs, cfg.packfile, humanize.Bytes(uint64(stats.PayloadBytes)), kind)
	return nil
}

func runUnpack(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		destination = "."
		noVerify    bool
	)

	fs := flag.NewFlagSet("unpack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	for _, name := range []string{"d", "destination"} {
		fs.StringVar(&destination, name, destination, "extraction directory")
	}
	fs.BoolVar(&noVerify, "no-verify", false, "skip content checksum verification")

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return errors.New("unpack takes exactly one packfile")
	}

	if err := archive.Unpack(ctx, positional[0], destination,
		archive.WithChecksumVerification(!noVerify)); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "unpacked %s into %s\n", positional[0], destination)
	return nil
}

func runList(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return errors.New("list takes exactly one packfile")
	}

	entries, err := archive.List(ctx, positional[0])
	if err != nil {
		return err
	}
	for _, entry := range entries {
		fmt.Fprintln(stdout, entry)
	}
	return nil
}
