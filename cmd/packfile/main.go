// Package main is the packfile command line tool.
//
// Usage:
//
//	packfile pack -s "dir1;dir2" -f out.pack [-c 0..5] [--overwrite|--append]
//	packfile unpack [-d dest] out.pack
//	packfile list out.pack
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/maneesh/packfile/internal/config"
	"github.com/maneesh/packfile/internal/tracing"
	log "github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	log.SetOutput(stderr)

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	log.SetLevel(cfg.Level())

	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.WithError(err).Warn("error shutting down tracer")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "pack":
		err = runPack(ctx, cfg, args[1:], stdout, stderr)
	case "unpack":
		err = runUnpack(ctx, args[1:], stdout, stderr)
	case "list":
		err = runList(ctx, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return 1
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// listFlag collects ';' separated values, across repeated flags too.
type listFlag []string

func (l *listFlag) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ";")
}

func (l *listFlag) Set(value string) error {
	for _, v := range strings.Split(value, ";") {
		if v = strings.TrimSpace(v); v != "" {
			*l = append(*l, v)
		}
	}
	return nil
}

// parseInterspersed parses fs and returns the positional arguments, allowing
// flags to follow them.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `packfile - archive directory trees into a single SQLite file

Usage:
  packfile <command> [options]

Commands:
  pack      Archive files and directories into a packfile
  unpack    Restore a packfile into a directory
  list      Print every file stored in a packfile

Pack Options:
  -s, --source <a;b>       Files or directories to pack (required)
  -i, --include <masks>    File masks to include, e.g. "*.txt;*.md" (default: *)
  -x, --exclude <masks>    File masks to exclude
  -f, --packfile <path>    Packfile to write (required)
  -c, --compression <n>    0 none, 1 deflate, 2 gzip, 3 brotli, 4 zstd, 5 lz4
  --overwrite              Replace an existing packfile
  --append                 Add to an existing packfile
  --no-memory-buffer       Write rows straight to the packfile
  --skip-compressed        Store small and already compressed files as is

Unpack Options:
  -d, --destination <dir>  Extraction directory (default: .)
  --no-verify              Skip content checksum verification

Environment:
  PACKFILE_COMPRESSION, PACKFILE_MEMORY_BUFFER, PACKFILE_SKIP_COMPRESSED,
  PACKFILE_SKIP_MIN_SIZE, PACKFILE_LOG_LEVEL, PACKFILE_OTLP_ENDPOINT,
  PACKFILE_SERVICE_NAME

Examples:
  packfile pack -s "./docs;./src" -i "*.go;*.md" -f project.pack -c 4
  packfile list project.pack
  packfile unpack -d ./restored project.pack
`)
}
