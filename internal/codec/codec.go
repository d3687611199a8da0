// Package codec implements the stateless payload transforms applied to file
// contents before they are stored in a packfile.
//
// A Kind is persisted next to every file row, so the numeric values below are
// part of the container format and must never be renumbered.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Kind identifies the compression algorithm used for a payload.
type Kind uint8

const (
	None Kind = iota
	Deflate
	GZip
	Brotli
	Zstd
	LZ4
)

// MaxKind is the highest supported Kind.
const MaxKind = LZ4

var (
	// ErrUnsupportedCodec is returned for a compression kind outside the known set.
	ErrUnsupportedCodec = errors.New("codec: unsupported compression kind")

	// ErrDecompression is returned when a payload cannot be decoded.
	ErrDecompression = errors.New("codec: decompression failed")
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Deflate:
		return "deflate"
	case GZip:
		return "gzip"
	case Brotli:
		return "brotli"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	return k <= MaxKind
}

// ParseKind converts a numeric level, as accepted on the command line, to a Kind.
func ParseKind(level int) (Kind, error) {
	if level < 0 || level > int(MaxKind) {
		return None, fmt.Errorf("%w: %d", ErrUnsupportedCodec, level)
	}
	return Kind(level), nil
}

// Encode compresses data with the given kind. None returns data unchanged.
func Encode(data []byte, kind Kind) ([]byte, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCodec, kind)
	}
	if kind == None {
		return data, nil
	}
	if len(data) == 0 {
		return []byte{}, nil
	}

	if kind == Zstd {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	}

	var buf bytes.Buffer
	w, err := newWriter(&buf, kind)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("%s encode: %w", kind, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s encode: %w", kind, err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode for the same kind.
func Decode(data []byte, kind Kind) ([]byte, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCodec, kind)
	}
	if kind == None {
		return data, nil
	}
	if len(data) == 0 {
		return []byte{}, nil
	}

	if kind == Zstd {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
		}
		return out, nil
	}

	r, err := newReader(bytes.NewReader(data), kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	return out, nil
}

func newWriter(w io.Writer, kind Kind) (io.WriteCloser, error) {
	switch kind {
	case Deflate:
		return flate.NewWriter(w, flate.DefaultCompression)
	case GZip:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	case Brotli:
		return brotli.NewWriterLevel(w, brotli.DefaultCompression), nil
	case LZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCodec, kind)
	}
}

func newReader(r io.Reader, kind Kind) (io.ReadCloser, error) {
	switch kind {
	case Deflate:
		return flate.NewReader(r), nil
	case GZip:
		return gzip.NewReader(r)
	case Brotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCodec, kind)
	}
}
