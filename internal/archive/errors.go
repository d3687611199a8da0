package archive

import (
	"errors"

	"github.com/maneesh/packfile/internal/codec"
	"github.com/maneesh/packfile/internal/storage"
)

var (
	// ErrSourceNotFound is returned when a pack input cannot be read.
	ErrSourceNotFound = errors.New("packfile: source not readable")

	// ErrExtraction is returned when an entry cannot be written to the destination.
	ErrExtraction = errors.New("packfile: extraction failed")

	// ErrChecksumMismatch is returned when extracted content does not match its stored digest.
	ErrChecksumMismatch = errors.New("packfile: checksum mismatch")
)

// Errors re-exported from storage and codec.
var (
	// ErrAlreadyExists is returned when the target exists under storage.ErrorIfExists.
	ErrAlreadyExists = storage.ErrAlreadyExists

	// ErrPersistence is returned when a row cannot be written.
	ErrPersistence = storage.ErrPersistence

	// ErrNotFound is returned when a packfile to read does not exist.
	ErrNotFound = storage.ErrNotFound

	// ErrCorrupt is returned when the stored tree is inconsistent.
	ErrCorrupt = storage.ErrCorrupt

	// ErrUnsupportedCodec is returned for an unknown compression kind.
	ErrUnsupportedCodec = codec.ErrUnsupportedCodec
)
