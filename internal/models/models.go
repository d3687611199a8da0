package models

// RootDirID is the id of the archive root directory row.
const RootDirID int64 = 0

// NoParentID terminates parent-chain walks; only the root carries it.
const NoParentID int64 = -1

// RootDirName is the name stored for the archive root.
const RootDirName = "."

// UnknownAttributes marks an entry whose attributes were never recorded.
// No fs.FileMode has every bit set, so it cannot collide with a real mode.
const UnknownAttributes = ^uint32(0)

// DirEntry represents a directory row stored in the dirs table
type DirEntry struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Attributes uint32 `json:"attributes"`
	CreatedAt  int64  `json:"created_at"`
	ModifiedAt int64  `json:"modified_at"`
	AccessedAt int64  `json:"accessed_at"`
	ParentID   int64  `json:"parent_id"`
}

// IsRoot reports whether d is the archive root sentinel.
func (d *DirEntry) IsRoot() bool {
	return d.ParentID < 0
}

// FileEntry represents a file row stored in the files table
type FileEntry struct {
	Name        string `json:"name"`
	DirID       int64  `json:"dir_id"`
	Attributes  uint32 `json:"attributes"`
	CreatedAt   int64  `json:"created_at"`
	ModifiedAt  int64  `json:"modified_at"`
	AccessedAt  int64  `json:"accessed_at"`
	Compression uint8  `json:"compression"`
	// Payload is nil for zero-length files.
	Payload  []byte `json:"-"`
	Checksum string `json:"checksum,omitempty"`
}
