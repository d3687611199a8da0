package archive

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// SkipCompressionFunc returns true when a file should be stored uncompressed.
// It is called once per file and should be inexpensive.
type SkipCompressionFunc func(path string, info fs.FileInfo) bool

// DefaultSkipCompression returns a SkipCompressionFunc that skips small files
// and known already-compressed extensions.
func DefaultSkipCompression(minSize int64) SkipCompressionFunc {
	return func(path string, info fs.FileInfo) bool {
		if info != nil && minSize > 0 && info.Size() < minSize {
			return true
		}
		ext := strings.ToLower(filepath.Ext(path))
		_, ok := compressedExts[ext]
		return ok
	}
}

var compressedExts = map[string]struct{}{
	".7z":   {},
	".br":   {},
	".bz2":  {},
	".flac": {},
	".gif":  {},
	".gz":   {},
	".jpeg": {},
	".jpg":  {},
	".lz4":  {},
	".mkv":  {},
	".mov":  {},
	".mp3":  {},
	".mp4":  {},
	".ogg":  {},
	".pack": {},
	".png":  {},
	".rar":  {},
	".tgz":  {},
	".webp": {},
	".xz":   {},
	".zip":  {},
	".zst":  {},
}

func validateMasks(masks ...[]string) error {
	for _, set := range masks {
		for _, mask := range set {
			if _, err := filepath.Match(mask, ""); err != nil {
				return fmt.Errorf("invalid mask %q: %w", mask, err)
			}
		}
	}
	return nil
}

// selectFiles returns the regular files among the direct children of a
// directory that match at least one include mask and no exclude mask.
// No include masks means "*". Subdirectories are never filtered here.
func selectFiles(entries []fs.DirEntry, include, exclude []string) []fs.DirEntry {
	if len(include) == 0 {
		include = []string{"*"}
	}

	var selected []fs.DirEntry
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !matchAny(include, entry.Name()) || matchAny(exclude, entry.Name()) {
			continue
		}
		selected = append(selected, entry)
	}
	return selected
}

func matchAny(masks []string, name string) bool {
	for _, mask := range masks {
		if ok, _ := filepath.Match(mask, name); ok {
			return true
		}
	}
	return false
}
