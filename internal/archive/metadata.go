package archive

import (
	"io/fs"
	"os"
	"time"

	"github.com/djherbis/times"
	"github.com/maneesh/packfile/internal/models"
)

// stamp is the metadata captured from a source entry at insertion time.
type stamp struct {
	attributes uint32
	created    int64
	modified   int64
	accessed   int64
}

func statStamp(info fs.FileInfo) stamp {
	ts := times.Get(info)

	// POSIX has no settable creation time; fall back to the inode change time
	// and then to the modification time where birth time is unavailable.
	created := ts.ModTime()
	if ts.HasBirthTime() {
		created = ts.BirthTime()
	} else if ts.HasChangeTime() {
		created = ts.ChangeTime()
	}

	return stamp{
		attributes: uint32(info.Mode()),
		created:    created.UTC().Unix(),
		modified:   ts.ModTime().UTC().Unix(),
		accessed:   ts.AccessTime().UTC().Unix(),
	}
}

// restoreMetadata applies permission bits and access/modification times.
// Creation time is stored but cannot be set on most platforms.
func restoreMetadata(path string, attributes uint32, accessed, modified int64) error {
	if attributes != models.UnknownAttributes {
		if err := os.Chmod(path, fs.FileMode(attributes).Perm()); err != nil {
			return err
		}
	}
	if accessed == 0 && modified == 0 {
		return nil
	}
	return os.Chtimes(path, time.Unix(accessed, 0), time.Unix(modified, 0))
}
