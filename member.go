package archivepath

import (
	"io"
	"io/fs"
	"time"
)

// Member is the metadata of one archive entry, as stored by the format.
// Members are produced by scans and never mutated.
type Member struct {
	// Name is the normalized internal path: forward slashes, no leading or
	// trailing slash.
	Name string

	// Size is the uncompressed size in bytes. Zero for directories.
	Size int64

	// Mode holds the member's permission and type bits.
	Mode fs.FileMode

	// ModTime is the member's modification time.
	ModTime time.Time

	// IsDir reports whether the member is a directory marker.
	IsDir bool

	// open returns the member's byte stream. For tar members it is only
	// valid while the producing scan is positioned at this member, so
	// callers read before advancing.
	open func() (io.ReadCloser, error)
}

// Open returns a reader over the member's content.
func (m Member) Open() (io.ReadCloser, error) {
	return m.open()
}

// isRegular reports whether the member is a plain file (not a directory,
// symlink or device).
func (m Member) isRegular() bool {
	return !m.IsDir && m.Mode&fs.ModeType == 0
}
