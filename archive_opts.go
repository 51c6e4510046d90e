package archivepath

import (
	"archive/zip"
	"time"

	"github.com/klauspost/compress/flate"
)

// Option configures an archive session at open time.
type Option func(*openOptions)

type openOptions struct {
	level     int
	zipMethod uint16
	comment   string
	modTime   time.Time
}

func defaultOpenOptions() openOptions {
	return openOptions{
		level:     flate.DefaultCompression,
		zipMethod: zip.Deflate,
	}
}

// WithCompressionLevel sets the compression level for written members.
//
// For zip (Deflate) and gzip, levels 0 through 9 are accepted; for bzip2
// and zstd, 1 through 9. xz has no level control and ignores this option.
func WithCompressionLevel(level int) Option {
	return func(o *openOptions) {
		o.level = level
	}
}

// WithStored disables compression for written zip members, storing them
// verbatim. Ignored for tar, where the mode string selects the codec.
func WithStored() Option {
	return func(o *openOptions) {
		o.zipMethod = zip.Store
	}
}

// WithComment sets the zip archive comment, written to the end of the
// central directory. Zip only; tar has no comment field.
func WithComment(comment string) Option {
	return func(o *openOptions) {
		o.comment = comment
	}
}

// WithModTime fixes the modification time recorded for members written
// with WriteBytes, WriteText and Mkdir. The default is the wall clock at
// write time. Members copied from disk keep their source timestamps.
func WithModTime(t time.Time) Option {
	return func(o *openOptions) {
		o.modTime = t
	}
}
