package archivepath

import "errors"

// Sentinel errors. Use errors.Is to classify failures.
var (
	// ErrNotFound is returned when an internal path has no matching member.
	ErrNotFound = errors.New("archivepath: path not found")

	// ErrNotAFile is returned when a file operation targets a directory.
	ErrNotAFile = errors.New("archivepath: not a file")

	// ErrNotADirectory is returned when a directory operation targets a file.
	ErrNotADirectory = errors.New("archivepath: not a directory")

	// ErrFileExists is returned when writing to a path already committed in
	// this session. Archive members cannot be overwritten in place.
	ErrFileExists = errors.New("archivepath: file already exists")

	// ErrMalformedArchive is returned when the underlying container cannot
	// be parsed.
	ErrMalformedArchive = errors.New("archivepath: malformed archive")

	// ErrSessionClosed is returned by operations on a closed archive.
	ErrSessionClosed = errors.New("archivepath: session closed")

	// ErrDecode is returned when text decoding or encoding fails.
	ErrDecode = errors.New("archivepath: text decoding failed")

	// ErrNotWritable is returned by write operations on a read-mode archive.
	ErrNotWritable = errors.New("archivepath: archive not opened for writing")

	// ErrNotReadable is returned by read operations on a write-mode archive.
	ErrNotReadable = errors.New("archivepath: archive not opened for reading")

	// ErrInvalidPath is returned for absolute internal paths or paths
	// containing ".." segments. Archives never store such names, so
	// constructing one is a usage error rather than a lookup miss.
	ErrInvalidPath = errors.New("archivepath: invalid path")
)
