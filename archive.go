package archivepath

import (
	"fmt"

	"github.com/meigma/archivepath/internal/pathutil"
)

// Archive is an open zip or tar archive. It owns the underlying file
// handles and, in write and append modes, the session's committed-path
// set enforcing the no-overwrite rule.
//
// An Archive moves through three states: it is created Open by OpenZip or
// OpenTar, and Close moves it to Closed. Operations on a closed archive
// fail with ErrSessionClosed; closing twice is a no-op.
//
// A write session must not be shared across goroutines: the committed-path
// set is not synchronized.
type Archive struct {
	filename string
	format   Format
	mode     openMode
	b        backend

	// committed maps internal paths written in this session (plus, in
	// append mode, pre-existing member names) to their directory flag.
	committed map[string]bool
	closed    bool
}

// OpenZip opens a zip archive. Mode is "r" (read), "w" (write a new
// archive) or "a" (append to an existing one; created if missing).
//
// The caller must Close the returned archive on every exit path; in write
// modes, an unclosed archive is left without its central directory and is
// unreadable.
func OpenZip(filename, mode string, opts ...Option) (*Archive, error) {
	om, err := parseZipMode(mode)
	if err != nil {
		return nil, fmt.Errorf("archivepath: %w", err)
	}
	o := defaultOpenOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.comment) > 65535 {
		return nil, fmt.Errorf("archivepath: comment exceeds 65535 bytes")
	}

	b, err := newZipBackend(filename, om, o)
	if err != nil {
		return nil, fmt.Errorf("archivepath: %w", err)
	}
	return newArchive(filename, FormatZip, om, b, b.existing), nil
}

// OpenTar opens a tar archive. Mode is "r" (read, auto-detecting gzip,
// bzip2, xz or zstd compression), "r:gz", "r:bz2", "r:xz", "r:zst" (read
// with a fixed codec), "w" and the matching "w:<codec>" forms (write), or
// "a" (append to an uncompressed tar; created if missing).
//
// The caller must Close the returned archive on every exit path; in write
// modes, an unclosed archive is missing its end-of-archive blocks and any
// buffered compressor output.
func OpenTar(filename, mode string, opts ...Option) (*Archive, error) {
	om, comp, err := parseTarMode(mode)
	if err != nil {
		return nil, fmt.Errorf("archivepath: %w", err)
	}
	o := defaultOpenOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.comment != "" {
		return nil, fmt.Errorf("archivepath: tar archives have no comment field")
	}

	b, err := newTarBackend(filename, om, comp, o)
	if err != nil {
		return nil, fmt.Errorf("archivepath: %w", err)
	}
	return newArchive(filename, FormatTar, om, b, b.existing), nil
}

func newArchive(filename string, format Format, mode openMode, b backend, existing map[string]bool) *Archive {
	a := &Archive{
		filename: filename,
		format:   format,
		mode:     mode,
		b:        b,
	}
	if mode != modeRead {
		a.committed = make(map[string]bool, len(existing))
		for name, isDir := range existing {
			a.committed[name] = isDir
		}
	}
	return a
}

// Filename returns the archive's path on the real filesystem.
func (a *Archive) Filename() string {
	return a.filename
}

// Format returns the archive's container format.
func (a *Archive) Format() Format {
	return a.format
}

// Root returns the path addressing the archive root.
func (a *Archive) Root() Path {
	return Path{arch: a}
}

// Path returns the path addressing the given internal location, which may
// contain multiple slash-separated segments.
func (a *Archive) Path(at string) Path {
	return a.Root().Join(at)
}

// Close finalizes the archive's trailing metadata and releases the
// underlying handles. Closing an already-closed archive is a no-op.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	if err := a.b.close(); err != nil {
		return fmt.Errorf("archivepath: %w", err)
	}
	return nil
}

// readable checks that read operations are currently permitted.
func (a *Archive) readable() error {
	if a.closed {
		return ErrSessionClosed
	}
	if a.mode != modeRead {
		return ErrNotReadable
	}
	return nil
}

// writable checks that write operations are currently permitted.
func (a *Archive) writable() error {
	if a.closed {
		return ErrSessionClosed
	}
	if a.mode == modeRead {
		return ErrNotWritable
	}
	return nil
}

// commit records a written path so later writes to it are rejected.
func (a *Archive) commit(name string, isDir bool) {
	a.committed[name] = isDir
}

// committedState reports whether name was committed in this session and,
// if so, whether as a directory.
func (a *Archive) committedState(name string) (isDir, ok bool) {
	isDir, ok = a.committed[name]
	return isDir, ok
}

// committedImpliesDir reports whether name is an ancestor of any committed
// path, making it an implied directory in this session.
func (a *Archive) committedImpliesDir(name string) bool {
	for c := range a.committed {
		if pathutil.IsWithin(c, name) {
			return true
		}
	}
	return false
}
