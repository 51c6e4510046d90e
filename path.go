package archivepath

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"maps"
	"os"
	"path"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/meigma/archivepath/internal/pathutil"
)

// Path is an immutable value addressing an entry inside an open Archive:
// the archive handle plus a normalized internal path. Navigation (Join,
// Parent) produces new values referencing the same archive and performs
// no I/O; terminal operations (Exists, ReadBytes, WriteBytes, ...) route
// through the archive's session.
//
// Two Paths are equal when they reference the same Archive and the same
// normalized internal path.
type Path struct {
	arch *Archive
	at   string
	// err poisons values built from invalid segments; the next terminal
	// operation surfaces it.
	err error
}

// At returns the normalized internal path: forward-slash segments,
// relative to the archive root. The root is the empty string.
func (p Path) At() string {
	return p.at
}

// Archive returns the archive this path is bound to.
func (p Path) Archive() *Archive {
	return p.arch
}

func (p Path) String() string {
	if p.arch == nil {
		return p.at
	}
	if p.at == "" {
		return p.arch.filename
	}
	return p.arch.filename + "::" + p.at
}

// Equal reports whether o addresses the same internal path in the same
// archive.
func (p Path) Equal(o Path) bool {
	return p.arch == o.arch && p.at == o.at && p.err == nil && o.err == nil
}

// Join appends slash-separated segments and returns the new path.
// Segments are normalized ("." collapses, empty segments drop out);
// absolute segments and ".." are usage errors, surfaced by the next
// terminal operation on the returned value.
func (p Path) Join(parts ...string) Path {
	if p.err != nil {
		return p
	}
	at := p.at
	for _, part := range parts {
		if strings.HasPrefix(part, "/") {
			return Path{arch: p.arch, err: fmt.Errorf("%w: absolute segment %q", ErrInvalidPath, part)}
		}
		norm, ok := pathutil.Normalize(part)
		if !ok {
			return Path{arch: p.arch, err: fmt.Errorf("%w: %q", ErrInvalidPath, part)}
		}
		if norm == "" {
			continue
		}
		if at == "" {
			at = norm
		} else {
			at += "/" + norm
		}
	}
	return Path{arch: p.arch, at: at}
}

// Parent returns the path with its last segment removed. The parent of
// the root is the root itself.
func (p Path) Parent() Path {
	if p.err != nil {
		return p
	}
	return Path{arch: p.arch, at: pathutil.Dir(p.at)}
}

// Name returns the final segment, or "" for the root.
func (p Path) Name() string {
	return pathutil.Base(p.at)
}

// Suffix returns the final segment's extension, including the dot, or ""
// if there is none.
func (p Path) Suffix() string {
	return path.Ext(p.Name())
}

// Parts returns the path's segments. The root has no parts.
func (p Path) Parts() []string {
	if p.at == "" {
		return nil
	}
	return strings.Split(p.at, "/")
}

func (p Path) check() error {
	if p.err != nil {
		return p.err
	}
	if p.arch == nil {
		return fmt.Errorf("%w: path not bound to an archive", ErrInvalidPath)
	}
	if p.arch.closed {
		return ErrSessionClosed
	}
	return nil
}

// Exists reports whether the path denotes an existing member or an
// ancestor of one. In write and append modes only entries committed in
// this session are visible.
func (p Path) Exists() (bool, error) {
	if err := p.check(); err != nil {
		return false, err
	}
	if p.at == "" {
		return true, nil
	}
	if p.arch.mode != modeRead {
		if _, ok := p.arch.committedState(p.at); ok {
			return true, nil
		}
		return p.arch.committedImpliesDir(p.at), nil
	}
	res, err := scanFind(p.arch.b, p.at, 0)
	if err != nil {
		return false, err
	}
	return res.found || res.implied, nil
}

// IsFile reports whether the path denotes an existing regular file member.
func (p Path) IsFile() (bool, error) {
	if err := p.check(); err != nil {
		return false, err
	}
	if p.at == "" {
		return false, nil
	}
	if p.arch.mode != modeRead {
		isDir, ok := p.arch.committedState(p.at)
		return ok && !isDir, nil
	}
	res, err := scanFind(p.arch.b, p.at, 0)
	if err != nil {
		return false, err
	}
	return res.found && !res.member.IsDir, nil
}

// IsDir reports whether the path denotes an existing directory, either a
// stored directory member or one implied by deeper member names.
func (p Path) IsDir() (bool, error) {
	if err := p.check(); err != nil {
		return false, err
	}
	if p.at == "" {
		return true, nil
	}
	if p.arch.mode != modeRead {
		if isDir, ok := p.arch.committedState(p.at); ok && isDir {
			return true, nil
		}
		return p.arch.committedImpliesDir(p.at), nil
	}
	res, err := scanFind(p.arch.b, p.at, 0)
	if err != nil {
		return false, err
	}
	return (res.found && res.member.IsDir) || res.implied, nil
}

// ReadBytes returns the content of the file member at this path.
// It fails with ErrNotFound if nothing is stored here and ErrNotAFile if
// the path denotes a directory.
func (p Path) ReadBytes() ([]byte, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	if err := p.arch.readable(); err != nil {
		return nil, err
	}
	if p.at == "" {
		return nil, fmt.Errorf("%w: archive root", ErrNotAFile)
	}
	return scanRead(p.arch.b, p.at, 0)
}

// ReadText returns the member content decoded as UTF-8.
// Invalid UTF-8 fails with ErrDecode.
func (p Path) ReadText() (string, error) {
	data, err := p.ReadBytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %q is not valid UTF-8", ErrDecode, p.at)
	}
	return string(data), nil
}

// ReadTextEncoding returns the member content decoded with the named
// character encoding ("latin1", "utf-16", IANA names).
func (p Path) ReadTextEncoding(encoding string) (string, error) {
	data, err := p.ReadBytes()
	if err != nil {
		return "", err
	}
	return decodeText(data, encoding)
}

// Open returns a reader over the file member's content.
//
// For zip archives the member is streamed and decompressed on demand; for
// tar archives the sequential stream cannot outlive the lookup scan, so
// the content is buffered in memory first.
func (p Path) Open() (io.ReadCloser, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	if err := p.arch.readable(); err != nil {
		return nil, err
	}
	if p.at == "" {
		return nil, fmt.Errorf("%w: archive root", ErrNotAFile)
	}
	if p.arch.format == FormatTar {
		data, err := scanRead(p.arch.b, p.at, 0)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	res, err := scanFind(p.arch.b, p.at, 0)
	if err != nil {
		return nil, err
	}
	switch {
	case res.found && res.member.IsDir, !res.found && res.implied:
		return nil, fmt.Errorf("%w: %q", ErrNotAFile, p.at)
	case !res.found:
		return nil, fmt.Errorf("%w: %q", ErrNotFound, p.at)
	}
	return res.member.Open()
}

// WriteBytes creates the file member and writes data to it. Writing to a
// path already committed in this session fails with ErrFileExists;
// members cannot be overwritten in place.
func (p Path) WriteBytes(data []byte) error {
	if err := p.check(); err != nil {
		return err
	}
	if err := p.arch.writable(); err != nil {
		return err
	}
	if p.at == "" {
		return fmt.Errorf("%w: cannot write to the archive root", ErrInvalidPath)
	}
	if _, ok := p.arch.committedState(p.at); ok {
		return fmt.Errorf("%w: %q", ErrFileExists, p.at)
	}
	if err := p.arch.b.write(p.at, data); err != nil {
		return err
	}
	p.arch.commit(p.at, false)
	return nil
}

// WriteText creates the file member and writes UTF-8 text to it.
func (p Path) WriteText(text string) error {
	return p.WriteBytes([]byte(text))
}

// WriteTextEncoding creates the file member and writes text encoded with
// the named character encoding. Runes the encoding cannot represent fail
// with ErrDecode.
func (p Path) WriteTextEncoding(text, encoding string) error {
	data, err := encodeText(text, encoding)
	if err != nil {
		return err
	}
	return p.WriteBytes(data)
}

// Mkdir writes an explicit directory marker member at this path.
func (p Path) Mkdir() error {
	if err := p.check(); err != nil {
		return err
	}
	if err := p.arch.writable(); err != nil {
		return err
	}
	if p.at == "" {
		return fmt.Errorf("%w: archive root", ErrFileExists)
	}
	if _, ok := p.arch.committedState(p.at); ok {
		return fmt.Errorf("%w: %q", ErrFileExists, p.at)
	}
	if err := p.arch.b.mkdir(p.at); err != nil {
		return err
	}
	p.arch.commit(p.at, true)
	return nil
}

// PutFile copies the external file's bytes to this path in the archive.
func (p Path) PutFile(src string) error {
	if err := p.check(); err != nil {
		return err
	}
	if err := p.arch.writable(); err != nil {
		return err
	}
	if p.at == "" {
		return fmt.Errorf("%w: cannot write to the archive root", ErrInvalidPath)
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("source %q: %w", src, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: source %q", ErrNotAFile, src)
	}
	if _, ok := p.arch.committedState(p.at); ok {
		return fmt.Errorf("%w: %q", ErrFileExists, p.at)
	}
	if err := p.arch.b.writeFile(p.at, src); err != nil {
		return err
	}
	p.arch.commit(p.at, false)
	return nil
}

// Iterdir returns the path's immediate children, one level deep, in
// sorted order. The sequence is finite and restartable: every range
// re-scans the archive. It fails with ErrNotADirectory when the path
// denotes a file and ErrNotFound when it does not exist.
func (p Path) Iterdir() iter.Seq2[Path, error] {
	return func(yield func(Path, error) bool) {
		if err := p.check(); err != nil {
			yield(Path{}, err)
			return
		}
		var (
			children      []string
			isDir, isFile bool
		)
		if p.arch.mode == modeRead {
			var err error
			children, isDir, isFile, err = scanChildren(p.arch.b, p.at)
			if err != nil {
				yield(Path{}, err)
				return
			}
		} else {
			children, isDir, isFile = childrenOf(sessionNames(p.arch), p.at)
		}
		switch {
		case isFile && !isDir:
			yield(Path{}, fmt.Errorf("%w: %q", ErrNotADirectory, p.at))
			return
		case !isDir:
			yield(Path{}, fmt.Errorf("%w: %q", ErrNotFound, p.at))
			return
		}
		for _, child := range children {
			if !yield(Path{arch: p.arch, at: child}, nil) {
				return
			}
		}
	}
}

// Glob returns the paths at or below this one whose position relative to
// it matches pattern. Patterns use doublestar syntax: "*" matches one
// level, "**" any depth. Directories implied by member names are
// included. The sequence is finite; re-invoking Glob re-scans.
func (p Path) Glob(pattern string) iter.Seq2[Path, error] {
	return func(yield func(Path, error) bool) {
		if err := p.check(); err != nil {
			yield(Path{}, err)
			return
		}
		if !doublestar.ValidatePattern(pattern) {
			yield(Path{}, fmt.Errorf("archivepath: invalid pattern %q", pattern))
			return
		}
		var names map[string]bool
		if p.arch.mode == modeRead {
			var err error
			names, err = scanNames(p.arch.b)
			if err != nil {
				yield(Path{}, err)
				return
			}
		} else {
			names = sessionNames(p.arch)
		}
		prefix := pathutil.DirPrefix(p.at)
		for _, name := range slices.Sorted(maps.Keys(names)) {
			if p.at != "" && !strings.HasPrefix(name, prefix) {
				continue
			}
			ok, _ := doublestar.Match(pattern, strings.TrimPrefix(name, prefix))
			if !ok {
				continue
			}
			if !yield(Path{arch: p.arch, at: name}, nil) {
				return
			}
		}
	}
}

// childrenOf derives the immediate children of dir from a name set, the
// write-mode counterpart of scanChildren.
func childrenOf(names map[string]bool, dir string) (children []string, isDir, isFile bool) {
	prefix := pathutil.DirPrefix(dir)
	seen := make(map[string]struct{})
	isDir = dir == ""
	for name, d := range names {
		switch {
		case name == dir:
			if d {
				isDir = true
			} else {
				isFile = true
			}
		case strings.HasPrefix(name, prefix):
			isDir = true
			child, _ := pathutil.Child(name, prefix)
			seen[prefix+child] = struct{}{}
		}
	}
	children = make([]string, 0, len(seen))
	for name := range seen {
		children = append(children, name)
	}
	slices.Sort(children)
	return children, isDir, isFile
}
