package archivepath

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/meigma/archivepath/internal/pathutil"
)

// defaultTreePattern matches every entry below a tree root.
const defaultTreePattern = "**/*"

// PutTree recursively copies an external directory tree into the archive
// at this path, preserving relative structure. Pattern filters the
// entries to copy (doublestar syntax, evaluated against paths relative
// to dir); an empty pattern copies everything.
//
// Matched directories produce a directory marker member in zip archives;
// tar archives record directories only through Mkdir, so they are
// skipped. Each file is committed independently: a failure partway
// through leaves prior writes in place.
func (p Path) PutTree(dir, pattern string) error {
	if err := p.check(); err != nil {
		return err
	}
	if err := p.arch.writable(); err != nil {
		return err
	}
	if pattern == "" {
		pattern = defaultTreePattern
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("source %q: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: source %q", ErrNotADirectory, dir)
	}
	if _, ok := p.arch.committedState(p.at); ok {
		return fmt.Errorf("%w: %q", ErrFileExists, p.at)
	}

	// The base directory is always recorded, even when nothing matches.
	if p.at != "" {
		if err := p.writeDirMarker(p.at); err != nil {
			return err
		}
	}

	matches, err := doublestar.Glob(os.DirFS(dir), pattern)
	if err != nil {
		return fmt.Errorf("archivepath: invalid pattern %q: %w", pattern, err)
	}

	for _, match := range matches {
		src := filepath.Join(dir, filepath.FromSlash(match))
		info, err := os.Lstat(src)
		if err != nil {
			return fmt.Errorf("source %q: %w", src, err)
		}
		target := p.Join(match)
		switch {
		case info.IsDir():
			if err := p.writeDirMarker(target.at); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := target.PutFile(src); err != nil {
				return err
			}
		}
		// Symlinks and special files are not copied.
	}
	return nil
}

// writeDirMarker records a directory in the session. Zip stores an
// explicit marker member; tar has no empty-directory concept here, so
// only the committed set is updated.
func (p Path) writeDirMarker(at string) error {
	if isDir, ok := p.arch.committedState(at); ok {
		if isDir {
			return nil
		}
		return fmt.Errorf("%w: %q", ErrFileExists, at)
	}
	if p.arch.format == FormatZip {
		if err := p.arch.b.mkdir(at); err != nil {
			return err
		}
	}
	p.arch.commit(at, true)
	return nil
}

// ExtractTree materializes this path's subtree on the real filesystem
// under dest. Pattern filters the members to extract (doublestar syntax,
// relative to this path); an empty pattern extracts everything.
//
// The destination base directory (dest joined with this path) is created
// first, even when the subtree is empty. Each member is extracted
// independently: a failure partway through leaves prior files in place.
// Symlink and device members are skipped.
func (p Path) ExtractTree(dest, pattern string) error {
	if err := p.check(); err != nil {
		return err
	}
	if err := p.arch.readable(); err != nil {
		return err
	}
	if pattern == "" {
		pattern = defaultTreePattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("archivepath: invalid pattern %q", pattern)
	}

	if p.at != "" {
		res, err := scanFind(p.arch.b, p.at, 0)
		if err != nil {
			return err
		}
		switch {
		case res.found && !res.member.IsDir:
			return fmt.Errorf("%w: %q", ErrNotADirectory, p.at)
		case !res.found && !res.implied:
			return fmt.Errorf("%w: %q", ErrNotFound, p.at)
		}
	}

	base := filepath.Join(dest, filepath.FromSlash(p.at))
	if err := os.MkdirAll(base, 0o755); err != nil {
		return fmt.Errorf("create destination %q: %w", base, err)
	}

	prefix := pathutil.DirPrefix(p.at)
	for m, err := range p.arch.b.members() {
		if err != nil {
			return err
		}
		if p.at != "" && !strings.HasPrefix(m.Name, prefix) {
			continue
		}
		ok, _ := doublestar.Match(pattern, strings.TrimPrefix(m.Name, prefix))
		if !ok {
			continue
		}
		if err := extractMember(m, dest); err != nil {
			return err
		}
	}
	return nil
}

// extractMember writes one member below dest. Tar member bytes must be
// consumed before the producing scan advances, so extraction happens
// inside the scan loop.
func extractMember(m Member, dest string) error {
	out := filepath.Join(dest, filepath.FromSlash(m.Name))
	if m.IsDir {
		if err := os.MkdirAll(out, 0o755); err != nil {
			return fmt.Errorf("extract %q: %w", m.Name, err)
		}
		return nil
	}
	if !m.isRegular() {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("extract %q: %w", m.Name, err)
	}

	perm := m.Mode.Perm()
	if perm == 0 {
		perm = fs.FileMode(0o644)
	}
	f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm) //nolint:gosec // destination derives from the caller's dest
	if err != nil {
		return fmt.Errorf("extract %q: %w", m.Name, err)
	}
	rc, err := m.Open()
	if err != nil {
		f.Close()
		return fmt.Errorf("extract %q: %w", m.Name, err)
	}
	_, err = io.Copy(f, rc)
	rc.Close()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("extract %q: %w", m.Name, err)
	}
	return nil
}
