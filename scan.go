package archivepath

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/meigma/archivepath/internal/pathutil"
)

// The scanner consumes a backend's lazy member stream in native order:
// the zip central directory sequentially, the tar block stream front to
// back. Lookups stop at the first match, so a hit near the front of a
// large archive never reads the rest of the member table. Duplicate names
// (possible in archives produced by other tools; this package's write
// session rejects them) therefore resolve to the first occurrence in both
// formats.

// scanResult is the outcome of a member lookup.
type scanResult struct {
	member Member
	found  bool
	// implied is set when no member matches the name exactly but a deeper
	// member's path passes through it, making it a directory that the
	// archive never stored explicitly.
	implied bool
}

// scanFind locates the first member whose normalized name equals name.
// Absence is a non-error outcome; only parse failures return an error.
// A positive limit bounds the scan to the first limit member records.
func scanFind(b backend, name string, limit int) (scanResult, error) {
	var res scanResult
	prefix := pathutil.DirPrefix(name)
	scanned := 0
	for m, err := range b.members() {
		if err != nil {
			return scanResult{}, err
		}
		if m.Name == name {
			res.member = m
			res.found = true
			return res, nil
		}
		if !res.implied && strings.HasPrefix(m.Name, prefix) {
			res.implied = true
		}
		scanned++
		if limit > 0 && scanned >= limit {
			break
		}
	}
	return res, nil
}

// scanRead returns the content of the file member at name, stopping the
// scan as soon as the member is found. Tar member bytes are consumed in
// place, before the scan advances past them. A positive limit bounds the
// scan to the first limit member records.
func scanRead(b backend, name string, limit int) ([]byte, error) {
	var (
		data    []byte
		found   bool
		implied bool
		readErr error
	)
	prefix := pathutil.DirPrefix(name)
	scanned := 0
	for m, err := range b.members() {
		if err != nil {
			return nil, err
		}
		if m.Name != name {
			if !implied && strings.HasPrefix(m.Name, prefix) {
				implied = true
			}
			scanned++
			if limit > 0 && scanned >= limit {
				break
			}
			continue
		}
		if m.IsDir {
			return nil, fmt.Errorf("%w: %q", ErrNotAFile, name)
		}
		found = true
		rc, err := m.Open()
		if err != nil {
			readErr = fmt.Errorf("read member %q: %w", name, err)
			break
		}
		data, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			readErr = fmt.Errorf("read member %q: %w", name, err)
		}
		break
	}
	switch {
	case readErr != nil:
		return nil, readErr
	case found:
		return data, nil
	case implied:
		return nil, fmt.Errorf("%w: %q", ErrNotAFile, name)
	default:
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
}

// scanChildren accumulates the immediate children of dir in one pass,
// including children implied by deeper member names. It also reports
// what the scan learned about dir itself.
func scanChildren(b backend, dir string) (children []string, isDir, isFile bool, err error) {
	prefix := pathutil.DirPrefix(dir)
	seen := make(map[string]struct{})
	isDir = dir == ""
	for m, err := range b.members() {
		if err != nil {
			return nil, false, false, err
		}
		switch {
		case m.Name == dir:
			if m.IsDir {
				isDir = true
			} else {
				isFile = true
			}
		case strings.HasPrefix(m.Name, prefix):
			isDir = true
			name, _ := pathutil.Child(m.Name, prefix)
			seen[prefix+name] = struct{}{}
		}
	}
	children = make([]string, 0, len(seen))
	for name := range seen {
		children = append(children, name)
	}
	slices.Sort(children)
	return children, isDir, isFile, nil
}

// scanNames materializes the set of all internal paths in the archive,
// mapped to their directory flag: explicit members plus the ancestor
// directories their names imply. The root is not included. For duplicate
// names the first occurrence's flag wins.
func scanNames(b backend) (map[string]bool, error) {
	names := make(map[string]bool)
	for m, err := range b.members() {
		if err != nil {
			return nil, err
		}
		if _, ok := names[m.Name]; !ok {
			names[m.Name] = m.IsDir
		}
		for _, parent := range pathutil.Parents(m.Name) {
			if _, ok := names[parent]; !ok {
				names[parent] = true
			}
		}
	}
	return names, nil
}

// sessionNames is the write-mode analogue of scanNames, derived from the
// session's committed set instead of a member scan.
func sessionNames(a *Archive) map[string]bool {
	names := make(map[string]bool, len(a.committed))
	for name, isDir := range a.committed {
		names[name] = isDir
		for _, parent := range pathutil.Parents(name) {
			if _, ok := names[parent]; !ok {
				names[parent] = true
			}
		}
	}
	return names
}
