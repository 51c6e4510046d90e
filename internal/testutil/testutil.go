// Package testutil builds archive fixtures for tests. Fixtures are
// written with the archive libraries directly, not with the package under
// test, so writer bugs cannot mask reader bugs (and vice versa). Entries
// are written in slice order, which lets tests control member order and
// produce duplicate names the way foreign tools can.
package testutil

import (
	"archive/tar"
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Entry is one member of a fixture archive.
type Entry struct {
	Name string
	Data []byte
	Dir  bool
}

// File returns a file entry.
func File(name string, data []byte) Entry {
	return Entry{Name: name, Data: data}
}

// Dir returns a directory marker entry.
func Dir(name string) Entry {
	return Entry{Name: name, Dir: true}
}

// WriteZip writes a zip archive at path containing entries in order.
func WriteZip(t *testing.T, path string, entries []Entry) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		name := e.Name
		if e.Dir {
			name += "/"
		}
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("fixture member %q: %v", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			t.Fatalf("fixture member %q: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("finalize fixture: %v", err)
	}
}

// WriteTar writes a tar archive at path containing entries in order.
// Set compress to gzip the stream.
func WriteTar(t *testing.T, path string, entries []Entry, compress bool) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()

	var tw *tar.Writer
	var gw *gzip.Writer
	if compress {
		gw = gzip.NewWriter(f)
		tw = tar.NewWriter(gw)
	} else {
		tw = tar.NewWriter(f)
	}

	for _, e := range entries {
		hdr := &tar.Header{
			Name:    e.Name,
			Mode:    0o644,
			Size:    int64(len(e.Data)),
			ModTime: time.Unix(1_700_000_000, 0),
			Format:  tar.FormatPAX,
		}
		if e.Dir {
			hdr.Name += "/"
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
			hdr.Size = 0
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("fixture member %q: %v", e.Name, err)
		}
		if !e.Dir {
			if _, err := tw.Write(e.Data); err != nil {
				t.Fatalf("fixture member %q: %v", e.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("finalize fixture: %v", err)
	}
	if gw != nil {
		if err := gw.Close(); err != nil {
			t.Fatalf("finalize fixture: %v", err)
		}
	}
}

// MakeTree materializes files (path -> content, slash-separated) and
// extra empty directories under root.
func MakeTree(t *testing.T, root string, files map[string]string, dirs ...string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("make tree: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("make tree: %v", err)
		}
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0o755); err != nil {
			t.Fatalf("make tree: %v", err)
		}
	}
}
