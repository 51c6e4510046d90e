package archivepath

import (
	"archive/zip"
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
)

// zipBackend serves zip archives through the backend interface. Read mode
// keeps one file handle open for the archive's lifetime and decodes
// central-directory records on demand, so the member table is never
// materialized up front; writing goes through archive/zip.
type zipBackend struct {
	mode openMode
	opts openOptions

	// read state
	file *os.File
	size int64
	dir  dirLocation

	// write state
	writer *zip.Writer
	wfile  *os.File
	// append mode rewrites into a temp file and renames over the original
	// on close; tmp is empty otherwise.
	tmp string
	dst string

	// existing holds pre-existing member names in append mode, mapped to
	// their directory flag.
	existing map[string]bool

	// recordScans counts directory records decoded across all scans and
	// payloadOpens counts member content opens, for verifying that lookups
	// stop at the match point and never touch unrelated payloads.
	recordScans  int
	payloadOpens int
}

func newZipBackend(filename string, mode openMode, opts openOptions) (*zipBackend, error) {
	b := &zipBackend{mode: mode, opts: opts, dst: filename}
	switch mode {
	case modeRead:
		if err := b.openRead(filename); err != nil {
			return nil, err
		}
	case modeWrite:
		if err := b.openWrite(filename); err != nil {
			return nil, err
		}
	case modeAppend:
		if err := b.openAppend(filename); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *zipBackend) openRead(filename string) error {
	f, err := os.Open(filename) //nolint:gosec // user-provided archive path is intentional
	if err != nil {
		return fmt.Errorf("open zip archive: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat zip archive: %w", err)
	}
	loc, err := findDirectory(f, info.Size())
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: %s", ErrMalformedArchive, err)
	}
	b.file = f
	b.size = info.Size()
	b.dir = loc
	return nil
}

func (b *zipBackend) openWrite(filename string) error {
	f, err := os.Create(filename) //nolint:gosec // user-provided archive path is intentional
	if err != nil {
		return fmt.Errorf("create zip archive: %w", err)
	}
	b.wfile = f
	b.writer = b.newWriter(f)
	return nil
}

// openAppend reopens an existing zip for appending. archive/zip has no
// in-place append, so the existing members are copied raw (no
// recompression) into a temp file which replaces the original on close.
// A missing archive degrades to a plain write session.
func (b *zipBackend) openAppend(filename string) error {
	rf, err := os.Open(filename) //nolint:gosec // user-provided archive path is intentional
	if os.IsNotExist(err) {
		return b.openWrite(filename)
	}
	if err != nil {
		return fmt.Errorf("open zip archive: %w", err)
	}
	defer rf.Close()

	info, err := rf.Stat()
	if err != nil {
		return fmt.Errorf("stat zip archive: %w", err)
	}
	zr, err := zip.NewReader(rf, info.Size())
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedArchive, err)
	}

	tf, err := os.CreateTemp(filepath.Dir(filename), ".archivepath-append-*")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	zw := b.newWriter(tf)
	// The rewrite would otherwise drop the original's comment.
	if b.opts.comment == "" && zr.Comment != "" {
		_ = zw.SetComment(zr.Comment)
	}

	b.existing = make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		r, err := f.OpenRaw()
		if err != nil {
			b.discardTemp(tf)
			return fmt.Errorf("copy member %q: %w", f.Name, err)
		}
		hdr := f.FileHeader
		w, err := zw.CreateRaw(&hdr)
		if err != nil {
			b.discardTemp(tf)
			return fmt.Errorf("copy member %q: %w", f.Name, err)
		}
		if _, err := io.Copy(w, r); err != nil {
			b.discardTemp(tf)
			return fmt.Errorf("copy member %q: %w", f.Name, err)
		}
		name := strings.TrimSuffix(f.Name, "/")
		b.existing[name] = zipIsDir(f)
	}

	b.wfile = tf
	b.writer = zw
	b.tmp = tf.Name()
	return nil
}

func (b *zipBackend) newWriter(w io.Writer) *zip.Writer {
	zw := zip.NewWriter(w)
	level := b.opts.level
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})
	if b.opts.comment != "" {
		_ = zw.SetComment(b.opts.comment) // length validated at open
	}
	return zw
}

func (b *zipBackend) discardTemp(tf *os.File) {
	tf.Close()
	os.Remove(tf.Name())
}

func zipIsDir(f *zip.File) bool {
	return strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir()
}

// members decodes central-directory records in their stored order, one
// record per step. Stopping early leaves the remaining records unread;
// payloads are only touched through Member.Open.
func (b *zipBackend) members() iter.Seq2[Member, error] {
	return func(yield func(Member, error) bool) {
		sr := io.NewSectionReader(b.file, b.dir.offset, b.size-b.dir.offset)
		br := bufio.NewReader(sr)
		for i := uint64(0); i < b.dir.records; i++ {
			rec, err := readDirRecord(br)
			if err != nil {
				yield(Member{}, fmt.Errorf("%w: %s", ErrMalformedArchive, err))
				return
			}
			b.recordScans++
			m := Member{
				Name:    strings.TrimSuffix(rec.name, "/"),
				Size:    rec.usize,
				Mode:    rec.mode,
				ModTime: rec.modTime,
				IsDir:   rec.isDir(),
			}
			m.open = func() (io.ReadCloser, error) {
				b.payloadOpens++
				return b.openPayload(rec)
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

// openPayload positions a reader over one member's compressed bytes via
// its local header and wraps it in the member's decompressor. Valid for
// the archive's lifetime, independent of the scan that produced rec.
func (b *zipBackend) openPayload(rec dirRecord) (io.ReadCloser, error) {
	if rec.flags&1 != 0 {
		return nil, fmt.Errorf("member %q is encrypted", rec.name)
	}
	var hdr [localHeaderLen]byte
	if _, err := io.ReadFull(io.NewSectionReader(b.file, rec.offset, localHeaderLen), hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: local header: %s", ErrMalformedArchive, err)
	}
	if binary.LittleEndian.Uint32(hdr[:]) != sigLocalHeader {
		return nil, fmt.Errorf("%w: local header signature mismatch", ErrMalformedArchive)
	}
	nameLen := int64(binary.LittleEndian.Uint16(hdr[26:]))
	extraLen := int64(binary.LittleEndian.Uint16(hdr[28:]))
	data := io.NewSectionReader(b.file, rec.offset+localHeaderLen+nameLen+extraLen, rec.csize)

	switch rec.method {
	case zipMethodStore:
		return io.NopCloser(data), nil
	case zipMethodDeflate:
		return flate.NewReader(data), nil
	default:
		return nil, fmt.Errorf("member %q uses unsupported method %d", rec.name, rec.method)
	}
}

func (b *zipBackend) write(name string, data []byte) error {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   b.opts.zipMethod,
		Modified: b.timestamp(),
	}
	hdr.SetMode(0o644)
	w, err := b.writer.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("write member %q: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write member %q: %w", name, err)
	}
	return nil
}

func (b *zipBackend) writeFile(name, src string) error {
	f, err := os.Open(src) //nolint:gosec // user-provided source path is intentional
	if err != nil {
		return fmt.Errorf("open source %q: %w", src, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat source %q: %w", src, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("write member %q: %w", name, err)
	}
	hdr.Name = name
	hdr.Method = b.opts.zipMethod

	w, err := b.writer.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("write member %q: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("write member %q: %w", name, err)
	}
	return nil
}

func (b *zipBackend) mkdir(name string) error {
	hdr := &zip.FileHeader{
		Name:     name + "/",
		Method:   zip.Store,
		Modified: b.timestamp(),
	}
	hdr.SetMode(fs.ModeDir | 0o755)
	if _, err := b.writer.CreateHeader(hdr); err != nil {
		return fmt.Errorf("write directory %q: %w", name, err)
	}
	return nil
}

func (b *zipBackend) timestamp() time.Time {
	if !b.opts.modTime.IsZero() {
		return b.opts.modTime
	}
	return time.Now()
}

// close finalizes the central directory. Failing to reach close leaves the
// archive without its trailing metadata, which readers reject.
func (b *zipBackend) close() error {
	if b.mode == modeRead {
		return b.file.Close()
	}

	var firstErr error
	if err := b.writer.Close(); err != nil {
		firstErr = fmt.Errorf("finalize zip archive: %w", err)
	}
	if err := b.wfile.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close zip archive: %w", err)
	}
	if b.tmp != "" {
		if firstErr != nil {
			os.Remove(b.tmp)
			return firstErr
		}
		if err := os.Rename(b.tmp, b.dst); err != nil {
			return fmt.Errorf("replace zip archive: %w", err)
		}
	}
	return firstErr
}
