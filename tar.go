package archivepath

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

const tarBlockSize = 512

// tarBackend adapts archive/tar to the backend interface. The member
// stream is sequential and non-seekable, so read mode opens a fresh handle
// for every scan and member bytes must be consumed before the scan
// advances.
type tarBackend struct {
	mode     openMode
	filename string
	comp     Compression
	opts     openOptions

	// write state
	file  *os.File
	codec io.Closer // compressor stream, closed before the file; nil when uncompressed
	tw    *tar.Writer

	// existing holds pre-existing member names in append mode, mapped to
	// their directory flag.
	existing map[string]bool

	// scans counts member records read across all scans, for verifying
	// that lookups short-circuit.
	scans int
}

func newTarBackend(filename string, mode openMode, comp Compression, opts openOptions) (*tarBackend, error) {
	b := &tarBackend{mode: mode, filename: filename, comp: comp, opts: opts}
	switch mode {
	case modeRead:
		// Scans open their own handles; probe once so Open fails eagerly
		// on a missing or unreadable archive.
		f, err := os.Open(filename) //nolint:gosec // user-provided archive path is intentional
		if err != nil {
			return nil, fmt.Errorf("open tar archive: %w", err)
		}
		f.Close()
	case modeWrite:
		if err := b.openWrite(); err != nil {
			return nil, err
		}
	case modeAppend:
		if err := b.openAppend(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *tarBackend) openWrite() error {
	f, err := os.Create(b.filename) //nolint:gosec // user-provided archive path is intentional
	if err != nil {
		return fmt.Errorf("create tar archive: %w", err)
	}

	var w io.Writer = f
	switch b.comp {
	case CompressionGzip:
		gw, err := gzip.NewWriterLevel(f, b.opts.level)
		if err != nil {
			f.Close()
			return fmt.Errorf("gzip writer: %w", err)
		}
		w, b.codec = gw, gw
	case CompressionBzip2:
		var cfg *bzip2.WriterConfig
		if b.opts.level >= 1 {
			cfg = &bzip2.WriterConfig{Level: b.opts.level}
		}
		bw, err := bzip2.NewWriter(f, cfg)
		if err != nil {
			f.Close()
			return fmt.Errorf("bzip2 writer: %w", err)
		}
		w, b.codec = bw, bw
	case CompressionXz:
		xw, err := xz.NewWriter(f)
		if err != nil {
			f.Close()
			return fmt.Errorf("xz writer: %w", err)
		}
		w, b.codec = xw, xw
	case CompressionZstd:
		var eopts []zstd.EOption
		if b.opts.level >= 1 {
			eopts = append(eopts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(b.opts.level)))
		}
		zw, err := zstd.NewWriter(f, eopts...)
		if err != nil {
			f.Close()
			return fmt.Errorf("zstd writer: %w", err)
		}
		w, b.codec = zw, zw
	}

	b.file = f
	b.tw = tar.NewWriter(w)
	return nil
}

// openAppend positions a writer after the last member of an existing
// uncompressed tar, truncating the end-of-archive zero blocks. A missing
// archive degrades to a plain write session.
func (b *tarBackend) openAppend() error {
	f, err := os.OpenFile(b.filename, os.O_RDWR, 0o644) //nolint:gosec // user-provided archive path is intentional
	if os.IsNotExist(err) {
		return b.openWrite()
	}
	if err != nil {
		return fmt.Errorf("open tar archive: %w", err)
	}

	cr := &countingReader{r: f}
	tr := tar.NewReader(cr)
	b.existing = make(map[string]bool)
	var end int64
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			f.Close()
			return fmt.Errorf("%w: %s", ErrMalformedArchive, err)
		}
		if _, err := io.Copy(io.Discard, tr); err != nil {
			f.Close()
			return fmt.Errorf("%w: %s", ErrMalformedArchive, err)
		}
		// The reader consumes data lazily; the block padding after this
		// member is still unread, so account for it by hand.
		pad := (tarBlockSize - hdr.Size%tarBlockSize) % tarBlockSize
		end = cr.n + pad
		b.existing[normalizeTarName(hdr.Name)] = hdr.Typeflag == tar.TypeDir
	}

	if err := f.Truncate(end); err != nil {
		f.Close()
		return fmt.Errorf("truncate tar trailer: %w", err)
	}
	if _, err := f.Seek(end, io.SeekStart); err != nil {
		f.Close()
		return fmt.Errorf("seek tar archive: %w", err)
	}

	b.file = f
	b.tw = tar.NewWriter(f)
	return nil
}

func normalizeTarName(name string) string {
	name = strings.TrimSuffix(name, "/")
	return strings.TrimPrefix(name, "./")
}

// members scans the member stream from the start. The yielded Member's
// Open is only valid until the loop advances, matching tar's sequential
// addressing model.
func (b *tarBackend) members() iter.Seq2[Member, error] {
	return func(yield func(Member, error) bool) {
		f, err := os.Open(b.filename) //nolint:gosec // user-provided archive path is intentional
		if err != nil {
			yield(Member{}, fmt.Errorf("open tar archive: %w", err))
			return
		}
		defer f.Close()

		r, closers, err := newDecompressor(f, b.comp)
		if err != nil {
			yield(Member{}, err)
			return
		}
		defer func() {
			for _, c := range closers {
				c()
			}
		}()

		tr := tar.NewReader(r)
		for {
			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Member{}, fmt.Errorf("%w: %s", ErrMalformedArchive, err))
				return
			}
			b.scans++
			m := Member{
				Name:    normalizeTarName(hdr.Name),
				Size:    hdr.Size,
				Mode:    hdr.FileInfo().Mode(),
				ModTime: hdr.ModTime,
				IsDir:   hdr.Typeflag == tar.TypeDir,
			}
			m.open = func() (io.ReadCloser, error) {
				return io.NopCloser(tr), nil
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

// newDecompressor wraps r in the codec reader for comp. compressionAuto
// sniffs the codec from the stream's magic bytes.
func newDecompressor(r io.Reader, comp Compression) (io.Reader, []func() error, error) {
	if comp == compressionAuto {
		br := bufio.NewReader(r)
		magic, err := br.Peek(10)
		if err != nil && len(magic) == 0 {
			return nil, nil, fmt.Errorf("%w: empty archive", ErrMalformedArchive)
		}
		comp = sniffCompression(magic)
		r = br
	}

	switch comp {
	case CompressionGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrMalformedArchive, err)
		}
		return gr, []func() error{gr.Close}, nil
	case CompressionBzip2:
		br, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrMalformedArchive, err)
		}
		return br, []func() error{br.Close}, nil
	case CompressionXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrMalformedArchive, err)
		}
		return xr, nil, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrMalformedArchive, err)
		}
		return zr.IOReadCloser(), []func() error{func() error { zr.Close(); return nil }}, nil
	default:
		return r, nil, nil
	}
}

func sniffCompression(magic []byte) Compression {
	switch {
	case bytes.HasPrefix(magic, []byte{0x1f, 0x8b, 0x08}):
		return CompressionGzip
	case isBzip2Header(magic):
		return CompressionBzip2
	case bytes.HasPrefix(magic, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		return CompressionXz
	case bytes.HasPrefix(magic, []byte{0x28, 0xb5, 0x2f, 0xfd}):
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// isBzip2Header requires the full stream header: "BZh", a level digit and
// the first block's magic. The three-byte prefix alone collides with tar
// member names that happen to start with "BZh".
func isBzip2Header(magic []byte) bool {
	if len(magic) < 10 || !bytes.HasPrefix(magic, []byte("BZh")) {
		return false
	}
	if magic[3] < '1' || magic[3] > '9' {
		return false
	}
	return bytes.Equal(magic[4:10], []byte{0x31, 0x41, 0x59, 0x26, 0x53, 0x59})
}

func (b *tarBackend) write(name string, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: b.timestamp(),
		Format:  tar.FormatPAX,
	}
	if err := b.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write member %q: %w", name, err)
	}
	if _, err := b.tw.Write(data); err != nil {
		return fmt.Errorf("write member %q: %w", name, err)
	}
	return nil
}

func (b *tarBackend) writeFile(name, src string) error {
	f, err := os.Open(src) //nolint:gosec // user-provided source path is intentional
	if err != nil {
		return fmt.Errorf("open source %q: %w", src, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat source %q: %w", src, err)
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("write member %q: %w", name, err)
	}
	hdr.Name = name
	hdr.Format = tar.FormatPAX

	if err := b.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write member %q: %w", name, err)
	}
	if _, err := io.Copy(b.tw, f); err != nil {
		return fmt.Errorf("write member %q: %w", name, err)
	}
	return nil
}

func (b *tarBackend) mkdir(name string) error {
	hdr := &tar.Header{
		Name:     name + "/",
		Typeflag: tar.TypeDir,
		Mode:     0o755,
		ModTime:  b.timestamp(),
		Format:   tar.FormatPAX,
	}
	if err := b.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write directory %q: %w", name, err)
	}
	return nil
}

func (b *tarBackend) timestamp() time.Time {
	if !b.opts.modTime.IsZero() {
		return b.opts.modTime
	}
	return time.Now()
}

// close writes the end-of-archive blocks, flushes the codec and closes the
// file, in that order. Skipping close leaves a truncated, unreadable
// archive.
func (b *tarBackend) close() error {
	if b.mode == modeRead {
		return nil
	}

	var firstErr error
	if err := b.tw.Close(); err != nil {
		firstErr = fmt.Errorf("finalize tar archive: %w", err)
	}
	if b.codec != nil {
		if err := b.codec.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush compressor: %w", err)
		}
	}
	if err := b.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close tar archive: %w", err)
	}
	return firstErr
}

// countingReader tracks how many bytes have been consumed from r.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
