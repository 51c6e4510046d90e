package archivepath

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/meigma/archivepath/internal/pathutil"
)

// The functions in this file read a single member without constructing an
// Archive. They route through the scanner's short-circuit path: the scan
// stops at the first matching member record and no other member's payload
// is touched, so reading an entry stored near the front of an archive
// with many thousands of members stays cheap.

// ReadFileInZip reads one member from a zip archive and returns its
// bytes. It fails with ErrNotFound when the member is absent or beyond
// the scan bound set by WithSearchLimit.
func ReadFileInZip(archive, name string, opts ...ReadOption) ([]byte, error) {
	norm, ok := pathutil.Normalize(name)
	if !ok || norm == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}
	b, err := newZipBackend(archive, modeRead, defaultOpenOptions())
	if err != nil {
		return nil, fmt.Errorf("archivepath: %w", err)
	}
	defer b.close()
	return scanRead(b, norm, o.searchLimit)
}

// ReadTextInZip reads one member from a zip archive and returns its
// content as UTF-8 text.
func ReadTextInZip(archive, name string, opts ...ReadOption) (string, error) {
	data, err := ReadFileInZip(archive, name, opts...)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %q is not valid UTF-8", ErrDecode, name)
	}
	return string(data), nil
}

// ExtractFileInZip streams one member of a zip archive into dst without
// buffering it in memory.
func ExtractFileInZip(archive, name string, dst io.Writer, opts ...ReadOption) error {
	norm, ok := pathutil.Normalize(name)
	if !ok || norm == "" {
		return fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}
	b, err := newZipBackend(archive, modeRead, defaultOpenOptions())
	if err != nil {
		return fmt.Errorf("archivepath: %w", err)
	}
	defer b.close()

	res, err := scanFind(b, norm, o.searchLimit)
	if err != nil {
		return err
	}
	switch {
	case res.found && res.member.IsDir, !res.found && res.implied:
		return fmt.Errorf("%w: %q", ErrNotAFile, norm)
	case !res.found:
		return fmt.Errorf("%w: %q", ErrNotFound, norm)
	}
	rc, err := res.member.Open()
	if err != nil {
		return fmt.Errorf("read member %q: %w", norm, err)
	}
	defer rc.Close()
	if _, err := io.Copy(dst, rc); err != nil {
		return fmt.Errorf("read member %q: %w", norm, err)
	}
	return nil
}

// ReadFileInTar reads one member from a tar archive and returns its
// bytes. Mode is a read mode as accepted by OpenTar; "" auto-detects the
// compression codec. The sequential scan abandons the stream as soon as
// the member is found.
func ReadFileInTar(archive, name, mode string, opts ...ReadOption) ([]byte, error) {
	norm, ok := pathutil.Normalize(name)
	if !ok || norm == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}
	if mode == "" {
		mode = "r"
	}
	om, comp, err := parseTarMode(mode)
	if err != nil {
		return nil, fmt.Errorf("archivepath: %w", err)
	}
	if om != modeRead {
		return nil, fmt.Errorf("archivepath: %q is not a read mode", mode)
	}
	b, err := newTarBackend(archive, modeRead, comp, defaultOpenOptions())
	if err != nil {
		return nil, fmt.Errorf("archivepath: %w", err)
	}
	defer b.close()
	return scanRead(b, norm, o.searchLimit)
}

// ReadTextInTar reads one member from a tar archive and returns its
// content as UTF-8 text.
func ReadTextInTar(archive, name, mode string, opts ...ReadOption) (string, error) {
	data, err := ReadFileInTar(archive, name, mode, opts...)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %q is not valid UTF-8", ErrDecode, name)
	}
	return string(data), nil
}
