package archivepath

import (
	"fmt"
	"strings"
)

// Format identifies the archive container format.
type Format uint8

const (
	FormatZip Format = iota
	FormatTar
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTar:
		return "tar"
	default:
		return "unknown"
	}
}

// Compression identifies the stream compression applied to a tar archive.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionBzip2
	CompressionXz
	CompressionZstd
	// compressionAuto detects the codec from magic bytes on read.
	compressionAuto Compression = 255
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionBzip2:
		return "bzip2"
	case CompressionXz:
		return "xz"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// openMode is the archive session mode.
type openMode uint8

const (
	modeRead openMode = iota
	modeWrite
	modeAppend
)

func (m openMode) String() string {
	switch m {
	case modeRead:
		return "r"
	case modeWrite:
		return "w"
	case modeAppend:
		return "a"
	default:
		return "unknown"
	}
}

// parseZipMode parses a zip mode string: "r", "w" or "a".
func parseZipMode(mode string) (openMode, error) {
	switch mode {
	case "r":
		return modeRead, nil
	case "w":
		return modeWrite, nil
	case "a":
		return modeAppend, nil
	default:
		return 0, fmt.Errorf("invalid zip mode %q (want \"r\", \"w\" or \"a\")", mode)
	}
}

// parseTarMode parses a tar mode string of the form "r", "r:<codec>",
// "w", "w:<codec>" or "a", where codec is one of gz, bz2, xz or zst.
//
// A bare "r" (or "r:*") auto-detects the codec from the stream's magic
// bytes. Append is only supported for uncompressed archives: a compressed
// stream cannot be reopened for in-place extension.
func parseTarMode(mode string) (openMode, Compression, error) {
	op, codec, ok := strings.Cut(mode, ":")

	var om openMode
	switch op {
	case "r":
		om = modeRead
	case "w":
		om = modeWrite
	case "a":
		om = modeAppend
	default:
		return 0, 0, fmt.Errorf("invalid tar mode %q", mode)
	}

	if !ok {
		if om == modeRead {
			return om, compressionAuto, nil
		}
		return om, CompressionNone, nil
	}

	var comp Compression
	switch codec {
	case "":
		comp = CompressionNone
	case "*":
		comp = compressionAuto
	case "gz":
		comp = CompressionGzip
	case "bz2":
		comp = CompressionBzip2
	case "xz":
		comp = CompressionXz
	case "zst":
		comp = CompressionZstd
	default:
		return 0, 0, fmt.Errorf("invalid tar mode %q (unknown codec %q)", mode, codec)
	}

	switch {
	case om == modeRead && comp == CompressionNone:
		// "r:" forces a plain tar; keep as-is.
	case om == modeWrite && comp == compressionAuto:
		return 0, 0, fmt.Errorf("invalid tar mode %q (cannot auto-detect codec for writing)", mode)
	case om == modeAppend && comp != CompressionNone:
		return 0, 0, fmt.Errorf("invalid tar mode %q (append requires an uncompressed tar)", mode)
	}
	return om, comp, nil
}
