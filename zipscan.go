package archivepath

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"
)

// Central-directory access without materializing the member table. The
// trailer locates the directory; records are then decoded one at a time,
// so a lookup that matches early never decodes the records behind it.

const (
	sigDirRecord   = 0x02014b50
	sigLocalHeader = 0x04034b50
	sigEOCD        = 0x06054b50
	sigEOCD64      = 0x06064b50
	sigEOCD64Loc   = 0x07064b50

	eocdLen        = 22
	eocd64Len      = 56
	eocd64LocLen   = 20
	dirRecordLen   = 46
	localHeaderLen = 30

	maxCommentLen = 65535

	zipMethodStore   = 0
	zipMethodDeflate = 8
)

// dirLocation addresses the central directory inside the archive file.
type dirLocation struct {
	offset  int64
	records uint64
}

// findDirectory locates the central directory by scanning the file tail
// for the end-of-central-directory record, following the zip64 locator
// when present. Only the fixed-size trailer is read here; no directory
// record is decoded.
func findDirectory(r io.ReaderAt, size int64) (dirLocation, error) {
	tailLen := int64(eocdLen + maxCommentLen)
	if tailLen > size {
		tailLen = size
	}
	if tailLen < eocdLen {
		return dirLocation{}, errors.New("file too small for a zip trailer")
	}
	tail := make([]byte, tailLen)
	if _, err := r.ReadAt(tail, size-tailLen); err != nil && !errors.Is(err, io.EOF) {
		return dirLocation{}, err
	}

	i := len(tail) - eocdLen
	for ; i >= 0; i-- {
		if binary.LittleEndian.Uint32(tail[i:]) == sigEOCD {
			commentLen := int(binary.LittleEndian.Uint16(tail[i+20:]))
			if i+eocdLen+commentLen <= len(tail) {
				break
			}
		}
	}
	if i < 0 {
		return dirLocation{}, errors.New("end-of-central-directory record not found")
	}

	loc := dirLocation{
		offset:  int64(binary.LittleEndian.Uint32(tail[i+16:])),
		records: uint64(binary.LittleEndian.Uint16(tail[i+10:])),
	}

	// A zip64 locator, when present, sits immediately before the trailer
	// and points at the 64-bit record that holds the real values.
	if locPos := i - eocd64LocLen; locPos >= 0 && binary.LittleEndian.Uint32(tail[locPos:]) == sigEOCD64Loc {
		eocd64Off := int64(binary.LittleEndian.Uint64(tail[locPos+8:]))
		buf := make([]byte, eocd64Len)
		if _, err := r.ReadAt(buf, eocd64Off); err != nil {
			return dirLocation{}, fmt.Errorf("zip64 trailer: %w", err)
		}
		if binary.LittleEndian.Uint32(buf) != sigEOCD64 {
			return dirLocation{}, errors.New("zip64 trailer signature mismatch")
		}
		loc.records = binary.LittleEndian.Uint64(buf[32:])
		loc.offset = int64(binary.LittleEndian.Uint64(buf[48:]))
	}
	return loc, nil
}

// dirRecord is one decoded central-directory record: just enough to name
// the member and read its payload later.
type dirRecord struct {
	name    string
	flags   uint16
	method  uint16
	csize   int64
	usize   int64
	offset  int64
	modTime time.Time
	mode    fs.FileMode
}

func (r dirRecord) isDir() bool {
	return strings.HasSuffix(r.name, "/") || r.mode.IsDir()
}

// readDirRecord decodes the next central-directory record from br.
func readDirRecord(br *bufio.Reader) (dirRecord, error) {
	var fixed [dirRecordLen]byte
	if _, err := io.ReadFull(br, fixed[:]); err != nil {
		return dirRecord{}, fmt.Errorf("directory record: %w", err)
	}
	if binary.LittleEndian.Uint32(fixed[:]) != sigDirRecord {
		return dirRecord{}, errors.New("directory record signature mismatch")
	}

	madeBy := binary.LittleEndian.Uint16(fixed[4:])
	rec := dirRecord{
		flags:   binary.LittleEndian.Uint16(fixed[8:]),
		method:  binary.LittleEndian.Uint16(fixed[10:]),
		modTime: msDosTime(binary.LittleEndian.Uint16(fixed[14:]), binary.LittleEndian.Uint16(fixed[12:])),
		csize:   int64(binary.LittleEndian.Uint32(fixed[20:])),
		usize:   int64(binary.LittleEndian.Uint32(fixed[24:])),
		offset:  int64(binary.LittleEndian.Uint32(fixed[42:])),
	}
	nameLen := int(binary.LittleEndian.Uint16(fixed[28:]))
	extraLen := int(binary.LittleEndian.Uint16(fixed[30:]))
	commentLen := int(binary.LittleEndian.Uint16(fixed[32:]))
	external := binary.LittleEndian.Uint32(fixed[38:])

	variable := make([]byte, nameLen+extraLen+commentLen)
	if _, err := io.ReadFull(br, variable); err != nil {
		return dirRecord{}, fmt.Errorf("directory record: %w", err)
	}
	rec.name = string(variable[:nameLen])
	rec.mode = recordMode(rec.name, madeBy, external)

	// 32-bit overflow markers defer the real values to the zip64 extra.
	if rec.usize == 0xFFFFFFFF || rec.csize == 0xFFFFFFFF || rec.offset == 0xFFFFFFFF {
		if err := applyZip64Extra(&rec, variable[nameLen:nameLen+extraLen]); err != nil {
			return dirRecord{}, err
		}
	}
	return rec, nil
}

// applyZip64Extra resolves the record fields marked as overflowed from
// the zip64 extra block. Overflowed fields appear in a fixed order:
// uncompressed size, compressed size, local header offset.
func applyZip64Extra(rec *dirRecord, extra []byte) error {
	for len(extra) >= 4 {
		tag := binary.LittleEndian.Uint16(extra)
		size := int(binary.LittleEndian.Uint16(extra[2:]))
		extra = extra[4:]
		if size > len(extra) {
			return errors.New("truncated extra field")
		}
		body := extra[:size]
		extra = extra[size:]
		if tag != 0x0001 {
			continue
		}
		for _, field := range []*int64{&rec.usize, &rec.csize, &rec.offset} {
			if *field != 0xFFFFFFFF {
				continue
			}
			if len(body) < 8 {
				return errors.New("truncated zip64 extra field")
			}
			*field = int64(binary.LittleEndian.Uint64(body))
			body = body[8:]
		}
		return nil
	}
	return errors.New("zip64 extra field missing")
}

const creatorUnix = 3

func recordMode(name string, madeBy uint16, external uint32) fs.FileMode {
	var m fs.FileMode
	if madeBy>>8 == creatorUnix {
		m = unixMode(external >> 16)
	} else if external&0x10 != 0 { // MS-DOS directory attribute
		m = fs.ModeDir | 0o755
	} else {
		m = 0o644
	}
	if strings.HasSuffix(name, "/") {
		m |= fs.ModeDir
	}
	return m
}

func unixMode(u uint32) fs.FileMode {
	m := fs.FileMode(u & 0o777)
	switch u & 0o170000 {
	case 0o040000:
		m |= fs.ModeDir
	case 0o120000:
		m |= fs.ModeSymlink
	case 0o140000:
		m |= fs.ModeSocket
	case 0o060000:
		m |= fs.ModeDevice
	case 0o020000:
		m |= fs.ModeDevice | fs.ModeCharDevice
	case 0o010000:
		m |= fs.ModeNamedPipe
	}
	return m
}

// msDosTime converts the zip timestamp fields (2-second resolution).
func msDosTime(date, t uint16) time.Time {
	return time.Date(
		int(date>>9)+1980, time.Month(date>>5&0xf), int(date&0x1f),
		int(t>>11), int(t>>5&0x3f), int(t&0x1f)<<1, 0, time.UTC,
	)
}
