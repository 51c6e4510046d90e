package archivepath

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/archivepath/internal/testutil"
)

func TestOpenZipInvalidMode(t *testing.T) {
	t.Parallel()

	_, err := OpenZip(t.TempDir()+"/x.zip", "rw")
	assert.Error(t, err)
}

func TestOpenZipMissingFile(t *testing.T) {
	t.Parallel()

	_, err := OpenZip(t.TempDir()+"/missing.zip", "r")
	assert.Error(t, err)
}

func TestOpenTarMissingFile(t *testing.T) {
	t.Parallel()

	_, err := OpenTar(t.TempDir()+"/missing.tar", "r")
	assert.Error(t, err)
}

func TestZipRoundTrip(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/out.zip"

	arch, err := OpenZip(file, "w")
	require.NoError(t, err)
	require.NoError(t, arch.Path("hello.txt").WriteText("hello"))
	require.NoError(t, arch.Path("sub/data.bin").WriteBytes([]byte{0, 1, 2}))
	require.NoError(t, arch.Close())

	arch, err = OpenZip(file, "r")
	require.NoError(t, err)
	defer arch.Close()

	assert.Equal(t, FormatZip, arch.Format())
	assert.Equal(t, file, arch.Filename())

	text, err := arch.Path("hello.txt").ReadText()
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	data, err := arch.Path("sub/data.bin").ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, data)

	isDir, err := arch.Path("sub").IsDir()
	require.NoError(t, err)
	assert.True(t, isDir)
}

func TestTarRoundTrip(t *testing.T) {
	t.Parallel()

	codecs := []struct {
		name      string
		writeMode string
		readModes []string
	}{
		{"plain", "w", []string{"r", "r:"}},
		{"gzip", "w:gz", []string{"r:gz", "r"}},
		{"bzip2", "w:bz2", []string{"r:bz2", "r"}},
		{"xz", "w:xz", []string{"r:xz", "r"}},
		{"zstd", "w:zst", []string{"r:zst", "r"}},
	}
	for _, tt := range codecs {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			file := t.TempDir() + "/out.tar"
			arch, err := OpenTar(file, tt.writeMode)
			require.NoError(t, err)
			require.NoError(t, arch.Path("a/b.txt").WriteText("payload"))
			require.NoError(t, arch.Path("top.txt").WriteBytes([]byte("top")))
			require.NoError(t, arch.Close())

			// "r" auto-detects the codec; the explicit mode pins it.
			for _, readMode := range tt.readModes {
				arch, err := OpenTar(file, readMode)
				require.NoError(t, err, "mode %q", readMode)

				text, err := arch.Path("a/b.txt").ReadText()
				require.NoError(t, err, "mode %q", readMode)
				assert.Equal(t, "payload", text)

				isDir, err := arch.Path("a").IsDir()
				require.NoError(t, err)
				assert.True(t, isDir)

				require.NoError(t, arch.Close())
			}
		})
	}
}

// A plain tar whose first member name starts with "BZh" must not be
// mistaken for a bzip2 stream when the codec is auto-detected.
func TestTarAutoDetectBzhLikeName(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/tricky.tar"
	testutil.WriteTar(t, file, []testutil.Entry{
		testutil.File("BZh9-notes.txt", []byte("plain tar")),
	}, false)

	arch, err := OpenTar(file, "r")
	require.NoError(t, err)
	defer arch.Close()

	text, err := arch.Path("BZh9-notes.txt").ReadText()
	require.NoError(t, err)
	assert.Equal(t, "plain tar", text)
}

func TestTarReadWrongCodec(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/out.tar.gz"
	arch, err := OpenTar(file, "w:gz")
	require.NoError(t, err)
	require.NoError(t, arch.Path("f").WriteText("x"))
	require.NoError(t, arch.Close())

	arch, err = OpenTar(file, "r:")
	require.NoError(t, err)
	defer arch.Close()

	_, err = arch.Path("f").ReadBytes()
	assert.ErrorIs(t, err, ErrMalformedArchive)
}

func TestWriteRejectsDuplicate(t *testing.T) {
	t.Parallel()

	arch, err := OpenZip(t.TempDir()+"/out.zip", "w")
	require.NoError(t, err)
	defer arch.Close()

	p := arch.Path("once.txt")
	require.NoError(t, p.WriteText("first"))
	assert.ErrorIs(t, p.WriteText("second"), ErrFileExists)
	assert.ErrorIs(t, p.WriteBytes(nil), ErrFileExists)
}

func TestModeEnforcement(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/out.zip"

	arch, err := OpenZip(file, "w")
	require.NoError(t, err)
	_, err = arch.Path("x").ReadBytes()
	assert.ErrorIs(t, err, ErrNotReadable)
	require.NoError(t, arch.Path("x").WriteText("x"))
	require.NoError(t, arch.Close())

	arch, err = OpenZip(file, "r")
	require.NoError(t, err)
	defer arch.Close()
	assert.ErrorIs(t, arch.Path("y").WriteText("y"), ErrNotWritable)
	assert.ErrorIs(t, arch.Path("y").Mkdir(), ErrNotWritable)
	assert.ErrorIs(t, arch.Path("y").PutFile(file), ErrNotWritable)
}

func TestCloseSemantics(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/out.zip"
	arch, err := OpenZip(file, "w")
	require.NoError(t, err)
	require.NoError(t, arch.Path("x").WriteText("x"))
	require.NoError(t, arch.Close())
	require.NoError(t, arch.Close()) // closing twice is a no-op

	assert.ErrorIs(t, arch.Path("y").WriteText("y"), ErrSessionClosed)
	_, err = arch.Path("x").Exists()
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestWriteSessionVisibility(t *testing.T) {
	t.Parallel()

	arch, err := OpenZip(t.TempDir()+"/out.zip", "w")
	require.NoError(t, err)
	defer arch.Close()

	require.NoError(t, arch.Path("a/b.txt").WriteText("x"))

	exists, err := arch.Path("a/b.txt").Exists()
	require.NoError(t, err)
	assert.True(t, exists)

	isFile, err := arch.Path("a/b.txt").IsFile()
	require.NoError(t, err)
	assert.True(t, isFile)

	// Ancestors of committed paths are implied directories.
	isDir, err := arch.Path("a").IsDir()
	require.NoError(t, err)
	assert.True(t, isDir)

	exists, err = arch.Path("other").Exists()
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMkdir(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/out.zip"
	arch, err := OpenZip(file, "w")
	require.NoError(t, err)
	require.NoError(t, arch.Path("empty").Mkdir())
	assert.ErrorIs(t, arch.Path("empty").Mkdir(), ErrFileExists)
	assert.ErrorIs(t, arch.Path("empty").WriteText("x"), ErrFileExists)

	isDir, err := arch.Path("empty").IsDir()
	require.NoError(t, err)
	assert.True(t, isDir)
	require.NoError(t, arch.Close())

	arch, err = OpenZip(file, "r")
	require.NoError(t, err)
	defer arch.Close()

	isDir, err = arch.Path("empty").IsDir()
	require.NoError(t, err)
	assert.True(t, isDir)

	isFile, err := arch.Path("empty").IsFile()
	require.NoError(t, err)
	assert.False(t, isFile)
}

func TestPutFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("from disk"), 0o644))

	file := dir + "/out.tar"
	arch, err := OpenTar(file, "w")
	require.NoError(t, err)
	require.NoError(t, arch.Path("copied.txt").PutFile(src))
	assert.ErrorIs(t, arch.Path("copied.txt").PutFile(src), ErrFileExists)
	assert.ErrorIs(t, arch.Path("nodir").PutFile(dir), ErrNotAFile)
	require.NoError(t, arch.Close())

	text, err := ReadTextInTar(file, "copied.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "from disk", text)
}

func TestZipAppend(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/out.zip"

	arch, err := OpenZip(file, "w")
	require.NoError(t, err)
	require.NoError(t, arch.Path("first.txt").WriteText("one"))
	require.NoError(t, arch.Close())

	arch, err = OpenZip(file, "a")
	require.NoError(t, err)

	// Pre-existing members count as committed.
	exists, err := arch.Path("first.txt").Exists()
	require.NoError(t, err)
	assert.True(t, exists)
	assert.ErrorIs(t, arch.Path("first.txt").WriteText("again"), ErrFileExists)

	require.NoError(t, arch.Path("second.txt").WriteText("two"))
	require.NoError(t, arch.Close())

	arch, err = OpenZip(file, "r")
	require.NoError(t, err)
	defer arch.Close()

	for name, want := range map[string]string{"first.txt": "one", "second.txt": "two"} {
		text, err := arch.Path(name).ReadText()
		require.NoError(t, err)
		assert.Equal(t, want, text)
	}
}

func TestZipAppendPreservesComment(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/out.zip"
	arch, err := OpenZip(file, "w", WithComment("original comment"))
	require.NoError(t, err)
	require.NoError(t, arch.Path("f").WriteText("x"))
	require.NoError(t, arch.Close())

	// Appending without WithComment keeps the existing comment.
	arch, err = OpenZip(file, "a")
	require.NoError(t, err)
	require.NoError(t, arch.Path("g").WriteText("y"))
	require.NoError(t, arch.Close())

	zr, err := zip.OpenReader(file)
	require.NoError(t, err)
	assert.Equal(t, "original comment", zr.Comment)
	require.NoError(t, zr.Close())

	// An explicit WithComment replaces it.
	arch, err = OpenZip(file, "a", WithComment("revised"))
	require.NoError(t, err)
	require.NoError(t, arch.Path("h").WriteText("z"))
	require.NoError(t, arch.Close())

	zr, err = zip.OpenReader(file)
	require.NoError(t, err)
	defer zr.Close()
	assert.Equal(t, "revised", zr.Comment)
}

func TestZipAppendCreatesMissing(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/new.zip"
	arch, err := OpenZip(file, "a")
	require.NoError(t, err)
	require.NoError(t, arch.Path("only.txt").WriteText("x"))
	require.NoError(t, arch.Close())

	text, err := ReadTextInZip(file, "only.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", text)
}

func TestTarAppend(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/out.tar"

	arch, err := OpenTar(file, "w")
	require.NoError(t, err)
	require.NoError(t, arch.Path("first.txt").WriteText("one"))
	require.NoError(t, arch.Path("dir/nested.txt").WriteText("nested"))
	require.NoError(t, arch.Close())

	arch, err = OpenTar(file, "a")
	require.NoError(t, err)
	assert.ErrorIs(t, arch.Path("first.txt").WriteText("again"), ErrFileExists)
	require.NoError(t, arch.Path("second.txt").WriteText("two"))
	require.NoError(t, arch.Close())

	arch, err = OpenTar(file, "r")
	require.NoError(t, err)
	defer arch.Close()

	for name, want := range map[string]string{
		"first.txt":      "one",
		"dir/nested.txt": "nested",
		"second.txt":     "two",
	} {
		text, err := arch.Path(name).ReadText()
		require.NoError(t, err, name)
		assert.Equal(t, want, text)
	}
}

func TestTarAppendCreatesMissing(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/new.tar"
	arch, err := OpenTar(file, "a")
	require.NoError(t, err)
	require.NoError(t, arch.Path("only.txt").WriteText("x"))
	require.NoError(t, arch.Close())

	text, err := ReadTextInTar(file, "only.txt", "r:")
	require.NoError(t, err)
	assert.Equal(t, "x", text)
}

func TestWithStored(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/out.zip"
	arch, err := OpenZip(file, "w", WithStored())
	require.NoError(t, err)
	require.NoError(t, arch.Path("raw.txt").WriteText("stored verbatim"))
	require.NoError(t, arch.Close())

	zr, err := zip.OpenReader(file)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, zip.Store, zr.File[0].Method)

	// Stored members read back like deflated ones.
	text, err := ReadTextInZip(file, "raw.txt")
	require.NoError(t, err)
	assert.Equal(t, "stored verbatim", text)
}

func TestZipReadEmptyArchive(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/empty.zip"
	arch, err := OpenZip(file, "w")
	require.NoError(t, err)
	require.NoError(t, arch.Close())

	arch, err = OpenZip(file, "r")
	require.NoError(t, err)
	defer arch.Close()

	exists, err := arch.Path("anything").Exists()
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWithComment(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/out.zip"
	arch, err := OpenZip(file, "w", WithComment("built by tests"))
	require.NoError(t, err)
	require.NoError(t, arch.Path("f").WriteText("x"))
	require.NoError(t, arch.Close())

	zr, err := zip.OpenReader(file)
	require.NoError(t, err)
	defer zr.Close()
	assert.Equal(t, "built by tests", zr.Comment)
}

func TestWithCommentTooLong(t *testing.T) {
	t.Parallel()

	_, err := OpenZip(t.TempDir()+"/out.zip", "w", WithComment(strings.Repeat("x", 65536)))
	assert.Error(t, err)
}

func TestTarRejectsComment(t *testing.T) {
	t.Parallel()

	_, err := OpenTar(t.TempDir()+"/out.tar", "w", WithComment("nope"))
	assert.Error(t, err)
}

func TestWithModTime(t *testing.T) {
	t.Parallel()

	stamp := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)

	file := t.TempDir() + "/out.zip"
	arch, err := OpenZip(file, "w", WithModTime(stamp))
	require.NoError(t, err)
	require.NoError(t, arch.Path("f.txt").WriteText("x"))
	require.NoError(t, arch.Close())

	zr, err := zip.OpenReader(file)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.True(t, zr.File[0].Modified.Equal(stamp), "got %v", zr.File[0].Modified)
}
