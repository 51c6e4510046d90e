package archivepath

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/archivepath/internal/testutil"
)

func manyEntries(n int) []testutil.Entry {
	entries := make([]testutil.Entry, n)
	for i := range entries {
		entries[i] = testutil.File(fmt.Sprintf("member-%06d.txt", i), []byte(fmt.Sprintf("content %d", i)))
	}
	return entries
}

// Reading a member near the front of a large archive must decode only
// the directory records up to the match and touch no other payload.
// Opening the archive alone decodes nothing.
func TestZipLookupShortCircuits(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/big.zip"
	testutil.WriteZip(t, file, manyEntries(10_000))

	arch, err := OpenZip(file, "r")
	require.NoError(t, err)
	defer arch.Close()

	zb := arch.b.(*zipBackend)
	assert.Equal(t, uint64(10_000), zb.dir.records)
	assert.Equal(t, 0, zb.recordScans, "open must not decode directory records")

	data, err := arch.Path("member-000004.txt").ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, "content 4", string(data))

	assert.Equal(t, 5, zb.recordScans)
	assert.Equal(t, 1, zb.payloadOpens)
}

// A sequential tar lookup must abandon the stream at the first match
// instead of scanning all members.
func TestTarLookupShortCircuits(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/big.tar"
	testutil.WriteTar(t, file, manyEntries(10_000), false)

	arch, err := OpenTar(file, "r:")
	require.NoError(t, err)
	defer arch.Close()

	data, err := arch.Path("member-000004.txt").ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, "content 4", string(data))

	tb := arch.b.(*tarBackend)
	assert.Equal(t, 5, tb.scans)
}

// Archives produced by other tools can carry duplicate member names; the
// first occurrence wins in every lookup.
func TestDuplicateNamesFirstOccurrenceWins(t *testing.T) {
	t.Parallel()

	entries := []testutil.Entry{
		testutil.File("dup.txt", []byte("first")),
		testutil.File("dup.txt", []byte("second")),
	}

	dir := t.TempDir()
	zipFile := dir + "/dup.zip"
	testutil.WriteZip(t, zipFile, entries)
	tarFile := dir + "/dup.tar"
	testutil.WriteTar(t, tarFile, entries, false)

	for _, tt := range []struct {
		name string
		open func() (*Archive, error)
	}{
		{"zip", func() (*Archive, error) { return OpenZip(zipFile, "r") }},
		{"tar", func() (*Archive, error) { return OpenTar(tarFile, "r") }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			arch, err := tt.open()
			require.NoError(t, err)
			defer arch.Close()

			data, err := arch.Path("dup.txt").ReadBytes()
			require.NoError(t, err)
			assert.Equal(t, "first", string(data))
		})
	}
}

func TestIterdir(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/tree.zip"
	testutil.WriteZip(t, file, []testutil.Entry{
		testutil.File("a/1.txt", []byte("1")),
		testutil.File("a/2.txt", []byte("2")),
		testutil.File("a/sub/deep.txt", []byte("3")),
		testutil.File("b.txt", []byte("4")),
		testutil.Dir("empty"),
	})

	arch, err := OpenZip(file, "r")
	require.NoError(t, err)
	defer arch.Close()

	collect := func(p Path) []string {
		t.Helper()
		var got []string
		for child, err := range p.Iterdir() {
			require.NoError(t, err)
			got = append(got, child.At())
		}
		return got
	}

	// One level deep, sorted, with implied subdirectories included.
	assert.Equal(t, []string{"a/1.txt", "a/2.txt", "a/sub"}, collect(arch.Path("a")))
	assert.Equal(t, []string{"a", "b.txt", "empty"}, collect(arch.Root()))
	assert.Empty(t, collect(arch.Path("empty")))

	// The sequence is restartable.
	assert.Equal(t, []string{"a/1.txt", "a/2.txt", "a/sub"}, collect(arch.Path("a")))

	for _, err := range arch.Path("b.txt").Iterdir() {
		assert.ErrorIs(t, err, ErrNotADirectory)
	}
	for _, err := range arch.Path("missing").Iterdir() {
		assert.ErrorIs(t, err, ErrNotFound)
	}
}

func TestIterdirWriteSession(t *testing.T) {
	t.Parallel()

	arch, err := OpenZip(t.TempDir()+"/out.zip", "w")
	require.NoError(t, err)
	defer arch.Close()

	require.NoError(t, arch.Path("a/1.txt").WriteText("1"))
	require.NoError(t, arch.Path("a/sub/deep.txt").WriteText("2"))
	require.NoError(t, arch.Path("b.txt").WriteText("3"))

	var got []string
	for child, err := range arch.Path("a").Iterdir() {
		require.NoError(t, err)
		got = append(got, child.At())
	}
	assert.Equal(t, []string{"a/1.txt", "a/sub"}, got)
}

func TestGlob(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/tree.zip"
	testutil.WriteZip(t, file, []testutil.Entry{
		testutil.File("src/main.go", []byte("m")),
		testutil.File("src/util/helper.go", []byte("h")),
		testutil.File("src/util/helper_test.go", []byte("t")),
		testutil.File("docs/readme.md", []byte("r")),
	})

	arch, err := OpenZip(file, "r")
	require.NoError(t, err)
	defer arch.Close()

	collect := func(p Path, pattern string) []string {
		t.Helper()
		var got []string
		for match, err := range p.Glob(pattern) {
			require.NoError(t, err)
			got = append(got, match.At())
		}
		return got
	}

	assert.Equal(t, []string{"docs/readme.md"}, collect(arch.Root(), "*/*.md"))
	assert.Equal(t,
		[]string{"src/main.go", "src/util/helper.go", "src/util/helper_test.go"},
		collect(arch.Root(), "**/*.go"))
	assert.Equal(t, []string{"src/util/helper.go", "src/util/helper_test.go"}, collect(arch.Path("src"), "util/*.go"))
	// "*" matches one level and also the implied directories.
	assert.Equal(t, []string{"docs", "src"}, collect(arch.Root(), "*"))
	assert.Empty(t, collect(arch.Root(), "*.go"))

	for _, err := range arch.Root().Glob("a{b") {
		assert.Error(t, err)
	}
}

func TestGlobWriteSession(t *testing.T) {
	t.Parallel()

	arch, err := OpenTar(t.TempDir()+"/out.tar", "w")
	require.NoError(t, err)
	defer arch.Close()

	require.NoError(t, arch.Path("logs/a.log").WriteText("a"))
	require.NoError(t, arch.Path("logs/b.txt").WriteText("b"))

	var got []string
	for match, err := range arch.Path("logs").Glob("*.log") {
		require.NoError(t, err)
		got = append(got, match.At())
	}
	assert.Equal(t, []string{"logs/a.log"}, got)
}

func TestMalformedZip(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/bad.zip"
	require.NoError(t, os.WriteFile(file, []byte("this is not a zip archive"), 0o644))

	_, err := OpenZip(file, "r")
	assert.ErrorIs(t, err, ErrMalformedArchive)
}

func TestMalformedTar(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/bad.tar"
	junk := make([]byte, 2048)
	for i := range junk {
		junk[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(file, junk, 0o644))

	arch, err := OpenTar(file, "r:")
	require.NoError(t, err)
	defer arch.Close()

	_, err = arch.Path("anything").ReadBytes()
	assert.ErrorIs(t, err, ErrMalformedArchive)
}
