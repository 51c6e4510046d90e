// Package archivepath provides a path-like interface for navigating,
// reading and writing entries inside zip and tar archives.
//
// An [Archive] owns one open archive file; a [Path] is an immutable value
// addressing an entry inside it. Navigation (Join, Parent) is pure string
// algebra; terminal operations (Exists, ReadBytes, WriteBytes, Iterdir,
// Glob) perform the actual archive I/O. Internal paths always use forward
// slashes, relative to the archive root, regardless of the host OS.
//
// # Reading
//
//	arch, err := archivepath.OpenZip("bundle.zip", "r")
//	if err != nil {
//	    return err
//	}
//	defer arch.Close()
//
//	p := arch.Path("folder/file.txt")
//	content, err := p.ReadText()
//
// Lookups scan the archive's member table lazily and stop at the first
// match, so reading one entry from an archive with many thousands of
// members does not materialize the full index. For one-shot reads the
// [ReadFileInZip] and [ReadFileInTar] helpers avoid even constructing an
// Archive.
//
// # Writing
//
// Archives are append-only within a session: writing the same internal
// path twice fails with [ErrFileExists], mirroring the underlying formats'
// inability to overwrite a member in place. A write session must be closed
// on every exit path, or the archive's trailing metadata is never
// finalized:
//
//	arch, err := archivepath.OpenTar("bundle.tar.gz", "w:gz")
//	if err != nil {
//	    return err
//	}
//	defer arch.Close()
//
//	if err := arch.Path("file.txt").WriteText("hello"); err != nil {
//	    return err
//	}
//	if err := arch.Root().Join("assets").PutTree("./assets", "**/*.png"); err != nil {
//	    return err
//	}
//
// Tar archives support gzip, bzip2, xz and zstd compression through the
// mode string ("r:gz", "w:zst", ...); "r" auto-detects the codec from the
// stream's magic bytes. Zip archives use Deflate by default.
package archivepath
