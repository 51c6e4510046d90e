package archivepath

import "iter"

// backend is the capability surface consumed from the underlying archive
// libraries. Two implementations exist: zipBackend over archive/zip's flat
// central-directory name table, and tarBackend over archive/tar's
// sequential member stream. All path and scan logic above this interface
// is shared between the two.
type backend interface {
	// members yields the archive's members lazily, in the format's native
	// order. Callers that stop early leave the remaining member table
	// unread; a yielded error ends the sequence.
	members() iter.Seq2[Member, error]

	// write adds a file member with the given content.
	write(name string, data []byte) error

	// writeFile streams the external file src into a member.
	writeFile(name, src string) error

	// mkdir adds an explicit directory marker member.
	mkdir(name string) error

	// close finalizes the archive's trailing metadata and releases the
	// underlying handles.
	close() error
}
