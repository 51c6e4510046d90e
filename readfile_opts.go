package archivepath

// ReadOption configures the single-member fast-path functions.
type ReadOption func(*readOptions)

type readOptions struct {
	searchLimit int
}

// WithSearchLimit bounds the member lookup to the first n records of the
// archive's member table. A lookup that does not match within the bound
// fails with ErrNotFound. Zero (the default) scans to the end.
func WithSearchLimit(n int) ReadOption {
	return func(o *readOptions) {
		o.searchLimit = n
	}
}
