package archivepath

import (
	"fmt"

	"golang.org/x/text/encoding/ianaindex"
)

// decodeText decodes data using the IANA-registered character encoding
// with the given name.
func decodeText(data []byte, name string) (string, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return "", fmt.Errorf("%w: unknown encoding %q", ErrDecode, name)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDecode, err)
	}
	return string(out), nil
}

// encodeText encodes text using the IANA-registered character encoding
// with the given name. Runes the encoding cannot represent are an error,
// not silently replaced.
func encodeText(text, name string) ([]byte, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrDecode, name)
	}
	out, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecode, err)
	}
	return out, nil
}
