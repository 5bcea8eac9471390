package codec

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"nodeflow/internal/domain"
)

var (
	// ErrUnknownFormat is returned for a format no codec handles
	ErrUnknownFormat = errors.New("unknown format")
	// ErrMalformed wraps every parse failure
	ErrMalformed = errors.New("malformed document")
)

// Importer interface for importing graph data from various formats
type Importer interface {
	Parse(r io.Reader) (domain.Graph, error)
	Format() string
}

// Exporter interface for exporting graph data to various formats
type Exporter interface {
	Export(g domain.Graph, w io.Writer) error
	Format() string
}

// Codec both imports and exports one format
type Codec interface {
	Importer
	Exporter
	ContentType() string
}

// ForFormat returns the codec for format. An empty format selects JSON.
func ForFormat(format string) (Codec, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return NewJSONCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
}
