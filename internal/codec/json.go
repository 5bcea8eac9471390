package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"nodeflow/internal/domain"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// ContentType returns the MIME type of exported documents
func (c *JSONCodec) ContentType() string {
	return "application/json"
}

// Parse imports a graph from JSON
func (c *JSONCodec) Parse(r io.Reader) (domain.Graph, error) {
	g := domain.NewGraph()
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&g); err != nil {
		return domain.Graph{}, fmt.Errorf("%w: failed to parse JSON: %w", ErrMalformed, err)
	}
	return normalize(g), nil
}

// Export exports a graph to JSON
func (c *JSONCodec) Export(g domain.Graph, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(g); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// normalize replaces null collections with empty ones
func normalize(g domain.Graph) domain.Graph {
	if g.Nodes == nil {
		g.Nodes = []domain.Node{}
	}
	if g.Connections == nil {
		g.Connections = []domain.Connection{}
	}
	return g
}
