package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"nodeflow/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML import/export. Node data keeps the JSON field
// names so both formats describe the same document.
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// ContentType returns the MIME type of exported documents
func (c *YAMLCodec) ContentType() string {
	return "application/yaml"
}

// Document is the YAML structure for graph data
type Document struct {
	Nodes       []yamlNode       `yaml:"nodes"`
	Connections []yamlConnection `yaml:"connections"`
}

type yamlNode struct {
	ID       string         `yaml:"id"`
	Type     string         `yaml:"type"`
	Position yamlPosition   `yaml:"position"`
	Data     map[string]any `yaml:"data,omitempty"`
}

type yamlPosition struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type yamlConnection struct {
	ID           string `yaml:"id,omitempty"`
	FromNodeID   string `yaml:"from_node_id"`
	FromHandleID string `yaml:"from_handle_id"`
	ToNodeID     string `yaml:"to_node_id"`
	ToHandleID   string `yaml:"to_handle_id"`
}

// Parse imports a graph from YAML
func (c *YAMLCodec) Parse(r io.Reader) (domain.Graph, error) {
	var doc Document
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return domain.Graph{}, fmt.Errorf("%w: failed to parse YAML: %w", ErrMalformed, err)
	}
	return doc.Graph()
}

// Graph converts the decoded document into a graph
func (d Document) Graph() (domain.Graph, error) {
	g := domain.NewGraph()

	// Convert nodes
	for _, yn := range d.Nodes {
		raw, err := json.Marshal(yn.Data)
		if err != nil {
			return domain.Graph{}, fmt.Errorf("node %s: %w", yn.ID, err)
		}
		nodeType := domain.NodeType(yn.Type)
		data, err := domain.DecodePayload(nodeType, raw)
		if err != nil {
			return domain.Graph{}, fmt.Errorf("%w: node %s: %w", ErrMalformed, yn.ID, err)
		}
		g.Nodes = append(g.Nodes, domain.Node{
			ID:       yn.ID,
			Type:     nodeType,
			Position: domain.Position{X: yn.Position.X, Y: yn.Position.Y},
			Data:     data,
		})
	}

	// Convert connections
	for _, yc := range d.Connections {
		g.Connections = append(g.Connections, domain.Connection{
			ID:           yc.ID,
			FromNodeID:   yc.FromNodeID,
			FromHandleID: yc.FromHandleID,
			ToNodeID:     yc.ToNodeID,
			ToHandleID:   yc.ToHandleID,
		})
	}

	return g, nil
}

// Export exports a graph to YAML
func (c *YAMLCodec) Export(g domain.Graph, w io.Writer) error {
	doc, err := NewDocument(g)
	if err != nil {
		return err
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}

// NewDocument converts a graph into its YAML document form
func NewDocument(g domain.Graph) (Document, error) {
	doc := Document{
		Nodes:       make([]yamlNode, 0, len(g.Nodes)),
		Connections: make([]yamlConnection, 0, len(g.Connections)),
	}

	for _, n := range g.Nodes {
		data, err := payloadMap(n.Data)
		if err != nil {
			return Document{}, fmt.Errorf("node %s: %w", n.ID, err)
		}
		doc.Nodes = append(doc.Nodes, yamlNode{
			ID:       n.ID,
			Type:     string(n.Type),
			Position: yamlPosition{X: n.Position.X, Y: n.Position.Y},
			Data:     data,
		})
	}

	for _, conn := range g.Connections {
		doc.Connections = append(doc.Connections, yamlConnection{
			ID:           conn.ID,
			FromNodeID:   conn.FromNodeID,
			FromHandleID: conn.FromHandleID,
			ToNodeID:     conn.ToNodeID,
			ToHandleID:   conn.ToHandleID,
		})
	}

	return doc, nil
}

// payloadMap flattens a payload into its JSON-keyed field map
func payloadMap(p domain.Payload) (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
