package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nodeflow/internal/codec"
	"nodeflow/internal/domain"

	"gopkg.in/yaml.v3"
)

// Template is a reusable workflow: a named graph loaded into a project
type Template struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	File        string       `json:"file"`
	Graph       domain.Graph `json:"-"`
}

// templateYAML represents the YAML file structure
type templateYAML struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description,omitempty"`
	codec.Document `yaml:",inline"`
}

// LoadTemplate loads a template from a YAML file. The name defaults to the
// file name without extension.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	tmpl, err := ParseTemplate(data)
	if err != nil {
		return nil, err
	}
	tmpl.File = path
	if tmpl.Name == "" {
		tmpl.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return tmpl, nil
}

// ParseTemplate parses a template from YAML bytes
func ParseTemplate(data []byte) (*Template, error) {
	var y templateYAML
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&y); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	g, err := y.Document.Graph()
	if err != nil {
		return nil, fmt.Errorf("invalid template graph: %w", err)
	}

	return &Template{
		Name:        y.Name,
		Description: y.Description,
		Graph:       g,
	}, nil
}

// Instantiate returns a copy of the template graph with every node and
// connection id replaced by one from newID. Connections whose endpoints are
// not template nodes are dropped.
func (t *Template) Instantiate(newID func() string) domain.Graph {
	ids := make(map[string]string, len(t.Graph.Nodes))
	g := domain.NewGraph()

	for _, n := range t.Graph.Nodes {
		id := newID()
		ids[n.ID] = id
		g.Nodes = append(g.Nodes, domain.Node{
			ID:       id,
			Type:     n.Type,
			Position: n.Position,
			Data:     domain.DuplicatePayload(n.Data),
		})
	}

	for _, c := range t.Graph.Connections {
		from, okFrom := ids[c.FromNodeID]
		to, okTo := ids[c.ToNodeID]
		if !okFrom || !okTo {
			continue
		}
		g.Connections = append(g.Connections, domain.Connection{
			ID:           newID(),
			FromNodeID:   from,
			FromHandleID: c.FromHandleID,
			ToNodeID:     to,
			ToHandleID:   c.ToHandleID,
		})
	}

	return g
}
