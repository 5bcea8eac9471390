package adapter

import (
	"context"
	"errors"
	"fmt"

	"nodeflow/internal/domain"
)

// ErrUnsupported is returned when no generator serves a node type
var ErrUnsupported = errors.New("no generator for node type")

// Params carries the per-type generation settings of a node
type Params struct {
	NumberOfImages  int    `json:"numberOfImages,omitempty"`
	AspectRatio     string `json:"aspectRatio,omitempty"`
	Style           string `json:"style,omitempty"`
	Layout          string `json:"layout,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

// Request is a generation job for one node with its upstream inputs resolved
type Request struct {
	ProjectID string          `json:"projectId"`
	NodeID    string          `json:"nodeId"`
	NodeType  domain.NodeType `json:"nodeType"`
	// Prompt is the connected text input when present, else the node's own text
	Prompt string `json:"prompt,omitempty"`
	// Images are the connected image inputs in handle order
	Images []string `json:"images,omitempty"`
	Params Params   `json:"params"`
}

// Generator produces outputs for one or more node types
type Generator interface {
	// Name returns the unique identifier for this generator
	Name() string

	// Supports reports whether the generator can serve node type t
	Supports(t domain.NodeType) bool

	// Generate runs the job. It must honor ctx cancellation.
	Generate(ctx context.Context, req Request) (domain.Output, error)
}

// Failure is a typed generation error reported by a backend
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (f *Failure) Error() string {
	if f.Code == "" {
		return f.Message
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// MissingInputError reports a required input with no connected or local value
type MissingInputError struct {
	NodeType domain.NodeType
	Input    string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("%s needs %s", e.NodeType, e.Input)
}
