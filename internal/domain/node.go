package domain

import (
	"encoding/json"
	"fmt"
)

// NodeType selects a node's handle set and payload shape
type NodeType string

const (
	NodeTypeText               NodeType = "text"
	NodeTypeTextGenerator      NodeType = "text_generator"
	NodeTypeImageGenerator     NodeType = "image_generator"
	NodeTypeImageEditor        NodeType = "image_editor"
	NodeTypeImageMixer         NodeType = "image_mixer"
	NodeTypeCharacterGenerator NodeType = "character_generator"
	NodeTypeCharacterExtractor NodeType = "character_extractor"
	NodeTypeVideoGenerator     NodeType = "video_generator"
)

// NodeTypes lists every node type in menu order
var NodeTypes = []NodeType{
	NodeTypeText,
	NodeTypeTextGenerator,
	NodeTypeImageGenerator,
	NodeTypeImageEditor,
	NodeTypeImageMixer,
	NodeTypeCharacterGenerator,
	NodeTypeCharacterExtractor,
	NodeTypeVideoGenerator,
}

// Valid reports whether t belongs to the closed set of node types
func (t NodeType) Valid() bool {
	_, ok := catalog[t]
	return ok
}

// Generative reports whether nodes of this type produce output through a generator
func (t NodeType) Generative() bool {
	return t.Valid() && t != NodeTypeText
}

// Node is a typed unit of work placed on the canvas
type Node struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type"`
	Position Position `json:"position"`
	Data     Payload  `json:"data"`
}

// NewNode creates a node with the type's default payload
func NewNode(id string, nodeType NodeType, pos Position) *Node {
	return &Node{
		ID:       id,
		Type:     nodeType,
		Position: pos,
		Data:     NewPayload(nodeType),
	}
}

// State returns the node's loading/error/minimized state
func (n Node) State() NodeState {
	if n.Data == nil {
		return NodeState{}
	}
	return n.Data.State()
}

// UnmarshalJSON decodes the payload into the concrete type selected by "type"
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID       string          `json:"id"`
		Type     NodeType        `json:"type"`
		Position Position        `json:"position"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	payload, err := DecodePayload(raw.Type, raw.Data)
	if err != nil {
		return err
	}

	n.ID = raw.ID
	n.Type = raw.Type
	n.Position = raw.Position
	n.Data = payload
	return nil
}

// DecodePayload decodes serialized node data into the concrete payload of t.
// Missing fields keep the type defaults.
func DecodePayload(t NodeType, raw []byte) (Payload, error) {
	payload := NewPayload(t)
	if payload == nil {
		return nil, fmt.Errorf("unknown node type %q", t)
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
	}
	payload.normalize()
	return payload, nil
}
