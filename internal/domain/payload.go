package domain

import (
	"encoding/json"
	"fmt"
)

const (
	// MaxImages is the number of output slots an image generator declares
	MaxImages = 4
	// MaxCharacters is the number of output slots a character extractor declares
	MaxCharacters = 8
)

// LayoutCache holds measured handle offsets written back by the renderer.
// It is derived data: excluded from JSON, fingerprints and equality.
type LayoutCache struct {
	HandleYOffsets  map[string]float64
	MinimizedHeight float64
}

// IsZero reports whether nothing has been measured yet
func (c LayoutCache) IsZero() bool {
	return len(c.HandleYOffsets) == 0 && c.MinimizedHeight == 0
}

func (c LayoutCache) clone() LayoutCache {
	out := LayoutCache{MinimizedHeight: c.MinimizedHeight}
	if c.HandleYOffsets != nil {
		out.HandleYOffsets = make(map[string]float64, len(c.HandleYOffsets))
		for k, v := range c.HandleYOffsets {
			out.HandleYOffsets[k] = v
		}
	}
	return out
}

// NodeState is the per-node status shared by every payload variant
type NodeState struct {
	IsLoading bool        `json:"isLoading,omitempty"`
	Error     string      `json:"error,omitempty"`
	Minimized bool        `json:"minimized,omitempty"`
	Layout    LayoutCache `json:"-"`
}

func (s NodeState) clone() NodeState {
	s.Layout = s.Layout.clone()
	return s
}

// Payload is the type-specific data of a node. The set of implementations
// is closed; use NewPayload to obtain one.
type Payload interface {
	NodeType() NodeType
	State() NodeState

	withState(NodeState) Payload
	clone() Payload
	resetOutputs()
	normalize()
}

// Patch is a shallow, JSON-keyed partial payload
type Patch map[string]any

// Character is one figure found by a character extractor
type Character struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// Output is what a generator returns for a node
type Output struct {
	Text       string      `json:"text,omitempty"`
	Media      []string    `json:"media,omitempty"`
	Characters []Character `json:"characters,omitempty"`
}

// TextData is the payload of a plain text node
type TextData struct {
	NodeState
	Text string `json:"text"`
}

// TextGeneratorData is the payload of a text generator
type TextGeneratorData struct {
	NodeState
	Instruction string `json:"instruction"`
	Output      string `json:"output,omitempty"`
}

// ImageGeneratorData is the payload of an image generator.
// Images[i] is the result for output slot i+1; an empty string is a slot
// that has not received a result.
type ImageGeneratorData struct {
	NodeState
	Prompt         string   `json:"prompt"`
	NumberOfImages int      `json:"numberOfImages"`
	AspectRatio    string   `json:"aspectRatio"`
	Images         []string `json:"images,omitempty"`
}

// ImageEditorData is the payload of an image editor
type ImageEditorData struct {
	NodeState
	Instruction string `json:"instruction"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// ImageMixerData is the payload of an image mixer
type ImageMixerData struct {
	NodeState
	Instruction string `json:"instruction"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// CharacterGeneratorData is the payload of a character generator
type CharacterGeneratorData struct {
	NodeState
	Description string `json:"description"`
	Style       string `json:"style"`
	Layout      string `json:"layout"`
	AspectRatio string `json:"aspectRatio"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// CharacterExtractorData is the payload of a character extractor
type CharacterExtractorData struct {
	NodeState
	Characters []Character `json:"characters,omitempty"`
}

// VideoGeneratorData is the payload of a video generator
type VideoGeneratorData struct {
	NodeState
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"durationSeconds"`
	AspectRatio     string `json:"aspectRatio"`
	VideoURL        string `json:"videoUrl,omitempty"`
}

// NewPayload returns the default payload for t, or nil for an unknown type
func NewPayload(t NodeType) Payload {
	switch t {
	case NodeTypeText:
		return &TextData{}
	case NodeTypeTextGenerator:
		return &TextGeneratorData{}
	case NodeTypeImageGenerator:
		return &ImageGeneratorData{NumberOfImages: 1, AspectRatio: "1:1"}
	case NodeTypeImageEditor:
		return &ImageEditorData{}
	case NodeTypeImageMixer:
		return &ImageMixerData{}
	case NodeTypeCharacterGenerator:
		return &CharacterGeneratorData{
			Style:       "photorealistic",
			Layout:      "character_sheet",
			AspectRatio: "3:4",
		}
	case NodeTypeCharacterExtractor:
		return &CharacterExtractorData{}
	case NodeTypeVideoGenerator:
		return &VideoGeneratorData{DurationSeconds: 5, AspectRatio: "16:9"}
	}
	return nil
}

// ClonePayload returns a deep copy of p
func ClonePayload(p Payload) Payload {
	if p == nil {
		return nil
	}
	return p.clone()
}

// WithState returns a copy of p carrying state s
func WithState(p Payload, s NodeState) Payload {
	return p.clone().withState(s.clone())
}

// DuplicatePayload copies p without transient fields: loading flag, error and layout cache
func DuplicatePayload(p Payload) Payload {
	s := p.State()
	s.IsLoading = false
	s.Error = ""
	s.Layout = LayoutCache{}
	return WithState(p, s)
}

// ResetPayload clears generated outputs, loading flag and error while keeping user inputs
func ResetPayload(p Payload) Payload {
	out := p.clone()
	out.resetOutputs()
	s := out.State()
	s.IsLoading = false
	s.Error = ""
	return out.withState(s)
}

// ApplyPatch shallow-merges patch into p by JSON key. The layout cache of p
// is carried over unchanged.
func ApplyPatch(p Payload, patch Patch) (Payload, error) {
	if len(patch) == 0 {
		return p.clone(), nil
	}

	current, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(current, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	for key, value := range patch {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal field %s: %w", key, err)
		}
		fields[key] = raw
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal merged payload: %w", err)
	}

	out := NewPayload(p.NodeType())
	if err := json.Unmarshal(merged, out); err != nil {
		return nil, fmt.Errorf("decode merged payload: %w", err)
	}
	out.normalize()

	s := out.State()
	s.Layout = p.State().Layout.clone()
	return out.withState(s), nil
}

// WithOutput merges a generator result into p and clears loading and error
func WithOutput(p Payload, out Output) Payload {
	next := p.clone()
	first := ""
	if len(out.Media) > 0 {
		first = out.Media[0]
	}

	switch d := next.(type) {
	case *TextGeneratorData:
		d.Output = out.Text
	case *ImageGeneratorData:
		n := min(len(out.Media), d.NumberOfImages)
		d.Images = append([]string(nil), out.Media[:n]...)
	case *ImageEditorData:
		d.ImageURL = first
	case *ImageMixerData:
		d.ImageURL = first
	case *CharacterGeneratorData:
		d.ImageURL = first
	case *CharacterExtractorData:
		n := min(len(out.Characters), MaxCharacters)
		d.Characters = append([]Character(nil), out.Characters[:n]...)
	case *VideoGeneratorData:
		d.VideoURL = first
	}

	s := next.State()
	s.IsLoading = false
	s.Error = ""
	return next.withState(s)
}

// --- TextData ---

func (d *TextData) NodeType() NodeType { return NodeTypeText }
func (d *TextData) State() NodeState   { return d.NodeState }
func (d *TextData) withState(s NodeState) Payload {
	d.NodeState = s
	return d
}
func (d *TextData) clone() Payload {
	c := *d
	c.NodeState = d.NodeState.clone()
	return &c
}
func (d *TextData) resetOutputs() {}
func (d *TextData) normalize()    {}

// --- TextGeneratorData ---

func (d *TextGeneratorData) NodeType() NodeType { return NodeTypeTextGenerator }
func (d *TextGeneratorData) State() NodeState   { return d.NodeState }
func (d *TextGeneratorData) withState(s NodeState) Payload {
	d.NodeState = s
	return d
}
func (d *TextGeneratorData) clone() Payload {
	c := *d
	c.NodeState = d.NodeState.clone()
	return &c
}
func (d *TextGeneratorData) resetOutputs() { d.Output = "" }
func (d *TextGeneratorData) normalize()    {}

// --- ImageGeneratorData ---

func (d *ImageGeneratorData) NodeType() NodeType { return NodeTypeImageGenerator }
func (d *ImageGeneratorData) State() NodeState   { return d.NodeState }
func (d *ImageGeneratorData) withState(s NodeState) Payload {
	d.NodeState = s
	return d
}
func (d *ImageGeneratorData) clone() Payload {
	c := *d
	c.NodeState = d.NodeState.clone()
	if d.Images != nil {
		c.Images = append([]string(nil), d.Images...)
	}
	return &c
}
func (d *ImageGeneratorData) resetOutputs() { d.Images = nil }

// normalize clamps NumberOfImages to 1..MaxImages. Results beyond the
// visible count are kept so that raising the count shows them again.
func (d *ImageGeneratorData) normalize() {
	if d.NumberOfImages < 1 {
		d.NumberOfImages = 1
	}
	if d.NumberOfImages > MaxImages {
		d.NumberOfImages = MaxImages
	}
	if len(d.Images) > MaxImages {
		d.Images = d.Images[:MaxImages]
	}
}

// --- ImageEditorData ---

func (d *ImageEditorData) NodeType() NodeType { return NodeTypeImageEditor }
func (d *ImageEditorData) State() NodeState   { return d.NodeState }
func (d *ImageEditorData) withState(s NodeState) Payload {
	d.NodeState = s
	return d
}
func (d *ImageEditorData) clone() Payload {
	c := *d
	c.NodeState = d.NodeState.clone()
	return &c
}
func (d *ImageEditorData) resetOutputs() { d.ImageURL = "" }
func (d *ImageEditorData) normalize()    {}

// --- ImageMixerData ---

func (d *ImageMixerData) NodeType() NodeType { return NodeTypeImageMixer }
func (d *ImageMixerData) State() NodeState   { return d.NodeState }
func (d *ImageMixerData) withState(s NodeState) Payload {
	d.NodeState = s
	return d
}
func (d *ImageMixerData) clone() Payload {
	c := *d
	c.NodeState = d.NodeState.clone()
	return &c
}
func (d *ImageMixerData) resetOutputs() { d.ImageURL = "" }
func (d *ImageMixerData) normalize()    {}

// --- CharacterGeneratorData ---

func (d *CharacterGeneratorData) NodeType() NodeType { return NodeTypeCharacterGenerator }
func (d *CharacterGeneratorData) State() NodeState   { return d.NodeState }
func (d *CharacterGeneratorData) withState(s NodeState) Payload {
	d.NodeState = s
	return d
}
func (d *CharacterGeneratorData) clone() Payload {
	c := *d
	c.NodeState = d.NodeState.clone()
	return &c
}
func (d *CharacterGeneratorData) resetOutputs() { d.ImageURL = "" }
func (d *CharacterGeneratorData) normalize()    {}

// --- CharacterExtractorData ---

func (d *CharacterExtractorData) NodeType() NodeType { return NodeTypeCharacterExtractor }
func (d *CharacterExtractorData) State() NodeState   { return d.NodeState }
func (d *CharacterExtractorData) withState(s NodeState) Payload {
	d.NodeState = s
	return d
}
func (d *CharacterExtractorData) clone() Payload {
	c := *d
	c.NodeState = d.NodeState.clone()
	if d.Characters != nil {
		c.Characters = append([]Character(nil), d.Characters...)
	}
	return &c
}
func (d *CharacterExtractorData) resetOutputs() { d.Characters = nil }
func (d *CharacterExtractorData) normalize() {
	if len(d.Characters) > MaxCharacters {
		d.Characters = d.Characters[:MaxCharacters]
	}
}

// --- VideoGeneratorData ---

func (d *VideoGeneratorData) NodeType() NodeType { return NodeTypeVideoGenerator }
func (d *VideoGeneratorData) State() NodeState   { return d.NodeState }
func (d *VideoGeneratorData) withState(s NodeState) Payload {
	d.NodeState = s
	return d
}
func (d *VideoGeneratorData) clone() Payload {
	c := *d
	c.NodeState = d.NodeState.clone()
	return &c
}
func (d *VideoGeneratorData) resetOutputs() { d.VideoURL = "" }
func (d *VideoGeneratorData) normalize() {
	if d.DurationSeconds <= 0 {
		d.DurationSeconds = 5
	}
}
