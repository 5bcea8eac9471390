package domain

import "fmt"

// Handle ids shared across node types
const (
	HandleTextInput        = "text_input"
	HandleTextOutput       = "text_output"
	HandlePromptInput      = "prompt_input"
	HandleReferenceInput   = "reference_input"
	HandleImageInput       = "image_input"
	HandleImageInput1      = "image_input_1"
	HandleImageInput2      = "image_input_2"
	HandleImageOutput      = "image_output"
	HandleDescriptionInput = "description_input"
	HandleCharacterOutput  = "character_output"
	HandleVideoOutput      = "video_output"
)

// ImageOutputHandle returns the id of image generator slot n (1-based)
func ImageOutputHandle(n int) string {
	return fmt.Sprintf("image_output_%d", n)
}

// CharacterOutputHandle returns the id of character extractor slot n (1-based)
func CharacterOutputHandle(n int) string {
	return fmt.Sprintf("character_output_%d", n)
}

// handleSet is the declared handle set of one node type
type handleSet struct {
	inputs  []HandleSpec
	outputs []HandleSpec
}

var catalog = map[NodeType]handleSet{
	NodeTypeText: {
		outputs: []HandleSpec{{ID: HandleTextOutput, Type: HandleTypeText, Label: "Text"}},
	},
	NodeTypeTextGenerator: {
		inputs:  []HandleSpec{{ID: HandleTextInput, Type: HandleTypeText, Label: "Text"}},
		outputs: []HandleSpec{{ID: HandleTextOutput, Type: HandleTypeText, Label: "Text"}},
	},
	NodeTypeImageGenerator: {
		inputs: []HandleSpec{
			{ID: HandlePromptInput, Type: HandleTypeText, Label: "Prompt"},
			{ID: HandleReferenceInput, Type: HandleTypeImage, Label: "Reference"},
		},
		outputs: numberedOutputs(ImageOutputHandle, MaxImages, HandleTypeImage, "Image"),
	},
	NodeTypeImageEditor: {
		inputs: []HandleSpec{
			{ID: HandleImageInput, Type: HandleTypeImage, Label: "Image"},
			{ID: HandlePromptInput, Type: HandleTypeText, Label: "Instruction"},
		},
		outputs: []HandleSpec{{ID: HandleImageOutput, Type: HandleTypeImage, Label: "Image"}},
	},
	NodeTypeImageMixer: {
		inputs: []HandleSpec{
			{ID: HandleImageInput1, Type: HandleTypeImage, Label: "Image 1"},
			{ID: HandleImageInput2, Type: HandleTypeImage, Label: "Image 2"},
			{ID: HandlePromptInput, Type: HandleTypeText, Label: "Instruction"},
		},
		outputs: []HandleSpec{{ID: HandleImageOutput, Type: HandleTypeImage, Label: "Image"}},
	},
	NodeTypeCharacterGenerator: {
		inputs:  []HandleSpec{{ID: HandleDescriptionInput, Type: HandleTypeText, Label: "Description"}},
		outputs: []HandleSpec{{ID: HandleCharacterOutput, Type: HandleTypeImage, Label: "Character"}},
	},
	NodeTypeCharacterExtractor: {
		inputs:  []HandleSpec{{ID: HandleImageInput, Type: HandleTypeImage, Label: "Image"}},
		outputs: numberedOutputs(CharacterOutputHandle, MaxCharacters, HandleTypeImage, "Character"),
	},
	NodeTypeVideoGenerator: {
		inputs: []HandleSpec{
			{ID: HandlePromptInput, Type: HandleTypeText, Label: "Prompt"},
			{ID: HandleImageInput, Type: HandleTypeImage, Label: "First frame"},
		},
		outputs: []HandleSpec{{ID: HandleVideoOutput, Type: HandleTypeVideo, Label: "Video"}},
	},
}

func numberedOutputs(id func(int) string, n int, t HandleType, label string) []HandleSpec {
	specs := make([]HandleSpec, n)
	for i := range specs {
		specs[i] = HandleSpec{ID: id(i + 1), Type: t, Label: fmt.Sprintf("%s %d", label, i+1)}
	}
	return specs
}

// DeclaredInputs returns the static input handles of t
func DeclaredInputs(t NodeType) []HandleSpec {
	return append([]HandleSpec(nil), catalog[t].inputs...)
}

// DeclaredOutputs returns the static output superset of t
func DeclaredOutputs(t NodeType) []HandleSpec {
	return append([]HandleSpec(nil), catalog[t].outputs...)
}

// DeclaredHandle looks a handle up in the declared set of t
func DeclaredHandle(t NodeType, handleID string) (HandleSpec, Direction, bool) {
	set := catalog[t]
	for _, h := range set.inputs {
		if h.ID == handleID {
			return h, DirectionInput, true
		}
	}
	for _, h := range set.outputs {
		if h.ID == handleID {
			return h, DirectionOutput, true
		}
	}
	return HandleSpec{}, "", false
}

// VisibleInputs returns the input handles currently shown on n
func VisibleInputs(n Node) []HandleSpec {
	return DeclaredInputs(n.Type)
}

// VisibleOutputs returns the output handles currently shown on n, in static
// order. Fan-out types show a payload-dependent prefix of their declared set.
func VisibleOutputs(n Node) []HandleSpec {
	declared := DeclaredOutputs(n.Type)
	switch d := n.Data.(type) {
	case *ImageGeneratorData:
		return declared[:clamp(d.NumberOfImages, 1, MaxImages)]
	case *CharacterExtractorData:
		return declared[:clamp(len(d.Characters), 0, MaxCharacters)]
	}
	return declared
}

// VisibleHandle looks a handle up in the visible set of n
func VisibleHandle(n Node, handleID string) (HandleSpec, Direction, bool) {
	for _, h := range VisibleInputs(n) {
		if h.ID == handleID {
			return h, DirectionInput, true
		}
	}
	for _, h := range VisibleOutputs(n) {
		if h.ID == handleID {
			return h, DirectionOutput, true
		}
	}
	return HandleSpec{}, "", false
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// Value is the data an output handle currently provides
type Value struct {
	Type HandleType `json:"type"`
	Text string     `json:"text,omitempty"`
	URL  string     `json:"url,omitempty"`
}

// Empty reports whether the value carries no data yet
func (v Value) Empty() bool {
	return v.Text == "" && v.URL == ""
}

// OutputValue returns the value emitted by output handleID of n
func OutputValue(n Node, handleID string) (Value, bool) {
	spec, dir, ok := DeclaredHandle(n.Type, handleID)
	if !ok || dir != DirectionOutput {
		return Value{}, false
	}
	v := Value{Type: spec.Type}

	switch d := n.Data.(type) {
	case *TextData:
		v.Text = d.Text
	case *TextGeneratorData:
		v.Text = d.Output
	case *ImageGeneratorData:
		if i := slotIndex(handleID, ImageOutputHandle, MaxImages); i >= 0 && i < len(d.Images) {
			v.URL = d.Images[i]
		}
	case *ImageEditorData:
		v.URL = d.ImageURL
	case *ImageMixerData:
		v.URL = d.ImageURL
	case *CharacterGeneratorData:
		v.URL = d.ImageURL
	case *CharacterExtractorData:
		if i := slotIndex(handleID, CharacterOutputHandle, MaxCharacters); i >= 0 && i < len(d.Characters) {
			v.URL = d.Characters[i].ImageURL
		}
	case *VideoGeneratorData:
		v.URL = d.VideoURL
	}
	return v, true
}

func slotIndex(handleID string, id func(int) string, n int) int {
	for i := 1; i <= n; i++ {
		if id(i) == handleID {
			return i - 1
		}
	}
	return -1
}
