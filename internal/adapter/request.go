package adapter

import (
	"fmt"

	"nodeflow/internal/domain"
)

// BuildRequest assembles the job for node n from its resolved upstream
// inputs. A connected text input takes precedence over the node's own text
// field. Missing required inputs yield a *MissingInputError.
func BuildRequest(projectID string, n domain.Node, inputs map[string]domain.Value) (Request, error) {
	if !n.Type.Generative() {
		return Request{}, fmt.Errorf("%w: %s", ErrUnsupported, n.Type)
	}

	req := Request{ProjectID: projectID, NodeID: n.ID, NodeType: n.Type}
	missing := func(input string) error {
		return &MissingInputError{NodeType: n.Type, Input: input}
	}

	switch d := n.Data.(type) {
	case *domain.TextGeneratorData:
		req.Prompt = text(inputs, domain.HandleTextInput, d.Instruction)
		if req.Prompt == "" {
			return Request{}, missing("a text input or instruction")
		}

	case *domain.ImageGeneratorData:
		req.Prompt = text(inputs, domain.HandlePromptInput, d.Prompt)
		if req.Prompt == "" {
			return Request{}, missing("a prompt")
		}
		req.Images = images(inputs, domain.HandleReferenceInput)
		req.Params = Params{NumberOfImages: d.NumberOfImages, AspectRatio: d.AspectRatio}

	case *domain.ImageEditorData:
		req.Images = images(inputs, domain.HandleImageInput)
		if len(req.Images) == 0 {
			return Request{}, missing("an image input")
		}
		req.Prompt = text(inputs, domain.HandlePromptInput, d.Instruction)
		if req.Prompt == "" {
			return Request{}, missing("an instruction")
		}

	case *domain.ImageMixerData:
		req.Images = images(inputs, domain.HandleImageInput1, domain.HandleImageInput2)
		if len(req.Images) < 2 {
			return Request{}, missing("two image inputs")
		}
		req.Prompt = text(inputs, domain.HandlePromptInput, d.Instruction)

	case *domain.CharacterGeneratorData:
		req.Prompt = text(inputs, domain.HandleDescriptionInput, d.Description)
		if req.Prompt == "" {
			return Request{}, missing("a description")
		}
		req.Params = Params{Style: d.Style, Layout: d.Layout, AspectRatio: d.AspectRatio}

	case *domain.CharacterExtractorData:
		req.Images = images(inputs, domain.HandleImageInput)
		if len(req.Images) == 0 {
			return Request{}, missing("an image input")
		}

	case *domain.VideoGeneratorData:
		req.Prompt = text(inputs, domain.HandlePromptInput, d.Prompt)
		if req.Prompt == "" {
			return Request{}, missing("a prompt")
		}
		req.Images = images(inputs, domain.HandleImageInput)
		req.Params = Params{DurationSeconds: d.DurationSeconds, AspectRatio: d.AspectRatio}

	default:
		return Request{}, fmt.Errorf("%w: %s", ErrUnsupported, n.Type)
	}
	return req, nil
}

// text returns the connected value of handle, falling back to local
func text(inputs map[string]domain.Value, handle, local string) string {
	if v, ok := inputs[handle]; ok && v.Text != "" {
		return v.Text
	}
	return local
}

// images returns the non-empty URLs connected to handles, in order
func images(inputs map[string]domain.Value, handles ...string) []string {
	var urls []string
	for _, h := range handles {
		if v, ok := inputs[h]; ok && v.URL != "" {
			urls = append(urls, v.URL)
		}
	}
	return urls
}
