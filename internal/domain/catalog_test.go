package domain

import "testing"

func TestAreCompatible(t *testing.T) {
	types := []HandleType{HandleTypeText, HandleTypeImage, HandleTypeVideo}

	for _, a := range types {
		for _, b := range types {
			if got := AreCompatible(a, b); got != (a == b) {
				t.Errorf("AreCompatible(%s, %s) = %v, want %v", a, b, got, a == b)
			}
		}
	}
}

func TestDeclaredHandles(t *testing.T) {
	t.Run("every type declares typed handles", func(t *testing.T) {
		for _, nt := range NodeTypes {
			for _, h := range append(DeclaredInputs(nt), DeclaredOutputs(nt)...) {
				if !h.Type.Valid() {
					t.Errorf("%s handle %s has invalid type %q", nt, h.ID, h.Type)
				}
			}
			if len(DeclaredOutputs(nt)) == 0 {
				t.Errorf("%s declares no outputs", nt)
			}
		}
	})

	t.Run("looks up direction", func(t *testing.T) {
		_, dir, ok := DeclaredHandle(NodeTypeImageEditor, HandleImageInput)
		if !ok || dir != DirectionInput {
			t.Errorf("expected image_input to be an input, got %v %v", dir, ok)
		}
		_, dir, ok = DeclaredHandle(NodeTypeImageGenerator, ImageOutputHandle(4))
		if !ok || dir != DirectionOutput {
			t.Errorf("expected image_output_4 to be an output, got %v %v", dir, ok)
		}
		if _, _, ok := DeclaredHandle(NodeTypeText, HandlePromptInput); ok {
			t.Error("expected text node to have no prompt input")
		}
	})
}

func TestVisibleOutputs(t *testing.T) {
	t.Run("image generator shows numberOfImages slots", func(t *testing.T) {
		node := NewNode("g", NodeTypeImageGenerator, Position{})
		for n := 1; n <= MaxImages; n++ {
			node.Data.(*ImageGeneratorData).NumberOfImages = n
			outputs := VisibleOutputs(*node)
			if len(outputs) != n {
				t.Fatalf("numberOfImages=%d: expected %d outputs, got %d", n, n, len(outputs))
			}
			for i, h := range outputs {
				if h.ID != ImageOutputHandle(i+1) {
					t.Errorf("expected slot %d to be %s, got %s", i, ImageOutputHandle(i+1), h.ID)
				}
			}
		}
	})

	t.Run("extractor shows one slot per character", func(t *testing.T) {
		node := NewNode("x", NodeTypeCharacterExtractor, Position{})
		if n := len(VisibleOutputs(*node)); n != 0 {
			t.Errorf("expected no outputs before extraction, got %d", n)
		}

		node.Data.(*CharacterExtractorData).Characters = []Character{{Name: "a"}, {Name: "b"}, {Name: "c"}}
		if n := len(VisibleOutputs(*node)); n != 3 {
			t.Errorf("expected 3 outputs, got %d", n)
		}
	})

	t.Run("static types show all declared outputs", func(t *testing.T) {
		node := NewNode("v", NodeTypeVideoGenerator, Position{})
		if _, dir, ok := VisibleHandle(*node, HandleVideoOutput); !ok || dir != DirectionOutput {
			t.Error("expected video_output to be visible")
		}
	})
}

func TestOutputValue(t *testing.T) {
	node := NewNode("g", NodeTypeImageGenerator, Position{})
	node.Data.(*ImageGeneratorData).Images = []string{"one", "two"}

	tests := []struct {
		handle string
		url    string
		ok     bool
	}{
		{ImageOutputHandle(1), "one", true},
		{ImageOutputHandle(2), "two", true},
		{ImageOutputHandle(3), "", true},
		{HandlePromptInput, "", false},
		{"nope", "", false},
	}

	for _, tt := range tests {
		v, ok := OutputValue(*node, tt.handle)
		if ok != tt.ok || v.URL != tt.url {
			t.Errorf("OutputValue(%s) = (%+v, %v), want url %q ok %v", tt.handle, v, ok, tt.url, tt.ok)
		}
	}
}
