package adapter

import (
	"context"
	"fmt"
	"time"

	"nodeflow/internal/domain"
)

// Stub is an offline generator that answers every generative type with
// deterministic placeholder results. It backs local development and tests.
type Stub struct {
	// BaseURL prefixes the fabricated media URLs
	BaseURL string
	// Latency delays each answer; cancellation during the delay is honored
	Latency time.Duration
}

var _ Generator = (*Stub)(nil)

// NewStub creates a stub generator
func NewStub(baseURL string, latency time.Duration) *Stub {
	if baseURL == "" {
		baseURL = "stub://media"
	}
	return &Stub{BaseURL: baseURL, Latency: latency}
}

func (s *Stub) Name() string { return "stub" }

func (s *Stub) Supports(t domain.NodeType) bool { return t.Generative() }

// Generate fabricates an output shaped for req.NodeType
func (s *Stub) Generate(ctx context.Context, req Request) (domain.Output, error) {
	if s.Latency > 0 {
		timer := time.NewTimer(s.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.Output{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return domain.Output{}, err
	}

	media := func(n int) []string {
		urls := make([]string, n)
		for i := range urls {
			urls[i] = fmt.Sprintf("%s/%s/%s/%d", s.BaseURL, req.NodeType, req.NodeID, i+1)
		}
		return urls
	}

	switch req.NodeType {
	case domain.NodeTypeTextGenerator:
		return domain.Output{Text: "generated: " + req.Prompt}, nil
	case domain.NodeTypeImageGenerator:
		n := req.Params.NumberOfImages
		if n <= 0 {
			n = 1
		}
		return domain.Output{Media: media(min(n, domain.MaxImages))}, nil
	case domain.NodeTypeImageEditor, domain.NodeTypeImageMixer,
		domain.NodeTypeCharacterGenerator, domain.NodeTypeVideoGenerator:
		return domain.Output{Media: media(1)}, nil
	case domain.NodeTypeCharacterExtractor:
		urls := media(2)
		chars := make([]domain.Character, len(urls))
		for i, u := range urls {
			chars[i] = domain.Character{Name: fmt.Sprintf("Character %d", i+1), ImageURL: u}
		}
		return domain.Output{Characters: chars}, nil
	}
	return domain.Output{}, fmt.Errorf("%w: %s", ErrUnsupported, req.NodeType)
}
