package adapter

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"nodeflow/internal/domain"
)

// Registry maps node types to the generator that serves them
type Registry struct {
	mu         sync.RWMutex
	generators map[string]Generator
	byType     map[domain.NodeType]string
	fallback   Generator
	logger     *slog.Logger
}

// NewRegistry creates an empty generator registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		generators: make(map[string]Generator),
		byType:     make(map[domain.NodeType]string),
		logger:     logger,
	}
}

// Register adds a generator. Node types it supports that are not yet bound
// to another generator are bound to it.
func (r *Registry) Register(g Generator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := g.Name()
	if _, exists := r.generators[name]; exists {
		return fmt.Errorf("generator %s already registered", name)
	}
	r.generators[name] = g

	var bound []string
	for _, t := range domain.NodeTypes {
		if !t.Generative() || !g.Supports(t) {
			continue
		}
		if _, taken := r.byType[t]; taken {
			continue
		}
		r.byType[t] = name
		bound = append(bound, string(t))
	}
	r.logger.Info("registered generator", "name", name, "types", bound)
	return nil
}

// SetFallback sets the generator used for types no registered generator serves
func (r *Registry) SetFallback(g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = g
	if g != nil {
		r.logger.Info("fallback generator set", "name", g.Name())
	}
}

// For returns the generator for node type t
func (r *Registry) For(t domain.NodeType) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name, ok := r.byType[t]; ok {
		return r.generators[name], nil
	}
	if r.fallback != nil && t.Generative() && r.fallback.Supports(t) {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
}

// List returns information about registered generators, ordered by name
func (r *Registry) List() []GeneratorInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]GeneratorInfo, 0, len(r.generators))
	for name := range r.generators {
		info := GeneratorInfo{Name: name, Types: []domain.NodeType{}}
		for _, t := range domain.NodeTypes {
			if r.byType[t] == name {
				info.Types = append(info.Types, t)
			}
		}
		infos = append(infos, info)
	}
	slices.SortFunc(infos, func(a, b GeneratorInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return infos
}

// GeneratorInfo provides read-only information about a generator
type GeneratorInfo struct {
	Name  string            `json:"name"`
	Types []domain.NodeType `json:"types"`
}
