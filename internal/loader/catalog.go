package loader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// IsTemplateFile reports whether name has a template file extension
func IsTemplateFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Catalog holds the templates found in one directory
type Catalog struct {
	mu        sync.RWMutex
	dir       string
	templates map[string]*Template
	logger    *slog.Logger
}

// NewCatalog creates a catalog for dir. Call Reload to read it.
func NewCatalog(dir string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		dir:       dir,
		templates: make(map[string]*Template),
		logger:    logger,
	}
}

// Dir returns the watched template directory
func (c *Catalog) Dir() string {
	return c.dir
}

// Reload rereads every template file. Files that fail to parse are logged
// and skipped; a missing directory yields an empty catalog.
func (c *Catalog) Reload() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read template dir: %w", err)
	}

	templates := make(map[string]*Template, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsTemplateFile(e.Name()) {
			continue
		}
		path := filepath.Join(c.dir, e.Name())
		tmpl, err := LoadTemplate(path)
		if err != nil {
			c.logger.Warn("skipping template", "file", path, "error", err)
			continue
		}
		if prev, dup := templates[tmpl.Name]; dup {
			c.logger.Warn("duplicate template name", "name", tmpl.Name, "kept", prev.File, "skipped", path)
			continue
		}
		templates[tmpl.Name] = tmpl
	}

	c.mu.Lock()
	c.templates = templates
	c.mu.Unlock()

	c.logger.Info("templates loaded", "dir", c.dir, "count", len(templates))
	return nil
}

// Get returns the template called name
func (c *Catalog) Get(name string) (*Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[name]
	return t, ok
}

// List returns all templates ordered by name
func (c *Catalog) List() []*Template {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *Template) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}
