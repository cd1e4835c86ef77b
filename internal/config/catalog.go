package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogEntry describes one known model in the catalog file.
type CatalogEntry struct {
	ID            string `yaml:"id"`
	Provider      string `yaml:"provider"` // openai, anthropic, google
	Name          string `yaml:"name,omitempty"`
	ContextLength int    `yaml:"context_length,omitempty"`
}

// Catalog is the set of known models, loaded from models.yaml and kept
// fresh with the model-registry-sync tool. Config validation resolves
// model references against it.
type Catalog struct {
	Models []CatalogEntry `yaml:"models"`

	byID map[string]CatalogEntry
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	c.index()
	return &c, nil
}

// NewCatalog builds a catalog from entries, mainly for tests.
func NewCatalog(entries ...CatalogEntry) *Catalog {
	c := &Catalog{Models: entries}
	c.index()
	return c
}

func (c *Catalog) index() {
	c.byID = make(map[string]CatalogEntry, len(c.Models))
	for _, m := range c.Models {
		c.byID[m.ID] = m
	}
}

// Lookup resolves a model id.
func (c *Catalog) Lookup(id string) (CatalogEntry, bool) {
	m, ok := c.byID[id]
	return m, ok
}
