package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogEntry adjusts a registered tool from a deployment's catalog file.
// The catalog cannot add tools, only tune or disable the ones compiled in.
type CatalogEntry struct {
	Name           string `yaml:"name"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
	Disabled       bool   `yaml:"disabled,omitempty"`
}

// Catalog is the on-disk tool catalog format.
type Catalog struct {
	Tools []CatalogEntry `yaml:"tools"`
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tool catalog: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parsing tool catalog: %w", err)
	}
	return &cat, nil
}

// Apply overlays catalog entries onto registered specs. Entries naming
// unregistered tools are an error: a typo in the catalog should fail
// startup, not silently do nothing.
func (r *Registry) Apply(cat *Catalog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range cat.Tools {
		spec, ok := r.specs[entry.Name]
		if !ok {
			return fmt.Errorf("%w: catalog entry %q", ErrUnknownTool, entry.Name)
		}
		if entry.TimeoutSeconds > 0 {
			spec.TimeoutSeconds = entry.TimeoutSeconds
		}
		spec.Disabled = entry.Disabled
		r.specs[entry.Name] = spec
	}
	return nil
}
