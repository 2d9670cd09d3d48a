package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Registry is the static citation-source lookup loaded from
// sources.json, keyed by the short source name used in each survey's
// config block (config.yml's per-survey `associated_sources`).
//
// Mirrors original_source/tarxiv/data_sources.py's Survey.__init__
// reading `sources.json` from TARXIV_CONFIG_DIR into self.schema_sources.
type Registry struct {
	sources map[string]CitationSource
}

// LoadRegistry reads sources.json from configDir (falling back to the
// TARXIV_CONFIG_DIR environment variable, then "./aux", matching the
// original's default of `<package dir>/../aux`).
func LoadRegistry(configDir string) (*Registry, error) {
	if configDir == "" {
		configDir = os.Getenv("TARXIV_CONFIG_DIR")
	}
	if configDir == "" {
		configDir = "aux"
	}

	path := filepath.Join(configDir, "sources.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read sources.json: %w", err)
	}

	var sources map[string]CitationSource
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("schema: parse sources.json: %w", err)
	}

	return &Registry{sources: sources}, nil
}

// Lookup returns the citation source for the given registry key.
func (r *Registry) Lookup(key string) (CitationSource, bool) {
	c, ok := r.sources[key]
	return c, ok
}

// LookupMany resolves a list of registry keys (a survey's
// associated_sources config entry) into CitationSource records,
// skipping unknown keys.
func (r *Registry) LookupMany(keys []string) []CitationSource {
	out := make([]CitationSource, 0, len(keys))
	for _, k := range keys {
		if c, ok := r.sources[k]; ok {
			out = append(out, c)
		}
	}
	return out
}
