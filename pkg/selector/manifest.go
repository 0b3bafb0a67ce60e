// Package selector picks the scene variant a device can render, based on
// the compressed texture extensions its GPU exposes.
package selector

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrNoFallback is returned for a variant list without an entry that has no
// requirements.
var ErrNoFallback = errors.New("no variant without requirements")

// Entry is one selectable variant.
type Entry struct {
	Name string `json:"name"`
	// Required lists WebGL extension names that must all be present.
	Required []string `json:"required"`
	URL      string   `json:"url"`
	// Type is "gltf" or "glb".
	Type string `json:"type,omitempty"`
}

// IsFallback reports whether the entry can always be chosen.
func (e Entry) IsFallback() bool { return len(e.Required) == 0 }

// Manifest is the ordered decision list of one source scene.
type Manifest struct {
	Source  string  `json:"source"`
	Entries []Entry `json:"variants"`
}

// Generate builds a manifest. Entry order is kept, except that the first
// entry without requirements is moved to the end where it terminates the
// search; any other requirement-free entries are unreachable and dropped.
func Generate(source string, entries []Entry) (*Manifest, error) {
	m := &Manifest{Source: source}
	var fallback *Entry
	for _, e := range entries {
		if e.IsFallback() {
			if fallback == nil {
				fallback = &e
			}
			continue
		}
		m.Entries = append(m.Entries, e)
	}
	if fallback == nil {
		return nil, fmt.Errorf("%s: %w", source, ErrNoFallback)
	}
	m.Entries = append(m.Entries, *fallback)
	return m, nil
}

// Fallback returns the terminal entry.
func (m *Manifest) Fallback() Entry {
	return m.Entries[len(m.Entries)-1]
}

// Features returns every required extension name in first-seen order.
func (m *Manifest) Features() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range m.Entries {
		for _, r := range e.Required {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out
}

// Parse decodes and validates a manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if len(m.Entries) == 0 || !m.Fallback().IsFallback() {
		return nil, fmt.Errorf("%s: %w", m.Source, ErrNoFallback)
	}
	return &m, nil
}

// Load reads a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Marshal encodes the manifest as indented JSON.
func (m *Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
