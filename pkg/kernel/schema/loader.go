package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and structurally decodes a quest/v0 procedure YAML.
// Returns a structural error if the YAML contains unknown fields.
func LoadFile(path string) (*Procedure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open procedure: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a quest/v0 procedure from a reader.
func Load(r io.Reader) (*Procedure, error) {
	var p Procedure
	if err := decodeStrict(r, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadWorldFile reads and structurally decodes a world/v0 YAML document.
func LoadWorldFile(path string) (*World, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open world: %w", err)
	}
	defer f.Close()
	return LoadWorld(f)
}

// LoadWorld reads a world/v0 document from a reader.
func LoadWorld(r io.Reader) (*World, error) {
	var w World
	if err := decodeStrict(r, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func decodeStrict(r io.Reader, v any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // strict: reject unknown fields
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("structural decode: %w", err)
	}
	return nil
}
