// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package generator

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema/profile-v1.json
var profileSchemaJSON string

// Profile is a named set of generator configurations loaded from YAML.
//
//	name: taxi
//	fps: 25
//	generators:
//	  - index: 0
//	    value: 100
//	    period: 2
//	    step: 10
//	    max: 4000
type Profile struct {
	Name       string `yaml:"name" json:"name,omitempty"`
	FPS        uint8  `yaml:"fps" json:"fps"`
	Generators []Slot `yaml:"generators" json:"generators"`
}

// Slot binds a config to a parameter index.
type Slot struct {
	Index  int `yaml:"index" json:"index"`
	Config `yaml:",inline"`
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func profileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("profile-v1.json", strings.NewReader(profileSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("profile-v1.json")
		if schemaErr != nil {
			schemaErr = fmt.Errorf("failed to compile schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// ParseProfile decodes and validates a YAML profile.
func ParseProfile(data []byte) (*Profile, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	// Round trip through JSON so the schema sees plain JSON types
	doc, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("profile is not representable as JSON: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(doc, &generic); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	s, err := profileSchema()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(generic); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	seen := make(map[int]bool, len(profile.Generators))
	for _, slot := range profile.Generators {
		if seen[slot.Index] {
			return nil, fmt.Errorf("generator index %d configured twice", slot.Index)
		}
		seen[slot.Index] = true
	}

	return &profile, nil
}

// LoadProfile reads and parses a YAML profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	profile, err := ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return profile, nil
}

// Apply configures every slot of the profile and enables emission at the
// profile's rate.
func (p *Profile) Apply(g *Generators) error {
	for _, slot := range p.Generators {
		if !g.Configure(slot.Index, slot.Config) {
			return fmt.Errorf("generator index %d out of range", slot.Index)
		}
	}
	g.Enable(p.FPS)
	return nil
}

// Marshal encodes the profile back to YAML.
func (p *Profile) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}
