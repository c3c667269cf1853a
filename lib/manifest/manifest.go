// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest reads a bot's manifest.json.
//
// The manifest names the primary data type a bot emits, the fields
// that identify a record of that type, and any transformers that
// derive further data types from the primary output. It is loaded
// once per run and never modified. Comments and trailing commas are
// tolerated since manifests are written by hand.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

// ErrIdentifyingFields is returned when a data type cannot be mapped
// to exactly one set of identifying fields.
var ErrIdentifyingFields = errors.New("cannot resolve identifying fields")

// Manifest is the parsed manifest.json.
type Manifest struct {
	BotID             string        `json:"bot_id,omitempty"`
	DataType          string        `json:"data_type"`
	IdentifyingFields []string      `json:"identifying_fields"`
	Transformers      []Transformer `json:"transformers,omitempty"`

	// Incremental is the legacy spelling of ManuallyEndRun.
	Incremental    bool `json:"incremental,omitempty"`
	ManuallyEndRun bool `json:"manually_end_run,omitempty"`
	Stateful       bool `json:"stateful,omitempty"`
}

// Transformer derives records of DataType from the primary output.
type Transformer struct {
	DataType          string   `json:"data_type"`
	IdentifyingFields []string `json:"identifying_fields"`

	// File is the transformer script, relative to the repository.
	File string `json:"file"`
}

// OutputName returns the output file the transformer writes:
// "transformers/foo.rb" writes "foo.out".
func (t Transformer) OutputName() string {
	base := filepath.Base(t.File)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".out"
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	manifest, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return manifest, nil
}

// Parse parses manifest JSON, tolerating comments and trailing commas.
func Parse(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// EndsRunAutomatically reports whether the runner must publish the
// run-ended message itself once output processing finishes.
func (m *Manifest) EndsRunAutomatically() bool {
	return !m.Incremental && !m.ManuallyEndRun
}

// FieldsFor returns the identifying fields for dataType. The
// primary data type takes precedence; otherwise exactly one
// transformer must declare dataType.
func (m *Manifest) FieldsFor(dataType string) ([]string, error) {
	if dataType == m.DataType {
		return m.IdentifyingFields, nil
	}

	var matches []Transformer
	for _, transformer := range m.Transformers {
		if transformer.DataType == dataType {
			matches = append(matches, transformer)
		}
	}
	if len(matches) != 1 {
		return nil, fmt.Errorf("%w: data type %q matches %d transformers, want exactly 1",
			ErrIdentifyingFields, dataType, len(matches))
	}
	return matches[0].IdentifyingFields, nil
}

// OutputNames returns the primary output file name followed by the
// output file of each transformer, in manifest order.
func (m *Manifest) OutputNames(primary string) []string {
	names := []string{primary}
	for _, transformer := range m.Transformers {
		names = append(names, transformer.OutputName())
	}
	return names
}
