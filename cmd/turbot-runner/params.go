// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/turbot/lib/codec"
	"github.com/bureau-foundation/turbot/lib/run"
)

// readParams decodes run parameters from path. "-" reads JSON from
// stdin; a .cbor extension selects CBOR.
func readParams(path string, stdin io.Reader) (run.Params, error) {
	var params run.Params

	if path == "-" {
		if err := json.NewDecoder(stdin).Decode(&params); err != nil {
			return run.Params{}, fmt.Errorf("decoding params from stdin: %w", err)
		}
		return params, validateParams(params)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return run.Params{}, fmt.Errorf("reading params: %w", err)
	}
	if filepath.Ext(path) == ".cbor" {
		err = codec.Unmarshal(data, &params)
	} else {
		err = json.Unmarshal(data, &params)
	}
	if err != nil {
		return run.Params{}, fmt.Errorf("decoding params %s: %w", path, err)
	}
	return params, validateParams(params)
}

func validateParams(params run.Params) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
