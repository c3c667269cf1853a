// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package run

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/bureau-foundation/turbot/lib/codec"
)

func TestIDJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		want   ID
		output string
	}{
		{`42`, Numbered(42), `42`},
		{`"42"`, Numbered(42), `42`},
		{`"draft"`, DraftID(), `"draft"`},
		{`0`, Numbered(0), `0`},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			t.Parallel()
			var id ID
			if err := json.Unmarshal([]byte(test.input), &id); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if id != test.want {
				t.Errorf("Unmarshal(%s) = %v, want %v", test.input, id, test.want)
			}
			output, err := json.Marshal(id)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(output) != test.output {
				t.Errorf("Marshal = %s, want %s", output, test.output)
			}
		})
	}
}

func TestIDRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, input := range []string{`"drafty"`, `1.5`, `true`, `"x1"`} {
		var id ID
		if err := json.Unmarshal([]byte(input), &id); err == nil {
			t.Errorf("Unmarshal(%s) = %v, want error", input, id)
		}
	}
}

func TestParamsFromJSON(t *testing.T) {
	t.Parallel()

	var params Params
	err := json.Unmarshal([]byte(`{
		"bot_name": "weather",
		"run_id": "draft",
		"run_uid": "abc123",
		"run_type": "draft",
		"user_api_key": "key",
		"user_roles": ["admin"]
	}`), &params)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !params.RunID.IsDraft() {
		t.Errorf("RunID = %v, want draft", params.RunID)
	}
	if !params.IsAdmin() {
		t.Error("IsAdmin() = false, want true")
	}
	if err := params.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	params := Params{BotName: "../etc", RunType: "weekly"}
	err := params.Validate()
	if err == nil {
		t.Fatal("Validate returned nil")
	}
	for _, fragment := range []string{"bot_name", "run_uid is required", "user_api_key is required", "run_type"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("Validate error missing %q: %v", fragment, err)
		}
	}
}

func TestNewLayout(t *testing.T) {
	t.Parallel()

	params := Params{
		BotName:    "weather",
		RunID:      Numbered(7),
		RunUID:     "uid7",
		RunType:    Normal,
		UserAPIKey: "k1",
	}
	layout := NewLayout("/base", params)

	checks := map[string][2]string{
		"Repo":      {layout.Repo, "/base/repo/w/weather"},
		"Data":      {layout.Data, "/base/data/w/weather"},
		"Tmp":       {layout.Tmp, "/base/tmp/w/weather/uid7"},
		"Output":    {layout.Output, "/base/output/non-draft/w/weather/uid7"},
		"Downloads": {layout.Downloads, "/base/downloads/w/weather/uid7/k1"},
		"Manifest":  {layout.Manifest(), "/base/repo/w/weather/manifest.json"},
		"TimeFile":  {layout.OutputFile(TimeFile), "/base/output/non-draft/w/weather/uid7/time.out"},
	}
	for name, check := range checks {
		if check[0] != check[1] {
			t.Errorf("%s = %q, want %q", name, check[0], check[1])
		}
	}

	params.RunID = DraftID()
	if got, want := NewLayout("/base", params).Output, "/base/output/draft/w/weather/uid7"; got != want {
		t.Errorf("draft Output = %q, want %q", got, want)
	}
}

func TestParamsFromCBOR(t *testing.T) {
	t.Parallel()

	original := Params{
		BotName:    "weather",
		RunID:      Numbered(12),
		RunUID:     "uid12",
		RunType:    Prescrape,
		UserAPIKey: "key",
	}
	data, err := codec.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Params
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.RunID != original.RunID || decoded.BotName != original.BotName || decoded.RunType != original.RunType {
		t.Errorf("decoded = %+v, want %+v", decoded, original)
	}
}
