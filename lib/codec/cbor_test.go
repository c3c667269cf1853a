// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type sampleParams struct {
	BotName string   `json:"bot_name"`
	Roles   []string `json:"user_roles,omitempty"`
	Count   int      `json:"count"`
}

func TestMarshalIsDeterministic(t *testing.T) {
	t.Parallel()

	first, err := Marshal(map[string]any{"b": 1, "a": 2, "c": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(map[string]any{"c": 3, "a": 2, "b": 1})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("Marshal produced %x then %x for the same map", first, again)
		}
	}
}

func TestJSONTagsAreHonoured(t *testing.T) {
	t.Parallel()

	data, err := Marshal(sampleParams{BotName: "weather", Count: 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["bot_name"] != "weather" {
		t.Errorf("bot_name = %v, want weather", decoded["bot_name"])
	}
	if _, present := decoded["user_roles"]; present {
		t.Error("omitempty field user_roles was encoded")
	}
}

func TestDecodeFromReader(t *testing.T) {
	t.Parallel()

	data, err := Marshal(sampleParams{BotName: "weather", Roles: []string{"admin"}, Count: 7})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var params sampleParams
	if err := Decode(bytes.NewReader(data), &params); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if params.BotName != "weather" || params.Count != 7 || len(params.Roles) != 1 {
		t.Errorf("Decode = %+v", params)
	}
}
