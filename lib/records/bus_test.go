// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package records

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/turbot/lib/clock"
	"github.com/bureau-foundation/turbot/lib/manifest"
	"github.com/bureau-foundation/turbot/lib/run"
	"github.com/bureau-foundation/turbot/messaging"
)

var exportTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.FixedZone("CET", 3600))

func newTestBus(t *testing.T, client messaging.Client, runID run.ID) *BusHandler {
	t.Helper()
	handler, err := NewBusHandler(BusConfig{
		Client:   client,
		Manifest: mustManifest(t, companiesManifest),
		BotName:  "weather",
		RunID:    runID,
		Clock:    clock.Fake(exportTime),
		Logger:   discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewBusHandler: %v", err)
	}
	return handler
}

func connectedMemory(t *testing.T) *messaging.Memory {
	t.Helper()
	client := &messaging.Memory{}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return client
}

func TestBusHandlerPublishesRecord(t *testing.T) {
	t.Parallel()

	client := connectedMemory(t)
	handler := newTestBus(t, client, run.Numbered(12))

	decision, err := handler.OnValidRecord(context.Background(), Record{
		DataType: "officer",
		Data:     map[string]json.RawMessage{"name": json.RawMessage(`"Ada"`)},
	})
	if err != nil {
		t.Fatalf("OnValidRecord: %v", err)
	}
	if decision != Continue {
		t.Errorf("decision = %v, want continue", decision)
	}

	messages := client.Messages()
	if len(messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(messages))
	}
	if messages[0].RoutingKey != RoutingNonDraft {
		t.Errorf("routing key = %q, want %q", messages[0].RoutingKey, RoutingNonDraft)
	}

	var got map[string]any
	if err := json.Unmarshal(messages[0].Body, &got); err != nil {
		t.Fatalf("decoding message: %v", err)
	}
	if got["type"] != TypeRecord {
		t.Errorf("type = %v, want %q", got["type"], TypeRecord)
	}
	if got["bot_name"] != "weather" {
		t.Errorf("bot_name = %v, want weather", got["bot_name"])
	}
	if got["run_id"] != float64(12) || got["snapshot_id"] != float64(12) {
		t.Errorf("run_id, snapshot_id = %v, %v, want 12", got["run_id"], got["snapshot_id"])
	}
	if got["export_date"] != "2026-03-14T08:26:53Z" {
		t.Errorf("export_date = %v, want UTC RFC 3339", got["export_date"])
	}
	if got["data_type"] != "officer" {
		t.Errorf("data_type = %v, want officer", got["data_type"])
	}
	fields, _ := got["identifying_fields"].([]any)
	if len(fields) != 1 || fields[0] != "name" {
		t.Errorf("identifying_fields = %v, want [name]", got["identifying_fields"])
	}
	data, _ := got["data"].(map[string]any)
	if data["name"] != "Ada" {
		t.Errorf("data = %v, want the record", got["data"])
	}
}

func TestBusHandlerRunEnded(t *testing.T) {
	t.Parallel()

	client := connectedMemory(t)
	handler := newTestBus(t, client, run.DraftID())

	decision, err := handler.OnRunEnded(context.Background())
	if err != nil {
		t.Fatalf("OnRunEnded: %v", err)
	}
	if decision != Continue {
		t.Errorf("decision = %v, want continue", decision)
	}

	messages := client.Messages()
	if len(messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(messages))
	}
	if messages[0].RoutingKey != RoutingDraft {
		t.Errorf("routing key = %q, want %q", messages[0].RoutingKey, RoutingDraft)
	}
	var got RunEndedMessage
	if err := json.Unmarshal(messages[0].Body, &got); err != nil {
		t.Fatalf("decoding message: %v", err)
	}
	if got.Type != TypeRunEnded || got.BotName != "weather" || !got.SnapshotID.IsDraft() {
		t.Errorf("run ended message = %+v", got)
	}
}

func TestBusProcessEndsAfterTransformerRecords(t *testing.T) {
	t.Parallel()

	output := t.TempDir()
	writeOutput(t, output, run.PrimaryFile, `{"data_type": "primary", "id": 1}`, RunEndedLine)
	writeOutput(t, output, "officers.out",
		`{"data_type": "officer", "name": "Ada"}`,
		`{"data_type": "officer", "name": "Grace"}`,
	)

	client := connectedMemory(t)
	parsed := mustManifest(t, companiesManifest)
	handler, err := NewBusHandler(BusConfig{
		Client:   client,
		Manifest: parsed,
		BotName:  "weather",
		RunID:    run.Numbered(5),
		Logger:   discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewBusHandler: %v", err)
	}
	if _, err := newTestProcessor(t, handler, nil).Process(context.Background(), Input{
		Output:   output,
		Manifest: parsed,
		RunID:    run.Numbered(5),
	}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	var types []string
	for _, message := range client.Messages() {
		var envelope struct {
			Type     string `json:"type"`
			DataType string `json:"data_type"`
		}
		if err := json.Unmarshal(message.Body, &envelope); err != nil {
			t.Fatalf("decoding message: %v", err)
		}
		types = append(types, envelope.Type+"/"+envelope.DataType)
	}
	want := []string{"bot.record/primary", "bot.record/officer", "bot.record/officer", "run.ended/"}
	if !slices.Equal(types, want) {
		t.Errorf("published %v, want %v", types, want)
	}
}

func TestBusHandlerUnknownDataTypeIsFatal(t *testing.T) {
	t.Parallel()

	client := connectedMemory(t)
	handler := newTestBus(t, client, run.Numbered(1))

	_, err := handler.OnValidRecord(context.Background(), Record{DataType: "shareholder"})
	if !errors.Is(err, manifest.ErrIdentifyingFields) {
		t.Fatalf("OnValidRecord = %v, want ErrIdentifyingFields", err)
	}
	if len(client.Messages()) != 0 {
		t.Error("published a record without identifying fields")
	}
}

func TestBusHandlerPublishFailure(t *testing.T) {
	t.Parallel()

	handler := newTestBus(t, &messaging.Memory{}, run.Numbered(1))
	_, err := handler.OnValidRecord(context.Background(), Record{DataType: "primary"})
	if !errors.Is(err, messaging.ErrNotConnected) {
		t.Fatalf("OnValidRecord on unconnected client = %v, want ErrNotConnected", err)
	}
}

func TestBusHandlerInvalidLinesContinue(t *testing.T) {
	t.Parallel()

	handler := newTestBus(t, connectedMemory(t), run.Numbered(1))
	ctx := context.Background()
	if decision, err := handler.OnInvalidRecord(ctx, []byte(`[]`), "record is not a JSON object"); err != nil || decision != Continue {
		t.Errorf("OnInvalidRecord = %v, %v, want continue", decision, err)
	}
	if decision, err := handler.OnInvalidInput(ctx, []byte(`nope`), errors.New("syntax")); err != nil || decision != Continue {
		t.Errorf("OnInvalidInput = %v, %v, want continue", decision, err)
	}
}

// TestProcessWithBusPublishesOneEnd drives a whole output file through
// the bus handler for each manifest flag combination.
func TestProcessWithBusPublishesOneEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		flags    string
		sentinel bool
		wantEnds int
	}{
		{name: "automatic", flags: ``, wantEnds: 1},
		{name: "automatic with sentinel", flags: ``, sentinel: true, wantEnds: 1},
		{name: "incremental", flags: `"incremental": true,`, wantEnds: 0},
		{name: "incremental with sentinel", flags: `"incremental": true,`, sentinel: true, wantEnds: 1},
		{name: "manual", flags: `"manually_end_run": true,`, wantEnds: 0},
		{name: "manual with sentinel", flags: `"manually_end_run": true,`, sentinel: true, wantEnds: 1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			output := t.TempDir()
			lines := []string{`{"data_type": "primary", "id": 1}`, `{"data_type": "primary", "id": 2}`}
			if test.sentinel {
				lines = append(lines, RunEndedLine, RunEndedLine)
			}
			writeOutput(t, output, run.PrimaryFile, lines...)

			client := connectedMemory(t)
			parsed := mustManifest(t, `{`+test.flags+` "data_type": "primary", "identifying_fields": ["id"]}`)
			handler, err := NewBusHandler(BusConfig{
				Client:   client,
				Manifest: parsed,
				BotName:  "weather",
				RunID:    run.Numbered(3),
				Throttle: NewThrottle(ThrottleConfig{Stats: client, BatchSize: 1, Logger: discardLogger()}),
				Logger:   discardLogger(),
			})
			if err != nil {
				t.Fatalf("NewBusHandler: %v", err)
			}

			if _, err := newTestProcessor(t, handler, nil).Process(context.Background(), Input{
				Output:   output,
				Manifest: parsed,
				RunID:    run.Numbered(3),
			}); err != nil {
				t.Fatalf("Process: %v", err)
			}

			var records, ends int
			for _, message := range client.Messages() {
				var envelope struct {
					Type string `json:"type"`
				}
				if err := json.Unmarshal(message.Body, &envelope); err != nil {
					t.Fatalf("decoding message: %v", err)
				}
				switch envelope.Type {
				case TypeRecord:
					records++
				case TypeRunEnded:
					ends++
				}
			}
			if records != 2 {
				t.Errorf("published %d records, want 2", records)
			}
			if ends != test.wantEnds {
				t.Errorf("published %d run.ended messages, want %d", ends, test.wantEnds)
			}
		})
	}
}
