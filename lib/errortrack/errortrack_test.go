// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package errortrack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestAirbrakeTrackerSendsNotice(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		path   string
		notice map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&notice); err != nil {
			t.Errorf("decoding notice: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"notice-1"}`))
	}))
	t.Cleanup(server.Close)

	tracker, err := NewAirbrakeTracker(AirbrakeConfig{
		ProjectID:   12,
		ProjectKey:  "key",
		Host:        server.URL,
		Environment: "test",
		HTTPClient:  server.Client(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewAirbrakeTracker: %v", err)
	}
	defer tracker.Close()

	err = tracker.Notify(context.Background(), errors.New("sandbox exploded"), map[string]any{
		"bot_name":     "weather",
		"user_api_key": "hunter2",
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/api/v3/projects/12/notices" {
		t.Errorf("path = %q, want /api/v3/projects/12/notices", path)
	}
	encoded, _ := json.Marshal(notice)
	if !bytes.Contains(encoded, []byte("sandbox exploded")) {
		t.Errorf("notice %s does not carry the error", encoded)
	}
	if bytes.Contains(encoded, []byte("hunter2")) {
		t.Errorf("notice %s leaks the user API key", encoded)
	}
	params, _ := notice["params"].(map[string]any)
	if params["bot_name"] != "weather" {
		t.Errorf("params = %v, want bot_name", notice["params"])
	}
}

func TestNewAirbrakeTrackerRequiresProject(t *testing.T) {
	t.Parallel()

	if _, err := NewAirbrakeTracker(AirbrakeConfig{ProjectKey: "key"}); err == nil {
		t.Error("NewAirbrakeTracker without project id succeeded")
	}
}

func TestLogTrackerFiltersSecrets(t *testing.T) {
	t.Parallel()

	var output bytes.Buffer
	tracker := NewLogTracker(slog.New(slog.NewTextHandler(&output, nil)))
	params := map[string]any{"bot_name": "weather", "user_api_key": "hunter2"}
	if err := tracker.Notify(context.Background(), errors.New("boom"), params); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if strings.Contains(output.String(), "hunter2") {
		t.Errorf("log %q leaks the user API key", output.String())
	}
	if !strings.Contains(output.String(), "boom") || !strings.Contains(output.String(), "weather") {
		t.Errorf("log %q missing error or params", output.String())
	}
	if params["user_api_key"] != "hunter2" {
		t.Error("Notify modified the caller's params")
	}
	if err := tracker.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
