// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package run

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Type classifies a run.
type Type string

const (
	Normal        Type = "normal"
	Draft         Type = "draft"
	Prescrape     Type = "prescrape"
	FirstOfScrape Type = "first_of_scrape"
)

// AdminRole grants the privileged source bind.
const AdminRole = "admin"

const draftID = "draft"

// ID is a run number or the draft sentinel. The zero value is run 0.
// On the wire a numbered run is a JSON number (or a numeric string)
// and a draft run is the string "draft".
type ID struct {
	number int64
	draft  bool
}

// Numbered returns the ID of run n.
func Numbered(n int64) ID { return ID{number: n} }

// DraftID returns the draft sentinel.
func DraftID() ID { return ID{draft: true} }

// IsDraft reports whether id is the draft sentinel.
func (id ID) IsDraft() bool { return id.draft }

// Number returns the run number. It is 0 for drafts.
func (id ID) Number() int64 { return id.number }

func (id ID) String() string {
	if id.draft {
		return draftID
	}
	return strconv.FormatInt(id.number, 10)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.draft {
		return []byte(`"` + draftID + `"`), nil
	}
	return strconv.AppendInt(nil, id.number, 10), nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		return id.UnmarshalText([]byte(text))
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	return id.UnmarshalText([]byte(number.String()))
}

// MarshalText lets ID travel through encodings without a native
// number-or-string union, such as CBOR parameter files.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if value == draftID {
		*id = DraftID()
		return nil
	}
	number, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("run id %q is neither a number nor %q", value, draftID)
	}
	*id = Numbered(number)
	return nil
}

// Params identifies one run and the user who triggered it.
type Params struct {
	BotName    string   `json:"bot_name"`
	RunID      ID       `json:"run_id"`
	RunUID     string   `json:"run_uid"`
	RunType    Type     `json:"run_type"`
	UserAPIKey string   `json:"user_api_key"`
	UserRoles  []string `json:"user_roles,omitempty"`
}

// IsAdmin reports whether the triggering user holds the admin role.
func (p Params) IsAdmin() bool {
	return slices.Contains(p.UserRoles, AdminRole)
}

// Validate checks the fields every run needs. The bot name and API
// key become path components, so separators are rejected.
func (p Params) Validate() error {
	var errs []error
	if p.BotName == "" {
		errs = append(errs, errors.New("bot_name is required"))
	} else if !safePathComponent(p.BotName) {
		errs = append(errs, fmt.Errorf("bot_name %q is not a valid path component", p.BotName))
	}
	if p.RunUID == "" {
		errs = append(errs, errors.New("run_uid is required"))
	} else if !safePathComponent(p.RunUID) {
		errs = append(errs, fmt.Errorf("run_uid %q is not a valid path component", p.RunUID))
	}
	if p.UserAPIKey == "" {
		errs = append(errs, errors.New("user_api_key is required"))
	} else if !safePathComponent(p.UserAPIKey) {
		errs = append(errs, errors.New("user_api_key is not a valid path component"))
	}
	switch p.RunType {
	case Normal, Draft, Prescrape, FirstOfScrape:
	default:
		errs = append(errs, fmt.Errorf("run_type %q is not one of normal, draft, prescrape, first_of_scrape", p.RunType))
	}
	return errors.Join(errs...)
}

func safePathComponent(value string) bool {
	return value != "." && value != ".." && !strings.ContainsAny(value, "/\\\x00")
}
