// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/turbot/lib/netutil"
)

// APIError is a non-2xx response from the coordinator. Callers
// extract it with errors.As.
type APIError struct {
	StatusCode int

	// Message is the "error" member of a JSON error body, or the
	// start of the raw body.
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("coordinator: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("coordinator: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

func newAPIError(response *http.Response) *APIError {
	apiErr := &APIError{StatusCode: response.StatusCode}
	body := netutil.ErrorBody(response.Body)
	var decoded struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(body), &decoded) == nil && decoded.Error != "" {
		apiErr.Message = decoded.Error
	} else {
		apiErr.Message = body
	}
	return apiErr
}
