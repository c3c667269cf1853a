// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
	"net/http"
)

// ManagementError is an error response from the RabbitMQ management
// API. Callers extract it with errors.As:
//
//	var managementErr *ManagementError
//	if errors.As(err, &managementErr) && managementErr.StatusCode == http.StatusNotFound {
//	    ...
//	}
type ManagementError struct {
	// Err is RabbitMQ's short error, e.g. "Object Not Found".
	Err string `json:"error"`
	// Reason is the longer explanation.
	Reason string `json:"reason"`
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`
}

func (e *ManagementError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("rabbitmq management: %s (%d)", e.Err, e.StatusCode)
	}
	return fmt.Sprintf("rabbitmq management: %s (%d): %s", e.Err, e.StatusCode, e.Reason)
}

// IsNotFound reports whether err is a management API 404, which for
// queue statistics means the consumer queue has not been declared.
func IsNotFound(err error) bool {
	var managementErr *ManagementError
	return errors.As(err, &managementErr) && managementErr.StatusCode == http.StatusNotFound
}
