// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"errors"
	"fmt"
	"strings"
)

// Failure is the metrics payload of a failed run.
type Failure struct {
	// Class is the Go type of the first error in the chain that is not
	// a bare wrapper from fmt.Errorf or errors.Join.
	Class string `json:"class"`

	Message string `json:"message"`

	// Backtrace lists the error wrap chain, outermost first, followed
	// by the goroutine stack when the failure was a panic.
	Backtrace []string `json:"backtrace"`
}

// NewFailure describes err. stack is a goroutine dump such as
// runtime/debug.Stack returns, or nil.
func NewFailure(err error, stack []byte) Failure {
	if err == nil {
		err = errors.New("unknown failure")
	}
	failure := Failure{
		Class:   class(err),
		Message: err.Error(),
	}
	failure.Backtrace = chain(err, "", failure.Backtrace)
	for _, line := range strings.Split(strings.TrimSpace(string(stack)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			failure.Backtrace = append(failure.Backtrace, line)
		}
	}
	return failure
}

// wrapperTypes carry no information beyond their message.
var wrapperTypes = map[string]bool{
	"*fmt.wrapError":    true,
	"*fmt.wrapErrors":   true,
	"*errors.joinError": true,
}

// class descends through wrappers, taking the first branch of a
// multi-error, to the first error with a meaningful type.
func class(err error) string {
	for {
		name := fmt.Sprintf("%T", err)
		if !wrapperTypes[name] {
			return name
		}
		var next error
		switch wrapped := err.(type) {
		case interface{ Unwrap() []error }:
			if branches := wrapped.Unwrap(); len(branches) > 0 {
				next = branches[0]
			}
		case interface{ Unwrap() error }:
			next = wrapped.Unwrap()
		}
		if next == nil {
			return name
		}
		err = next
	}
}

// chain appends "type: message" for err and everything it wraps.
// Branches of joined errors are indented.
func chain(err error, indent string, lines []string) []string {
	for err != nil {
		lines = append(lines, fmt.Sprintf("%s%T: %s", indent, err, err.Error()))
		switch wrapped := err.(type) {
		case interface{ Unwrap() []error }:
			for _, branch := range wrapped.Unwrap() {
				lines = chain(branch, indent+"  ", lines)
			}
			return lines
		case interface{ Unwrap() error }:
			err = wrapped.Unwrap()
		default:
			return lines
		}
	}
	return lines
}
