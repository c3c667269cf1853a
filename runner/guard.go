// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"fmt"
	"runtime/debug"
)

// PanicError is a panic recovered from the pipeline.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// guard calls fn and converts a panic into a *PanicError with the
// goroutine stack at the point of the panic.
func guard(fn func() error) (stack []byte, err error) {
	defer func() {
		if value := recover(); value != nil {
			err = &PanicError{Value: value}
			stack = debug.Stack()
		}
	}()
	return nil, fn()
}
