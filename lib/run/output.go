// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package run

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrNotRegular is returned by OpenOutput for a symlink, FIFO, device
// or directory.
var ErrNotRegular = errors.New("not a regular file")

// OpenOutput opens a file in the output directory for reading. The bot
// owns that directory, so a symlink is never followed and anything
// but a regular file is refused with ErrNotRegular. A missing file
// fails with an error matching fs.ErrNotExist.
func OpenOutput(path string) (*os.File, error) {
	// O_NONBLOCK keeps a planted FIFO from blocking the open.
	file, err := os.OpenFile(path, os.O_RDONLY|unix.O_NOFOLLOW|unix.O_NONBLOCK, 0)
	if errors.Is(err, unix.ELOOP) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		file.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	return file, nil
}
