// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive packages a run's record files for download.
//
// [Package] zips whichever expected output files exist into the
// output directory, writes a BLAKE3 digest next to the archive in
// b3sum format, and links the archive into the acting user's download
// directory.
package archive

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/turbot/lib/manifest"
	"github.com/bureau-foundation/turbot/lib/run"
)

// Mode is the permission of the finished archive.
const Mode fs.FileMode = 0644

// DigestSuffix is appended to the archive path for the digest file.
const DigestSuffix = ".b3"

// Request describes one run's packaging.
type Request struct {
	BotName  string
	RunUID   string
	Layout   run.Layout
	Manifest *manifest.Manifest
	Logger   *slog.Logger
}

// Artifact describes the packaged archive.
type Artifact struct {
	// Path is the archive in the output directory.
	Path string

	// Link is the symlink in the download directory.
	Link string

	// Digest is the hex BLAKE3-256 digest of the archive.
	Digest string

	// Files lists the archived file names in archive order.
	Files []string

	Size int64
}

// Name returns the archive file name for a run.
func Name(bot, runUID string) string {
	return bot + "-" + runUID + ".zip"
}

// Package builds the archive for request. Expected output files that
// do not exist are skipped; an archive with no entries is still
// written and linked.
func Package(ctx context.Context, request Request) (Artifact, error) {
	if request.Manifest == nil {
		return Artifact{}, errors.New("archive: manifest is required")
	}
	logger := request.Logger
	if logger == nil {
		logger = slog.Default()
	}

	name := Name(request.BotName, request.RunUID)
	artifact := Artifact{
		Path: filepath.Join(request.Layout.Output, name),
		Link: filepath.Join(request.Layout.Downloads, name),
	}

	var (
		present []string
		opened  []*os.File
	)
	defer func() {
		for _, file := range opened {
			file.Close()
		}
	}()
	for _, name := range request.Manifest.OutputNames(run.PrimaryFile) {
		file, err := run.OpenOutput(request.Layout.OutputFile(name))
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("skipping absent output", "file", name)
			continue
		}
		if errors.Is(err, run.ErrNotRegular) {
			logger.Warn("skipping output that is not a regular file", "file", name)
			continue
		}
		if err != nil {
			return Artifact{}, fmt.Errorf("archive: %w", err)
		}
		present = append(present, name)
		opened = append(opened, file)
	}

	digest, size, err := write(ctx, artifact.Path, present, opened)
	if err != nil {
		return Artifact{}, err
	}
	artifact.Digest = digest
	artifact.Size = size
	artifact.Files = present

	if err := os.Chmod(artifact.Path, Mode); err != nil {
		return Artifact{}, fmt.Errorf("archive: %w", err)
	}
	if err := writeDigest(artifact.Path+DigestSuffix, digest+"  "+name+"\n"); err != nil {
		return Artifact{}, fmt.Errorf("archive: writing digest: %w", err)
	}
	if err := link(artifact.Path, artifact.Link); err != nil {
		return Artifact{}, err
	}

	logger.Info("packaged output",
		"archive", artifact.Path,
		"files", len(present),
		"bytes", size,
		"blake3", digest,
	)
	return artifact, nil
}

// write zips files, stored under names, into path and returns the
// archive's digest and size. The archive is assembled under a
// temporary name and renamed into place.
func write(ctx context.Context, path string, names []string, files []*os.File) (string, int64, error) {
	temporary := path + ".partial"
	out, err := createExclusive(temporary)
	if err != nil {
		return "", 0, fmt.Errorf("archive: %w", err)
	}
	defer os.Remove(temporary)

	hasher := blake3.New()
	counter := &countingWriter{}
	archive := zip.NewWriter(io.MultiWriter(out, hasher, counter))

	for index, file := range files {
		if err := ctx.Err(); err != nil {
			out.Close()
			return "", 0, err
		}
		if err := addFile(archive, file, names[index]); err != nil {
			out.Close()
			return "", 0, fmt.Errorf("archive: adding %s: %w", names[index], err)
		}
	}
	if err := archive.Close(); err != nil {
		out.Close()
		return "", 0, fmt.Errorf("archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", 0, fmt.Errorf("archive: %w", err)
	}
	if err := os.Rename(temporary, path); err != nil {
		return "", 0, fmt.Errorf("archive: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), counter.n, nil
}

func addFile(archive *zip.Writer, file *os.File, name string) error {
	info, err := file.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	entry, err := archive.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, file)
	return err
}

// createExclusive replaces whatever the bot left at path with a new
// file. O_EXCL refuses to follow a symlink planted after the removal.
func createExclusive(path string) (*os.File, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, Mode)
}

func writeDigest(path, line string) error {
	file, err := createExclusive(path)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(file, line); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// link points linkPath at target, replacing whatever is there.
func link(target, linkPath string) error {
	if err := os.MkdirAll(filepath.Dir(linkPath), 0755); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if err := os.Remove(linkPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("archive: removing stale link: %w", err)
	}
	if err := os.Symlink(target, linkPath); err != nil {
		return fmt.Errorf("archive: linking download: %w", err)
	}
	return nil
}

type countingWriter struct{ n int64 }

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}
