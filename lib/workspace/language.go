// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoScraper is returned when a checkout has no recognised entry script.
var ErrNoScraper = errors.New("no scraper found")

// Language is the runtime a bot is written for.
type Language string

const (
	Ruby   Language = "ruby"
	Python Language = "python"
)

// entryScripts is checked in order; the first present script decides.
var entryScripts = []struct {
	name     string
	language Language
}{
	{"scraper.rb", Ruby},
	{"scraper.py", Python},
}

// DetectLanguage returns the language of the checkout at repo.
func (m *Manager) DetectLanguage(repo string) (Language, error) {
	for _, script := range entryScripts {
		if _, err := os.Stat(filepath.Join(repo, script.name)); err == nil {
			return script.language, nil
		}
	}
	return "", fmt.Errorf("%w at %s", ErrNoScraper, repo)
}

// Image returns the sandbox image for language.
func Image(prefix string, language Language) string {
	return prefix + string(language)
}
