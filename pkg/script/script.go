// Package script assembles the UIAutomation driver script injected into
// the engine. A template carries placeholders for the run's command pipe,
// results path, and flush cadence; assembly substitutes the run's values
// and writes the final script into the run directory.
package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Placeholders a template carries. CommandPipe and ResultsPath are
// required; FlushInterval is substituted when present.
const (
	PlaceholderCommandPipe   = "$COMMAND_PIPE"
	PlaceholderResultsPath   = "$RESULTS_PATH"
	PlaceholderFlushInterval = "$FLUSH_INTERVAL"
)

// FileName is the name the assembled script is written under.
const FileName = "run_loop.js"

// DefaultFlushInterval paces the script's idle loop when none is given.
const DefaultFlushInterval = time.Second

var (
	// ErrIncompleteParams is returned when the command pipe or results
	// path is missing
	ErrIncompleteParams = errors.New("script params need a command pipe and a results path")

	// ErrPlaceholderMissing is returned when a template lacks a required
	// placeholder
	ErrPlaceholderMissing = errors.New("script template is missing a required placeholder")
)

// Params carries the per-run values substituted into a template.
type Params struct {
	CommandPipe   string
	ResultsPath   string
	FlushInterval time.Duration
}

// Assemble renders template with the run's values.
func Assemble(template string, params Params) (string, error) {
	if params.CommandPipe == "" || params.ResultsPath == "" {
		return "", ErrIncompleteParams
	}

	for _, placeholder := range []string{PlaceholderCommandPipe, PlaceholderResultsPath} {
		if !strings.Contains(template, placeholder) {
			return "", fmt.Errorf("%w: %s", ErrPlaceholderMissing, placeholder)
		}
	}

	flush := params.FlushInterval
	if flush <= 0 {
		flush = DefaultFlushInterval
	}

	out := strings.ReplaceAll(template, PlaceholderCommandPipe, params.CommandPipe)
	out = strings.ReplaceAll(out, PlaceholderResultsPath, params.ResultsPath)
	out = strings.ReplaceAll(out, PlaceholderFlushInterval, fmt.Sprintf("%g", flush.Seconds()))
	return out, nil
}

// WriteFile assembles templatePath and writes the result into dir,
// returning the script's path.
func WriteFile(templatePath, dir string, params Params) (string, error) {
	data, err := os.ReadFile(templatePath)
	if err != nil {
		return "", fmt.Errorf("read script template: %w", err)
	}

	rendered, err := Assemble(string(data), params)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(rendered), 0644); err != nil {
		return "", fmt.Errorf("write assembled script: %w", err)
	}
	return path, nil
}

// WriteDefault assembles the built-in template into dir.
func WriteDefault(dir string, params Params) (string, error) {
	rendered, err := Assemble(DefaultTemplate, params)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(rendered), 0644); err != nil {
		return "", fmt.Errorf("write assembled script: %w", err)
	}
	return path, nil
}
