package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidOutput is returned when the report destination cannot be written.
var ErrInvalidOutput = errors.New("invalid output path")

// validateOutput checks that path's parent is an existing directory and that
// path itself is not a directory.
func validateOutput(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	parent, err := os.Stat(filepath.Dir(abs))
	if err != nil {
		return fmt.Errorf("%w: %s: parent directory: %v", ErrInvalidOutput, path, err)
	}
	if !parent.IsDir() {
		return fmt.Errorf("%w: %s: parent is not a directory", ErrInvalidOutput, path)
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidOutput, path)
	}
	return nil
}

// parseLogLevel maps debug, info, warn or error to a slog level.
func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}
