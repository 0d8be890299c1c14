package config

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrPermission     = errors.New("configuration not accessible")
)

// PermissionError reports a config file or directory the process cannot
// read or write.
type PermissionError struct {
	Path    string
	Op      string // "read" or "write"
	Fix     string
	Details string
	Err     error
}

func (e *PermissionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "permission denied: cannot %s %s", e.Op, e.Path)
	if e.Details != "" {
		b.WriteString("\n" + e.Details)
	}
	if e.Fix != "" {
		b.WriteString("\nFix: " + e.Fix)
	}
	return b.String()
}

func (e *PermissionError) Unwrap() error        { return e.Err }
func (e *PermissionError) Is(target error) bool { return target == ErrPermission }

// ConfigNotFoundError reports a missing server configuration. Commands that
// can run against an empty index treat it as an empty config.
type ConfigNotFoundError struct {
	Path string
	Hint string
}

func (e *ConfigNotFoundError) Error() string {
	msg := "no server configuration at " + e.Path
	if e.Hint != "" {
		msg += "\n" + e.Hint
	}
	return msg
}

func (e *ConfigNotFoundError) Is(target error) bool { return target == ErrConfigNotFound }

// InvalidConfigError reports a config that does not parse or fails
// validation. Problems holds one entry per rejected server, group or setting.
type InvalidConfigError struct {
	Path     string
	Message  string
	Problems []string
	Hint     string
	Err      error
}

func (e *InvalidConfigError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid configuration %s", e.Path)
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	for _, p := range e.Problems {
		b.WriteString("\n  - " + p)
	}
	if e.Hint != "" {
		b.WriteString("\n" + e.Hint)
	}
	return b.String()
}

func (e *InvalidConfigError) Unwrap() error        { return e.Err }
func (e *InvalidConfigError) Is(target error) bool { return target == ErrInvalidConfig }

// newValidationError wraps the joined error from Validate, listing each
// problem on its own line.
func newValidationError(path string, err error, hint string) *InvalidConfigError {
	e := &InvalidConfigError{Path: path, Hint: hint, Err: err}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) && len(joined.Unwrap()) > 1 {
		for _, p := range joined.Unwrap() {
			e.Problems = append(e.Problems, p.Error())
		}
		e.Message = fmt.Sprintf("%d problems", len(e.Problems))
		return e
	}
	e.Message = err.Error()
	return e
}
