package steps

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks input or parameter problems detected before any
	// external action. Fatal during initialise, per-file afterwards.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks unusable configuration. Always fatal, and
	// suppresses notification since notify settings cannot be trusted.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a missing input file or storage key.
	ErrNotFound = errors.New("not found")
	// ErrSystem marks failures unrelated to any specific file, such as an
	// unreachable storage backend. Fatal to the run.
	ErrSystem = errors.New("system error")
)

// Wrap builds an error carrying step context, tagged with one of the
// sentinel markers above for later classification via errors.Is.
func Wrap(marker error, step, operation string, err error) error {
	detail := buildDetail(step, operation)
	if marker == nil {
		marker = ErrSystem
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether an error must abort the remaining linear states
// and route the handler to the error-notify branch.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSystem) || errors.Is(err, ErrConfiguration)
}

func buildDetail(step, operation string) string {
	parts := make([]string, 0, 2)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if len(parts) == 0 {
		return "step failure"
	}
	return strings.Join(parts, ": ")
}
