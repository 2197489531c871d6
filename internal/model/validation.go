package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidationError reports input rejected before any store call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Name bounds, counted in characters after trimming.
const (
	MinNameLen = 2
	MaxNameLen = 50
)

// CleanName trims name and checks its length.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		return "", Invalid("name", "is required")
	case n < MinNameLen:
		return "", Invalid("name", "must be at least %d characters", MinNameLen)
	case n > MaxNameLen:
		return "", Invalid("name", "must be at most %d characters", MaxNameLen)
	}
	return name, nil
}
