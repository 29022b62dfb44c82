// Package domain holds the types shared by the registry, dispatch engine,
// session controller and dashboard.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Destination is a group chat addressed by a stable external id.
type Destination struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Valid reports a ValidationError when id or name is blank.
func (d Destination) Valid() error {
	var missing []string
	if strings.TrimSpace(d.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(d.Name) == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		return &ValidationError{Field: strings.Join(missing, ","), Reason: "required"}
	}
	return nil
}

// Dedup keeps the first occurrence of every id, preserving order.
// The second return value reports whether anything was removed.
func Dedup(in []Destination) ([]Destination, bool) {
	seen := make(map[string]struct{}, len(in))
	out := make([]Destination, 0, len(in))
	for _, d := range in {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}
	return out, len(out) != len(in)
}

// IndexOf returns the position of id in list, or -1.
func IndexOf(list []Destination, id string) int {
	for i, d := range list {
		if d.ID == id {
			return i
		}
	}
	return -1
}

// ValidationError is bad operator input. It is rejected before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
