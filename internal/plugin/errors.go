package plugin

import (
	"errors"
	"fmt"
)

var (
	// ErrPluginNotFound is returned when no definition has the requested id.
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrDuplicatePin is returned when a definition reuses a pin name.
	ErrDuplicatePin = errors.New("duplicate pin name")
	// ErrInvalidManifest is returned for manifests that cannot be decoded.
	ErrInvalidManifest = errors.New("invalid plugin manifest")
)

// MissingInputError reports a required input pin without a value.
type MissingInputError struct {
	Pin string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("Required input '%s' is missing", e.Pin)
}
