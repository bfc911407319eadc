package catalog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidPlugin = errors.New("invalid plugin record")
)

// IsValidName reports whether s can be used as a plugin name.
func IsValidName(s string) bool {
	return strings.TrimSpace(s) != ""
}

// IsValidVersion reports whether s can be used as a plugin version.
// Versions are opaque, only blank values are rejected.
func IsValidVersion(s string) bool {
	return strings.TrimSpace(s) != ""
}

// Validate checks the typed fields of p.
func (p *Plugin) Validate() error {
	if !IsValidName(p.Name) {
		return fmt.Errorf("%w: invalid name %q", ErrInvalidPlugin, p.Name)
	}
	if !IsValidVersion(p.Version) {
		return fmt.Errorf("%w: plugin %q: invalid version %q", ErrInvalidPlugin, p.Name, p.Version)
	}
	return nil
}
