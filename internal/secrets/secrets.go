// Package secrets builds the per-run secret lookup used to resolve
// SECRET:<name> placeholders in parameter values.
package secrets

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// Prefix marks a parameter value that refers to a secret
	Prefix = "SECRET:"

	// legacyPrefix is still accepted in parameter files written for the
	// older tooling.
	legacyPrefix = "SECRET."
)

// Map is a read-only lookup from secret name to value. A nil Map is valid
// and resolves nothing.
type Map map[string]string

// Reference reports whether value is a secret placeholder and returns the
// referenced secret name.
func Reference(value string) (string, bool) {
	for _, prefix := range []string{Prefix, legacyPrefix} {
		if name, ok := strings.CutPrefix(value, prefix); ok && name != "" {
			return name, true
		}
	}
	return "", false
}

// Lookup returns the secret with the given name
func (m Map) Lookup(name string) (string, bool) {
	value, ok := m[name]
	return value, ok
}

// Resolve replaces a secret placeholder with the secret's value. Values that
// are not placeholders are returned unchanged, as are placeholders whose
// secret is missing.
func (m Map) Resolve(ctx context.Context, value string) string {
	name, ok := Reference(value)
	if !ok {
		return value
	}

	logger := zerolog.Ctx(ctx)
	secret, found := m.Lookup(name)
	if !found {
		logger.Warn().Str("secret", name).Msgf("Secret %s not found in available secrets", name)
		return value
	}

	logger.Info().Str("secret", name).Msgf("Replacing %s%s with actual secret value", Prefix, name)
	return secret
}

// Len returns the number of secrets held
func (m Map) Len() int {
	return len(m)
}
