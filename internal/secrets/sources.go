package secrets

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Source yields secrets from one place. An empty Map with a nil error means
// the source is not configured or holds nothing.
type Source interface {
	Name() string
	Load(ctx context.Context) (Map, error)
}

// SecretGetter reads a single secret string, e.g. from AWS Secrets Manager
type SecretGetter interface {
	GetSecret(ctx context.Context, secretID string) (string, error)
}

// PathReader reads every parameter below a path, keyed relative to the path
type PathReader interface {
	GetParametersByPath(ctx context.Context, path string) (map[string]string, error)
}

// Decryptor turns a blob written by Encrypt back into secrets
type Decryptor interface {
	Decrypt(blob, saltKey, runID string) (Map, error)
}

// DecryptorFunc adapts a function to Decryptor
type DecryptorFunc func(blob, saltKey, runID string) (Map, error)

func (fn DecryptorFunc) Decrypt(blob, saltKey, runID string) (Map, error) {
	return fn(blob, saltKey, runID)
}

// EncryptedFile is a blob written by Encrypt. The file is removed once it
// has been decrypted. Decryptor defaults to the Fernet Decrypt.
type EncryptedFile struct {
	Path      string
	SaltKey   string
	RunID     string
	Decryptor Decryptor
}

func (s EncryptedFile) Name() string { return "encrypted file" }

func (s EncryptedFile) Load(ctx context.Context) (Map, error) {
	if s.Path == "" || s.SaltKey == "" {
		return nil, nil
	}

	data, err := readOptional(s.Path)
	if err != nil || data == nil {
		return nil, err
	}

	decryptor := s.Decryptor
	if decryptor == nil {
		decryptor = DecryptorFunc(Decrypt)
	}

	m, err := decryptor.Decrypt(string(data), s.SaltKey, s.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to read/decrypt secrets from %s: %w", s.Path, err)
	}

	zerolog.Ctx(ctx).Info().Str("path", s.Path).Msg("Successfully decrypted secrets")
	removeFile(ctx, s.Path)
	return m, nil
}

// PlainFile is a JSON object of secrets on disk, removed once read
type PlainFile struct {
	Path string
}

func (s PlainFile) Name() string { return "secrets file" }

func (s PlainFile) Load(ctx context.Context) (Map, error) {
	if s.Path == "" {
		return nil, nil
	}

	data, err := readOptional(s.Path)
	if err != nil || data == nil {
		return nil, err
	}

	m, err := decodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse secrets file %s: %w", s.Path, err)
	}

	removeFile(ctx, s.Path)
	return m, nil
}

// Base64Value is a base64 encoded JSON object of secrets
type Base64Value string

func (s Base64Value) Name() string { return "base64 secrets" }

func (s Base64Value) Load(_ context.Context) (Map, error) {
	if strings.TrimSpace(string(s)) == "" {
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(s)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 secrets: %w", err)
	}
	return decodeJSON(data)
}

// JSONValue is a JSON object of secrets
type JSONValue string

func (s JSONValue) Name() string { return "JSON secrets" }

func (s JSONValue) Load(_ context.Context) (Map, error) {
	if strings.TrimSpace(string(s)) == "" {
		return nil, nil
	}
	return decodeJSON([]byte(s))
}

// SecretsManager reads a JSON object of secrets stored as one secret
type SecretsManager struct {
	Client   SecretGetter
	SecretID string
}

func (s SecretsManager) Name() string { return "secrets manager" }

func (s SecretsManager) Load(ctx context.Context) (Map, error) {
	if s.Client == nil || s.SecretID == "" {
		return nil, nil
	}

	value, err := s.Client.GetSecret(ctx, s.SecretID)
	if err != nil {
		return nil, err
	}
	return decodeJSON([]byte(value))
}

// ParameterStore reads every parameter below Path, one secret per parameter
type ParameterStore struct {
	Client PathReader
	Path   string
}

func (s ParameterStore) Name() string { return "parameter store" }

func (s ParameterStore) Load(ctx context.Context) (Map, error) {
	if s.Client == nil || s.Path == "" {
		return nil, nil
	}

	values, err := s.Client.GetParametersByPath(ctx, s.Path)
	if err != nil {
		return nil, err
	}
	return Map(values), nil
}

// reservedPrefixes are environment variables set by the Actions runner
// itself, never secrets.
var reservedPrefixes = []string{"GITHUB_", "INPUT_", "RUNNER_", "ACTIONS_"}

// Environment passes through process environment variables, minus the ones
// reserved by the runner.
type Environment struct {
	Environ []string
}

func (s Environment) Name() string { return "environment" }

func (s Environment) Load(_ context.Context) (Map, error) {
	return FromEnviron(s.Environ), nil
}

// FromEnviron builds a Map from KEY=VALUE pairs as returned by os.Environ
func FromEnviron(environ []string) Map {
	m := Map{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" || reserved(key) {
			continue
		}
		m[key] = value
	}
	return m
}

func reserved(key string) bool {
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func removeFile(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("Failed to delete secrets file")
		return
	}
	zerolog.Ctx(ctx).Debug().Str("path", path).Msg("Deleted secrets file")
}
