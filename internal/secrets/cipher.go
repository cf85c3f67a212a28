package secrets

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/savaki/cfn-actions/internal/utils"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keyIterations = 100000

	// TokenTTL bounds how old an encrypted blob may be. Blobs only live for
	// the duration of a workflow run.
	TokenTTL = 24 * time.Hour
)

// deriveKey derives the Fernet key for a workflow run. The salt is bound to
// the run id so a blob cannot be decrypted in a different run.
func deriveKey(saltKey, runID string) *fernet.Key {
	salt := sha256.Sum256([]byte(saltKey + ":" + runID))
	derived := pbkdf2.Key([]byte(saltKey), salt[:], keyIterations, 32, sha256.New)

	var key fernet.Key
	copy(key[:], derived)
	return &key
}

// Encrypt seals the secrets as a base64 encoded Fernet token
func Encrypt(m Map, saltKey, runID string) (string, error) {
	if saltKey == "" {
		return "", fmt.Errorf("salt key is required")
	}

	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal secrets: %w", err)
	}

	token, err := fernet.EncryptAndSign(data, deriveKey(saltKey, runID))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt secrets: %w", err)
	}

	return base64.StdEncoding.EncodeToString(token), nil
}

// Decrypt opens a blob produced by Encrypt with the same salt key and run id
func Decrypt(blob, saltKey, runID string) (Map, error) {
	if saltKey == "" {
		return nil, fmt.Errorf("salt key is required")
	}

	token, err := base64.StdEncoding.DecodeString(strings.TrimSpace(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted secrets: %w", err)
	}

	data := fernet.VerifyAndDecrypt(token, TokenTTL, []*fernet.Key{deriveKey(saltKey, runID)})
	if data == nil {
		return nil, fmt.Errorf("failed to decrypt secrets: invalid key or expired token")
	}

	return decodeJSON(data)
}

// decodeJSON decodes a JSON object of secrets. Non-string values are kept in
// their JSON form.
func decodeJSON(data []byte) (Map, error) {
	members, err := utils.DecodeOrderedObject(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse secrets JSON: %w", err)
	}

	m := make(Map, len(members))
	for _, member := range members {
		m[member.Key] = utils.Stringify(member.Value)
	}
	return m, nil
}
