package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// secretLen matches the 128-byte signing key the cookie layer has always
// used; shorter files are treated as corrupt and regenerated.
const secretLen = 128

// LoadOrCreateSecret reads the cookie-signing secret from path, generating
// and persisting a fresh one on first boot. Regenerating invalidates every
// outstanding cookie, which only costs users their anonymous identity.
func LoadOrCreateSecret(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err == nil && len(b) >= secretLen {
		return b[:secretLen], nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read session secret: %w", err)
	}

	secret := make([]byte, secretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate session secret: %w", err)
	}
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return nil, fmt.Errorf("write session secret: %w", err)
	}
	return secret, nil
}
