// Durable session pointer: which user is logged in across restarts.

package docstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionFileName = "session"

// SessionPointer persists the current username as a signed token so
// a corrupted or hand-edited pointer reads as absent instead of
// resuming an arbitrary account.
type SessionPointer struct {
	path   string
	secret []byte
	ttl    time.Duration
}

// NewSessionPointer returns a pointer stored under dir, signed with
// secret. ttl bounds how long a stored session survives; 0 means a
// year.
func NewSessionPointer(dir string, secret []byte, ttl time.Duration) *SessionPointer {
	if ttl <= 0 {
		ttl = 365 * 24 * time.Hour
	}
	return &SessionPointer{path: filepath.Join(dir, sessionFileName), secret: secret, ttl: ttl}
}

// Set persists username as the current session, or clears the pointer
// when username is empty.
func (p *SessionPointer) Set(username string) error {
	if username == "" {
		if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear session pointer: %w", err)
		}
		return nil
	}
	claims := jwt.MapClaims{
		"sub": username,
		"exp": time.Now().Add(p.ttl).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return fmt.Errorf("failed to sign session pointer: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(signed), 0o600); err != nil {
		return fmt.Errorf("failed to write session pointer: %w", err)
	}
	return nil
}

// Get returns the stored username, or "" if no session is stored.
// Missing, expired, tampered or otherwise invalid tokens all read as
// absent; only I/O failures are errors.
func (p *SessionPointer) Get() (string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read session pointer: %w", err)
	}
	token, err := jwt.Parse(string(data), func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", nil
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", nil
	}
	return sub, nil
}
