// Package session implements the encrypted, client-held session cookie.
//
// Session state lives entirely in the cookie: an AES-256-GCM sealed JSON
// blob. The key is generated fresh at process start and never persisted,
// so restarting the gateway invalidates every active session.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const defaultCookieName = "syncgate_session"

// ErrNoSession indicates the request carries no decodable session.
var ErrNoSession = errors.New("no session")

// Session is the decrypted cookie payload.
type Session struct {
	TenantID  string    `json:"tenant_id"`
	IsAdmin   bool      `json:"is_admin"`
	LastVisit time.Time `json:"last_visit"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Manager seals and opens session cookies.
type Manager struct {
	aead   cipher.AEAD
	name   string
	ttl    time.Duration
	secure bool
}

// NewManager creates a manager with a fresh random key. An empty name uses
// the default cookie name. ttl bounds how long an issued session stays
// valid; zero means no expiry beyond the key's process lifetime.
func NewManager(name string, ttl time.Duration, secure bool) (*Manager, error) {
	if name == "" {
		name = defaultCookieName
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating session key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD: %w", err)
	}
	return &Manager{aead: aead, name: name, ttl: ttl, secure: secure}, nil
}

// Get decodes the session from the request cookie. A missing, corrupt, or
// expired cookie is ErrNoSession; callers treat all three the same.
func (m *Manager) Get(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.name)
	if err != nil {
		return nil, ErrNoSession
	}
	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil || len(raw) < m.aead.NonceSize() {
		return nil, ErrNoSession
	}
	nonce, sealed := raw[:m.aead.NonceSize()], raw[m.aead.NonceSize():]
	plain, err := m.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrNoSession
	}
	var s Session
	if err := json.Unmarshal(plain, &s); err != nil {
		return nil, ErrNoSession
	}
	if m.ttl > 0 && time.Since(s.IssuedAt) > m.ttl {
		return nil, ErrNoSession
	}
	return &s, nil
}

// Save seals the session and sets it as the response cookie.
func (m *Manager) Save(w http.ResponseWriter, s *Session) error {
	if s.IssuedAt.IsZero() {
		s.IssuedAt = time.Now().UTC()
	}
	plain, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	nonce := make([]byte, m.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	sealed := m.aead.Seal(nonce, nonce, plain, nil)

	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    base64.RawURLEncoding.EncodeToString(sealed),
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
