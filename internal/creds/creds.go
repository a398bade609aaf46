// Package creds persists the bearer credential between sessions. It is
// the client's only durable local state: a single token under a fixed
// key, plus an install id minted on first use.
package creds

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	credsFile = "credentials.json"
	tokenKey  = "token"
)

var ErrNoToken = errors.New("no stored credential")

type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore opens the credential store rooted at dir, creating it if
// needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}

	return &Store{path: filepath.Join(dir, credsFile)}, nil
}

type storedCreds struct {
	Values    map[string]string `json:"values"`
	InstallId string            `json:"install_id,omitempty"`
}

func (s *Store) load() (*storedCreds, error) {
	sc := &storedCreds{Values: make(map[string]string)}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return sc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	if err := json.Unmarshal(raw, sc); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if sc.Values == nil {
		sc.Values = make(map[string]string)
	}

	return sc, nil
}

func (s *Store) save(sc *storedCreds) error {
	raw, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}

	return nil
}

// Token returns the stored bearer token, or an empty string when none
// is stored so unauthenticated calls can still be issued.
func (s *Store) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.load()
	if err != nil {
		return "", err
	}

	return sc.Values[tokenKey], nil
}

func (s *Store) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.load()
	if err != nil {
		return err
	}

	sc.Values[tokenKey] = token
	return s.save(sc)
}

// Clear removes the stored token. Called on logout; the install id
// survives.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.load()
	if err != nil {
		return err
	}

	delete(sc.Values, tokenKey)
	return s.save(sc)
}

// InstallId returns a stable identifier for this installation, minting
// one on first call.
func (s *Store) InstallId() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.load()
	if err != nil {
		return "", err
	}

	if sc.InstallId == "" {
		sc.InstallId = uuid.NewString()
		if err := s.save(sc); err != nil {
			return "", err
		}
	}

	return sc.InstallId, nil
}

// Expired reports whether the stored token carries an exp claim in the
// past. The claims are decoded without signature verification; only the
// server can actually validate the token, this just avoids a round trip
// for a session that is certainly stale.
func (s *Store) Expired() (bool, error) {
	token, err := s.Token()
	if err != nil {
		return false, err
	}
	if token == "" {
		return false, ErrNoToken
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// an undecodable token is as good as expired
		return true, nil
	}

	if claims.ExpiresAt == nil {
		return false, nil
	}

	return claims.ExpiresAt.Before(time.Now()), nil
}
