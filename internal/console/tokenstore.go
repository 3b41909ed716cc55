package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TokenKey is the store key holding the operator bearer token.
const TokenKey = "digiurban_token"

// TokenStore yields the bearer token attached to every API request.
type TokenStore interface {
	Token() (string, error)
}

// FileTokenStore is a small JSON key/value file kept in the operator's config dir.
type FileTokenStore struct {
	path string
	mu   sync.Mutex
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Path() string {
	return s.path
}

func (s *FileTokenStore) Token() (string, error) {
	return s.Get(TokenKey)
}

func (s *FileTokenStore) SetToken(token string) error {
	return s.Set(TokenKey, strings.TrimSpace(token))
}

func (s *FileTokenStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", err
	}
	return values[key], nil
}

func (s *FileTokenStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	if value == "" {
		delete(values, key)
	} else {
		values[key] = value
	}

	raw, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	return os.WriteFile(s.path, raw, 0o600)
}

func (s *FileTokenStore) load() (map[string]string, error) {
	values := map[string]string{}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token store: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode token store: %w", err)
	}
	return values, nil
}

// StaticToken serves a fixed token, mostly for tests and one-off scripts.
type StaticToken string

func (t StaticToken) Token() (string, error) {
	return string(t), nil
}
