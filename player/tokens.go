package player

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// TokenStore keeps the session token of every race this device joined.
type TokenStore interface {
	Get(raceID string) (token string, ok bool, err error)
	Set(raceID, token string) error
	Delete(raceID string) error
}

type tokenFile struct {
	Current string            `json:"current,omitempty"`
	Tokens  map[string]string `json:"tokens"`
}

// FileTokenStore persists tokens as JSON. Writes go to a temp file that is
// renamed over the old one, so a crash never leaves half a file behind.
type FileTokenStore struct {
	path string
	mu   sync.Mutex
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) load() (*tokenFile, error) {
	f := &tokenFile{Tokens: map[string]string{}}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("decode token file %s: %w", s.path, err)
	}
	if f.Tokens == nil {
		f.Tokens = map[string]string{}
	}
	return f, nil
}

func (s *FileTokenStore) save(f *tokenFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

func (s *FileTokenStore) Get(raceID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return "", false, err
	}
	token, ok := f.Tokens[raceID]
	return token, ok, nil
}

// Set stores the token and marks raceID as the current race.
func (s *FileTokenStore) Set(raceID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return err
	}
	f.Tokens[raceID] = token
	f.Current = raceID
	return s.save(f)
}

func (s *FileTokenStore) Delete(raceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := f.Tokens[raceID]; !ok && f.Current != raceID {
		return nil
	}
	delete(f.Tokens, raceID)
	if f.Current == raceID {
		f.Current = ""
	}
	return s.save(f)
}

// Current returns the race joined last, or "" when there is none.
func (s *FileTokenStore) Current() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return "", err
	}
	return f.Current, nil
}
