// Package localstate persists small principal-independent client flags in a
// JSON file on local disk.
package localstate

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/boddenberg/payping-sync-go/internal/port"
)

var _ port.FlagStore = (*FileStore)(nil)

// OnboardingCompleteKey marks that the first-run wizard was finished.
const OnboardingCompleteKey = "payping_onboarding_complete"

// FileStore keeps every flag in one JSON object. Writes go to a temp file
// first and are renamed into place.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Flag returns false for a missing file or key.
func (s *FileStore) Flag(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flags, err := s.load()
	if err != nil {
		return false, err
	}
	return flags[key], nil
}

func (s *FileStore) SetFlag(key string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flags, err := s.load()
	if err != nil {
		return err
	}
	flags[key] = value
	return s.save(flags)
}

func (s *FileStore) load() (map[string]bool, error) {
	flags := map[string]bool{}
	if strings.TrimSpace(s.path) == "" {
		return flags, nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return flags, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return flags, nil
	}
	if err := json.Unmarshal(data, &flags); err != nil {
		return nil, err
	}
	return flags, nil
}

func (s *FileStore) save(flags map[string]bool) error {
	if strings.TrimSpace(s.path) == "" {
		return nil
	}
	data, err := json.MarshalIndent(flags, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
