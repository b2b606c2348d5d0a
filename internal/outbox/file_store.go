package outbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the queue as a JSON array on disk, surviving client
// restarts. Two processes sharing the same path race last-writer-wins.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() ([]Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read outbox: %w", err)
	}

	var queue []Pending
	if err := json.Unmarshal(data, &queue); err != nil {
		return nil, fmt.Errorf("parse outbox: %w", err)
	}
	return queue, nil
}

func (s *FileStore) Save(queue []Pending) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(queue)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create outbox dir: %w", err)
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear outbox: %w", err)
	}
	return nil
}
