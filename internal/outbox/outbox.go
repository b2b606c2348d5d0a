// Package outbox persists chat messages composed while the socket is down so
// they can be replayed in order on the next authenticated connection.
package outbox

import "sync"

// Pending is one queued message payload.
type Pending struct {
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
}

// Store abstracts the queue's storage medium so the transport does not care
// whether it lives on disk or in memory.
type Store interface {
	Load() ([]Pending, error)
	Save(queue []Pending) error
	Clear() error
}

// MemoryStore keeps the queue in memory. Used in tests and by callers that do
// not want cross-restart persistence.
type MemoryStore struct {
	mu    sync.Mutex
	queue []Pending
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() ([]Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Pending, len(s.queue))
	copy(out, s.queue)
	return out, nil
}

func (s *MemoryStore) Save(queue []Pending) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = make([]Pending, len(queue))
	copy(s.queue, queue)
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	return nil
}
