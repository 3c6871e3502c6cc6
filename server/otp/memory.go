package otp

import (
	"context"
	"sync"
	"time"
)

type pendingCode struct {
	codeHash  string
	attempts  int64
	expiresAt time.Time
}

// MemoryStore keeps codes in process. Used when no redis address is configured.
type MemoryStore struct {
	mu    sync.Mutex
	codes map[string]*pendingCode
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{codes: map[string]*pendingCode{}, now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, phone, codeHash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.codes[phone] = &pendingCode{codeHash: codeHash, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, phone string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.live(phone)
	if !ok {
		return "", ErrOTPNotFound
	}
	return pending.codeHash, nil
}

func (s *MemoryStore) IncrAttempts(_ context.Context, phone string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.live(phone)
	if !ok {
		return 0, ErrOTPNotFound
	}
	pending.attempts++
	return pending.attempts, nil
}

func (s *MemoryStore) Delete(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.codes, phone)
	return nil
}

// live returns the unexpired code for 'phone', evicting it once expired. Caller holds the lock.
func (s *MemoryStore) live(phone string) (*pendingCode, bool) {
	pending, ok := s.codes[phone]
	if !ok {
		return nil, false
	}
	if !s.now().Before(pending.expiresAt) {
		delete(s.codes, phone)
		return nil, false
	}
	return pending, true
}
