// Package memstore is an in-process store.Store used when no database is
// configured and as the fixture store in tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
)

type MemStore struct {
	mu         sync.RWMutex
	users      map[string]models.User
	villages   map[string]models.Village
	alerts     map[string]models.Alert
	deliveries map[string]models.AlertDelivery
	messages   map[string]models.Message
	sosReports map[string]models.SOSReport
	jobs       map[string]models.Job

	// seq breaks ties between records created within the same clock tick
	seq   int64
	order map[string]int64
	now   func() time.Time
}

var _ store.Store = (*MemStore)(nil)

func New() *MemStore {
	return &MemStore{
		users:      map[string]models.User{},
		villages:   map[string]models.Village{},
		alerts:     map[string]models.Alert{},
		deliveries: map[string]models.AlertDelivery{},
		messages:   map[string]models.Message{},
		sosReports: map[string]models.SOSReport{},
		jobs:       map[string]models.Job{},
		order:      map[string]int64{},
		now:        time.Now,
	}
}

func (s *MemStore) Close() error {
	return nil
}

// stamp assigns id, timestamps & insertion order. Caller holds the write lock.
func (s *MemStore) stamp(base *models.BaseModel) {
	base.EnsureID()
	base.Touch(s.now())
	s.seq++
	s.order[base.ID] = s.seq
}

// newerFirst orders by CreatedAt desc, then insertion order desc.
func (s *MemStore) newerFirst(a, b models.BaseModel) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return s.order[a.ID] > s.order[b.ID]
}

// ---------------------------------------------------------------------------------//
// Users & villages
// --------------------------------------------------------------------------------//

func (s *MemStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.PhoneNumber == user.PhoneNumber {
			return store.ErrDuplicate
		}
	}

	s.stamp(&user.BaseModel)
	s.users[user.ID] = *user
	return nil
}

func (s *MemStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *MemStore) GetUserByPhone(_ context.Context, phoneNumber string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.PhoneNumber == phoneNumber {
			u := user
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *MemStore) UpdateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return store.ErrNotFound
	}
	user.UpdatedAt = s.now()
	s.users[user.ID] = *user
	return nil
}

func (s *MemStore) ListUsers(_ context.Context, filter models.UserFilter) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := []models.User{}
	for _, user := range s.users {
		u := user
		if filter.Matches(&u) {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return s.order[users[i].ID] < s.order[users[j].ID]
	})
	return users, nil
}

func (s *MemStore) CountUsers(ctx context.Context, filter models.UserFilter) (int64, error) {
	users, err := s.ListUsers(ctx, filter)
	return int64(len(users)), err
}

func (s *MemStore) CreateVillage(_ context.Context, village *models.Village) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.villages {
		if existing.PinCode == village.PinCode {
			return store.ErrDuplicate
		}
	}

	s.stamp(&village.BaseModel)
	s.villages[village.ID] = *village
	return nil
}

func (s *MemStore) GetVillage(_ context.Context, id string) (*models.Village, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	village, ok := s.villages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &village, nil
}

func (s *MemStore) GetVillageByPinCode(_ context.Context, pinCode string) (*models.Village, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, village := range s.villages {
		if village.PinCode == pinCode {
			v := village
			return &v, nil
		}
	}
	return nil, store.ErrNotFound
}
