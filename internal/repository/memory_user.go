package repository

import (
	"context"
	"strings"
	"sync"

	"clinic-trash/internal/model"
)

// MemoryUserStore resolves principals from an in-process table.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]model.Principal
}

func NewMemoryUserStore(principals ...model.Principal) *MemoryUserStore {
	s := &MemoryUserStore{users: map[string]model.Principal{}}
	for _, p := range principals {
		s.Put(p)
	}
	return s
}

func (s *MemoryUserStore) Put(p model.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[p.ID] = p
}

func (s *MemoryUserStore) FindPrincipal(_ context.Context, id string) (model.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.users[strings.TrimSpace(id)]
	if !ok {
		return model.Principal{}, model.ErrPrincipalNotFound
	}
	return p, nil
}
