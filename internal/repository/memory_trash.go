package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"clinic-trash/internal/model"
)

// MemoryTrashStore keeps trash entries in process. Every conditional write is
// decided under one mutex, matching the row-level guarantees of the Postgres
// repository.
type MemoryTrashStore struct {
	mu         sync.Mutex
	entries    map[string]model.TrashEntry
	byOriginal map[string]string
}

func NewMemoryTrashStore() *MemoryTrashStore {
	return &MemoryTrashStore{
		entries:    map[string]model.TrashEntry{},
		byOriginal: map[string]string{},
	}
}

func originalKey(originalType string, originalID string) string {
	return originalType + "\x00" + originalID
}

func cloneEntry(entry model.TrashEntry) model.TrashEntry {
	entry.Snapshot = entry.Snapshot.Clone()
	return entry
}

func (s *MemoryTrashStore) Create(_ context.Context, entry model.TrashEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := originalKey(entry.OriginalType, entry.OriginalID)
	if _, ok := s.byOriginal[key]; ok {
		return model.ErrAlreadyTrashed
	}
	if _, ok := s.entries[entry.ID]; ok {
		return model.ErrAlreadyTrashed
	}
	s.entries[entry.ID] = cloneEntry(entry)
	s.byOriginal[key] = entry.ID
	return nil
}

func (s *MemoryTrashStore) FindByID(_ context.Context, id string) (model.TrashEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return model.TrashEntry{}, model.ErrTrashEntryNotFound
	}
	return cloneEntry(entry), nil
}

func (s *MemoryTrashStore) FindByOriginal(_ context.Context, originalType string, originalID string) (model.TrashEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byOriginal[originalKey(originalType, originalID)]
	if !ok {
		return model.TrashEntry{}, model.ErrTrashEntryNotFound
	}
	return cloneEntry(s.entries[id]), nil
}

func (s *MemoryTrashStore) List(_ context.Context, query model.TrashQuery) ([]model.TrashEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope := strings.TrimSpace(query.Scope)
	originalType := strings.TrimSpace(query.OriginalType)

	matched := make([]model.TrashEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if scope != "" && entry.Scope != scope {
			continue
		}
		if originalType != "" && entry.OriginalType != originalType {
			continue
		}
		if entry.ExpiredAt(query.ExpiredBefore) {
			continue
		}
		if query.After != nil && !listsAfter(entry, *query.After) {
			continue
		}
		matched = append(matched, entry)
	}

	sort.Slice(matched, func(i, j int) bool {
		return listsAfter(matched[j], model.TrashCursor{DeletedAt: matched[i].DeletedAt, ID: matched[i].ID})
	})

	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	for i := range matched {
		matched[i] = cloneEntry(matched[i])
	}
	return matched, nil
}

// listsAfter reports whether entry comes after the cursor in newest-first
// order.
func listsAfter(entry model.TrashEntry, cursor model.TrashCursor) bool {
	if !entry.DeletedAt.Equal(cursor.DeletedAt) {
		return entry.DeletedAt.Before(cursor.DeletedAt)
	}
	return entry.ID < cursor.ID
}

func (s *MemoryTrashStore) Claim(_ context.Context, claim model.RestoreClaim) (model.TrashEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[claim.TrashID]
	if !ok || entry.ExpiredAt(claim.ExpiredBefore) {
		return model.TrashEntry{}, model.ErrTrashEntryNotFound
	}
	if entry.ClaimedSince(claim.StaleBefore) {
		return model.TrashEntry{}, model.ErrConflict
	}

	entry.ClaimToken = claim.Token
	entry.ClaimedAt = claim.At
	s.entries[entry.ID] = entry
	return cloneEntry(entry), nil
}

func (s *MemoryTrashStore) Release(_ context.Context, id string, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok || entry.ClaimToken != token {
		return nil
	}
	entry.ClaimToken = ""
	entry.ClaimedAt = time.Time{}
	s.entries[id] = entry
	return nil
}

func (s *MemoryTrashStore) DeleteClaimed(_ context.Context, id string, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok || token == "" || entry.ClaimToken != token {
		return model.ErrConflict
	}
	s.remove(entry)
	return nil
}

func (s *MemoryTrashStore) DeleteUnclaimed(_ context.Context, id string, staleBefore time.Time) (model.TrashEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return model.TrashEntry{}, model.ErrTrashEntryNotFound
	}
	if entry.ClaimedSince(staleBefore) {
		return model.TrashEntry{}, model.ErrConflict
	}
	s.remove(entry)
	return entry, nil
}

func (s *MemoryTrashStore) DeleteExpired(_ context.Context, expiredBefore time.Time, staleBefore time.Time, limit int) ([]model.TrashEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]model.TrashEntry, 0)
	for _, entry := range s.entries {
		if entry.ExpiredAt(expiredBefore) && !entry.ClaimedSince(staleBefore) {
			due = append(due, entry)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].DeletedAt.Before(due[j].DeletedAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for _, entry := range due {
		s.remove(entry)
	}
	return due, nil
}

func (s *MemoryTrashStore) DeleteAll(_ context.Context, scope string, staleBefore time.Time) ([]model.TrashEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope = strings.TrimSpace(scope)
	removed := make([]model.TrashEntry, 0)
	for _, entry := range s.entries {
		if scope != "" && entry.Scope != scope {
			continue
		}
		if entry.ClaimedSince(staleBefore) {
			continue
		}
		s.remove(entry)
		removed = append(removed, entry)
	}
	return removed, nil
}

func (s *MemoryTrashStore) SetAutoDelete(_ context.Context, id string, autoDelete bool) (model.TrashEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return model.TrashEntry{}, model.ErrTrashEntryNotFound
	}
	entry.AutoDelete = autoDelete
	s.entries[id] = entry
	return cloneEntry(entry), nil
}

// Len reports how many entries are held.
func (s *MemoryTrashStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryTrashStore) remove(entry model.TrashEntry) {
	delete(s.entries, entry.ID)
	delete(s.byOriginal, originalKey(entry.OriginalType, entry.OriginalID))
}
