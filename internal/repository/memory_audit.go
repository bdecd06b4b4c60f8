package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"clinic-trash/internal/model"
)

// MemoryAuditLog is an append-only in-process audit trail.
type MemoryAuditLog struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
	seen    map[string]struct{}
}

func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{seen: map[string]struct{}{}}
}

func (l *MemoryAuditLog) Append(_ context.Context, entry model.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[entry.ID]; ok {
		return nil
	}
	l.seen[entry.ID] = struct{}{}
	l.entries = append(l.entries, entry)
	return nil
}

// Entries returns the trail in append order.
func (l *MemoryAuditLog) Entries() []model.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *MemoryAuditLog) Query(_ context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query = normalizeAuditQuery(query)

	from, err := parseAuditBound(query.From)
	if err != nil {
		return nil, model.Meta{}, err
	}
	to, err := parseAuditBound(query.To)
	if err != nil {
		return nil, model.Meta{}, err
	}

	l.mu.RLock()
	matched := make([]model.AuditEntry, 0)
	for _, e := range l.entries {
		if action := strings.TrimSpace(query.Action); action != "" && !strings.EqualFold(string(e.Action), action) {
			continue
		}
		if entityType := strings.TrimSpace(query.EntityType); entityType != "" && e.EntityType != entityType {
			continue
		}
		if entityID := strings.TrimSpace(query.EntityID); entityID != "" && e.EntityID != entityID {
			continue
		}
		if actorID := strings.TrimSpace(query.ActorID); actorID != "" && e.PerformedBy != actorID {
			continue
		}
		if !from.IsZero() && e.OccurredAt.Before(from) {
			continue
		}
		if !to.IsZero() && e.OccurredAt.After(to) {
			continue
		}
		matched = append(matched, e)
	}
	l.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].OccurredAt.After(matched[j].OccurredAt)
		}
		return matched[i].ID > matched[j].ID
	})

	meta := pageMeta(query, len(matched))
	start := (query.Page - 1) * query.Limit
	if start >= len(matched) {
		return []model.AuditEntry{}, meta, nil
	}
	end := min(start+query.Limit, len(matched))
	return matched[start:end], meta, nil
}

func parseAuditBound(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad time bound %q", model.ErrInvalidInput, raw)
	}
	return t, nil
}
