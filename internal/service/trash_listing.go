package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"clinic-trash/internal/model"
)

const (
	defaultTrashPageSize = 50
	maxTrashPageSize     = 200
)

// ListTrash pages through restorable entries, newest first. Expired entries
// are hidden even before the purge sweep removes them.
func (s *TrashService) ListTrash(ctx context.Context, filter model.TrashFilter) (model.TrashPage, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultTrashPageSize
	}
	if limit > maxTrashPageSize {
		limit = maxTrashPageSize
	}

	after, err := decodeTrashCursor(filter.Cursor)
	if err != nil {
		return model.TrashPage{}, err
	}

	now := s.now()
	entries, err := s.trash.List(ctx, model.TrashQuery{
		Scope:         filter.Scope,
		OriginalType:  filter.OriginalType,
		After:         after,
		ExpiredBefore: s.cutoff(now),
		Limit:         limit + 1,
	})
	if err != nil {
		return model.TrashPage{}, err
	}

	page := model.TrashPage{Items: make([]model.TrashView, 0, min(len(entries), limit))}
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		page.NextCursor = encodeTrashCursor(model.TrashCursor{DeletedAt: last.DeletedAt, ID: last.ID})
	}

	names := map[string]string{}
	for _, entry := range entries {
		view := model.TrashView{
			TrashEntry:           publicEntry(entry),
			DeletedByDisplayName: s.displayName(ctx, names, entry),
		}
		if entry.AutoDelete {
			expiresAt := entry.DeletedAt.Add(s.opts.Retention)
			view.ExpiresAt = &expiresAt
		}
		page.Items = append(page.Items, view)
	}
	return page, nil
}

// displayName resolves the deleting principal's current name once per page,
// falling back to the name captured at deletion time.
func (s *TrashService) displayName(ctx context.Context, memo map[string]string, entry model.TrashEntry) string {
	if name, ok := memo[entry.DeletedBy]; ok {
		return name
	}

	name := entry.DeletedByName
	if s.opts.Directory != nil {
		p, err := s.opts.Directory.Lookup(ctx, entry.DeletedBy)
		if err == nil {
			name = p.Name()
		} else {
			s.logger.Debug("principal lookup failed", "principal_id", entry.DeletedBy, "error", err)
		}
	}
	if name == "" {
		name = entry.DeletedBy
	}

	memo[entry.DeletedBy] = name
	return name
}

func encodeTrashCursor(c model.TrashCursor) string {
	raw := strconv.FormatInt(c.DeletedAt.UnixNano(), 10) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeTrashCursor(cursor string) (*model.TrashCursor, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", model.ErrInvalidInput)
	}
	nanos, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: malformed cursor", model.ErrInvalidInput)
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", model.ErrInvalidInput)
	}
	return &model.TrashCursor{DeletedAt: time.Unix(0, n).UTC(), ID: id}, nil
}
