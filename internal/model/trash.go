package model

import "time"

// TrashEntry is a removed record parked in the holding area. Snapshot carries
// the record's identity field so a restore can reinsert it unchanged.
type TrashEntry struct {
	ID            string    `json:"id"`
	OriginalType  string    `json:"original_type"`
	OriginalID    string    `json:"original_id"`
	Scope         string    `json:"scope,omitempty"`
	Snapshot      Document  `json:"snapshot"`
	Message       string    `json:"message"`
	DeletedBy     string    `json:"deleted_by"`
	DeletedByName string    `json:"deleted_by_name"`
	DeletedAt     time.Time `json:"deleted_at"`
	AutoDelete    bool      `json:"auto_delete"`

	// Restore claim: set while a workflow owns the entry. A claim older than
	// the lease is treated as abandoned.
	ClaimToken string    `json:"-"`
	ClaimedAt  time.Time `json:"-"`
}

// ExpiredAt reports whether the entry is purge-eligible for the given cutoff
// (now minus the retention window).
func (e TrashEntry) ExpiredAt(cutoff time.Time) bool {
	return e.AutoDelete && !cutoff.IsZero() && !e.DeletedAt.After(cutoff)
}

// ClaimedSince reports whether the entry holds a claim that is still live.
func (e TrashEntry) ClaimedSince(staleBefore time.Time) bool {
	return e.ClaimToken != "" && e.ClaimedAt.After(staleBefore)
}

type SoftDeleteRequest struct {
	EntityType   string      `json:"entity_type"`
	EntityID     string      `json:"entity_id"`
	Scope        string      `json:"scope,omitempty"`
	TrashMessage string      `json:"trash_message"`
	AuditMessage string      `json:"audit_message"`
	Action       AuditAction `json:"action,omitempty"`
	// Retain exempts the entry from automatic purge.
	Retain bool `json:"retain,omitempty"`
}

// RestoreClaim is a compare-and-set request on a trash entry.
type RestoreClaim struct {
	TrashID string
	Token   string
	At      time.Time
	// Claims taken before StaleBefore are considered abandoned.
	StaleBefore time.Time
	// Entries that expired at or before ExpiredBefore cannot be claimed.
	// Zero disables the expiry check.
	ExpiredBefore time.Time
}

type TrashCursor struct {
	DeletedAt time.Time
	ID        string
}

type TrashQuery struct {
	Scope        string
	OriginalType string
	// Only entries strictly older than After (in listing order).
	After *TrashCursor
	// Hide entries expired at this cutoff. Zero shows everything.
	ExpiredBefore time.Time
	Limit         int
}

type TrashFilter struct {
	Scope        string
	OriginalType string
	Cursor       string
	Limit        int
}

type TrashView struct {
	TrashEntry
	DeletedByDisplayName string     `json:"deleted_by_display_name"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
}

type TrashPage struct {
	Items      []TrashView `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}
