package model

import "time"

type AuditAction string

const (
	ActionCreated  AuditAction = "created"
	ActionUpdated  AuditAction = "updated"
	ActionDeleted  AuditAction = "deleted"
	ActionRestored AuditAction = "restored"
	ActionPurged   AuditAction = "purged"
)

func (a AuditAction) Valid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted, ActionRestored, ActionPurged:
		return true
	}
	return false
}

// AuditEntry is immutable once appended.
type AuditEntry struct {
	ID              string      `json:"id"`
	Action          AuditAction `json:"action"`
	EntityType      string      `json:"entity_type"`
	EntityID        string      `json:"entity_id"`
	PerformedBy     string      `json:"performed_by"`
	PerformedByName string      `json:"performed_by_name,omitempty"`
	Message         string      `json:"message"`
	OccurredAt      time.Time   `json:"occurred_at"`
}

type AuditQuery struct {
	Action     string
	EntityType string
	EntityID   string
	ActorID    string
	From       string
	To         string
	Page       int
	Limit      int
}

type AuditListData struct {
	Items []AuditEntry `json:"items"`
}
