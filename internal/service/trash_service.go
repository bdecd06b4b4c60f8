package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"clinic-trash/internal/metrics"
	"clinic-trash/internal/model"
	"clinic-trash/internal/store"
)

const (
	DefaultRetention    = 30 * 24 * time.Hour
	DefaultRestoreLease = time.Minute
	DefaultPurgeBatch   = 500
)

// RecordResolver maps entity-type names to live collections.
type RecordResolver interface {
	Resolve(entityType string) (store.Collection, error)
	ResolveOrLoose(entityType string) store.Collection
}

// TrashStore is the holding area. Every method that removes or claims an
// entry is conditional and decided atomically by the store.
type TrashStore interface {
	Create(ctx context.Context, entry model.TrashEntry) error
	FindByID(ctx context.Context, id string) (model.TrashEntry, error)
	FindByOriginal(ctx context.Context, originalType string, originalID string) (model.TrashEntry, error)
	List(ctx context.Context, query model.TrashQuery) ([]model.TrashEntry, error)
	Claim(ctx context.Context, claim model.RestoreClaim) (model.TrashEntry, error)
	Release(ctx context.Context, id string, token string) error
	DeleteClaimed(ctx context.Context, id string, token string) error
	DeleteUnclaimed(ctx context.Context, id string, staleBefore time.Time) (model.TrashEntry, error)
	DeleteExpired(ctx context.Context, expiredBefore time.Time, staleBefore time.Time, limit int) ([]model.TrashEntry, error)
	DeleteAll(ctx context.Context, scope string, staleBefore time.Time) ([]model.TrashEntry, error)
	SetAutoDelete(ctx context.Context, id string, autoDelete bool) (model.TrashEntry, error)
}

// AuditLog appends immutable entries. Append must be idempotent on the entry
// ID.
type AuditLog interface {
	Append(ctx context.Context, entry model.AuditEntry) error
}

type PrincipalDirectory interface {
	Lookup(ctx context.Context, id string) (model.Principal, error)
}

type TrashOptions struct {
	// Auto-delete entries older than Retention are purge-eligible.
	Retention time.Duration
	// A restore claim older than RestoreLease is considered abandoned.
	RestoreLease time.Duration
	PurgeBatch   int
	Directory    PrincipalDirectory
	Metrics      *metrics.Trash
	Logger       *slog.Logger
	Now          func() time.Time
}

type TrashService struct {
	records  RecordResolver
	trash    TrashStore
	audit    AuditLog
	opts     TrashOptions
	logger   *slog.Logger
	now      func() time.Time
	trashIDs *idSource
}

func NewTrashService(records RecordResolver, trash TrashStore, audit AuditLog, opts TrashOptions) *TrashService {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.RestoreLease <= 0 {
		opts.RestoreLease = DefaultRestoreLease
	}
	if opts.PurgeBatch <= 0 {
		opts.PurgeBatch = DefaultPurgeBatch
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &TrashService{
		records:  records,
		trash:    trash,
		audit:    audit,
		opts:     opts,
		logger:   logger.With("component", "trash"),
		now:      now,
		trashIDs: newIDSource(),
	}
}

// SoftDelete moves a live record into the trash. The trash entry and its audit
// entry are written before the live record is removed; if that last step
// fails the entry is returned together with a retryable error and the record
// is visible in both places until a retry completes the move.
func (s *TrashService) SoftDelete(ctx context.Context, req model.SoftDeleteRequest, principal model.Principal) (entry model.TrashEntry, err error) {
	// Only resolved types become metric labels.
	entityType := metrics.UnknownEntityType
	defer func() { s.opts.Metrics.ObserveSoftDelete(entityType, err) }()

	if !principal.Valid() {
		return model.TrashEntry{}, fmt.Errorf("%w: principal required", model.ErrUnauthorized)
	}
	req.EntityType = strings.TrimSpace(req.EntityType)
	req.EntityID = strings.TrimSpace(req.EntityID)
	if req.EntityType == "" || req.EntityID == "" {
		return model.TrashEntry{}, fmt.Errorf("%w: entity type and id are required", model.ErrInvalidInput)
	}
	if req.Action == "" {
		req.Action = model.ActionDeleted
	}
	if !req.Action.Valid() {
		return model.TrashEntry{}, fmt.Errorf("%w: unknown audit action %q", model.ErrInvalidInput, req.Action)
	}

	collection, err := s.records.Resolve(req.EntityType)
	if err != nil {
		return model.TrashEntry{}, err
	}
	entityType = req.EntityType

	// A retry after a partial failure finds its own entry and finishes the job.
	existing, err := s.trash.FindByOriginal(ctx, req.EntityType, req.EntityID)
	if err == nil {
		return s.resumeSoftDelete(ctx, collection, existing, req, principal)
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.TrashEntry{}, err
	}

	record, err := collection.FindByID(ctx, req.EntityID)
	if err != nil {
		return model.TrashEntry{}, err
	}
	snapshot, err := record.Document()
	if err != nil {
		return model.TrashEntry{}, err
	}
	if snapshot.ID() == "" {
		snapshot[model.IDField] = record.RecordID()
	}

	now := s.now()
	token := uuid.NewString()
	entry = model.TrashEntry{
		ID:            s.trashIDs.next(now),
		OriginalType:  req.EntityType,
		OriginalID:    req.EntityID,
		Scope:         strings.TrimSpace(req.Scope),
		Snapshot:      snapshot,
		Message:       req.TrashMessage,
		DeletedBy:     principal.ID,
		DeletedByName: principal.Name(),
		DeletedAt:     now,
		AutoDelete:    !req.Retain,
		ClaimToken:    token,
		ClaimedAt:     now,
	}

	if err := s.trash.Create(ctx, entry); err != nil {
		if !errors.Is(err, model.ErrAlreadyTrashed) {
			return model.TrashEntry{}, err
		}
		// Lost a race with a concurrent soft delete of the same record.
		existing, findErr := s.trash.FindByOriginal(ctx, req.EntityType, req.EntityID)
		if findErr != nil {
			return model.TrashEntry{}, findErr
		}
		return s.resumeSoftDelete(ctx, collection, existing, req, principal)
	}

	if err := s.audit.Append(ctx, s.softDeleteAudit(entry, req, principal)); err != nil {
		// Undo the entry so the record is only live again. If this fails too
		// the claim lapses and a retry resumes from the entry.
		if undoErr := s.trash.DeleteClaimed(ctx, entry.ID, token); undoErr != nil {
			s.logger.Error("could not roll back trash entry", "trash_id", entry.ID, "error", undoErr)
		}
		return model.TrashEntry{}, err
	}

	if err := s.removeLive(ctx, collection, entry, token); err != nil {
		return publicEntry(entry), err
	}

	s.release(ctx, entry.ID, token)
	s.logger.Info("record moved to trash",
		"trash_id", entry.ID, "entity_type", entry.OriginalType, "entity_id", entry.OriginalID,
		"principal_id", principal.ID)
	return publicEntry(entry), nil
}

func (s *TrashService) resumeSoftDelete(ctx context.Context, collection store.Collection, existing model.TrashEntry, req model.SoftDeleteRequest, principal model.Principal) (model.TrashEntry, error) {
	now := s.now()
	token := uuid.NewString()

	entry, err := s.trash.Claim(ctx, model.RestoreClaim{
		TrashID:     existing.ID,
		Token:       token,
		At:          now,
		StaleBefore: now.Add(-s.opts.RestoreLease),
	})
	if errors.Is(err, model.ErrConflict) {
		// Another soft delete (or a restore) of the same record holds the entry.
		return model.TrashEntry{}, fmt.Errorf("%w: %s %s is held by trash entry %s",
			model.ErrAlreadyTrashed, existing.OriginalType, existing.OriginalID, existing.ID)
	}
	if err != nil {
		return model.TrashEntry{}, err
	}

	live, err := collection.FindByID(ctx, entry.OriginalID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		live = nil
	case err != nil:
		s.release(ctx, entry.ID, token)
		return model.TrashEntry{}, err
	}

	if live != nil {
		doc, err := live.Document()
		if err != nil {
			s.release(ctx, entry.ID, token)
			return model.TrashEntry{}, err
		}
		// A record recreated under the same id after it was trashed is a
		// different record; refuse instead of dropping it unsnapshotted.
		if !doc.Equal(entry.Snapshot) {
			s.release(ctx, entry.ID, token)
			return model.TrashEntry{}, fmt.Errorf("%w: %s %s has a pending trash entry %s",
				model.ErrAlreadyTrashed, entry.OriginalType, entry.OriginalID, entry.ID)
		}
	}

	if err := s.audit.Append(ctx, s.softDeleteAudit(entry, req, principal)); err != nil {
		s.release(ctx, entry.ID, token)
		return model.TrashEntry{}, err
	}

	if live != nil {
		if err := s.removeLive(ctx, collection, entry, token); err != nil {
			return publicEntry(entry), err
		}
	}

	s.release(ctx, entry.ID, token)
	s.logger.Info("resumed soft delete", "trash_id", entry.ID, "entity_type", entry.OriginalType,
		"entity_id", entry.OriginalID, "live_copy_removed", live != nil)
	return publicEntry(entry), nil
}

func (s *TrashService) removeLive(ctx context.Context, collection store.Collection, entry model.TrashEntry, token string) error {
	if _, err := collection.DeleteByID(ctx, entry.OriginalID); err != nil {
		s.release(ctx, entry.ID, token)
		s.logger.Warn("record trashed but live copy remains",
			"trash_id", entry.ID, "entity_type", entry.OriginalType, "entity_id", entry.OriginalID, "error", err)
		if model.IsRetryable(err) {
			return err
		}
		return model.Persistence("delete live record", err)
	}
	return nil
}

// Restore reinserts the snapshot into its collection and removes the entry.
// The entry is claimed first and only deleted after the reinsert and audit
// succeeded, so a failure at any step leaves it restorable again.
func (s *TrashService) Restore(ctx context.Context, trashID string, principal model.Principal) (record model.Record, err error) {
	entityType := metrics.UnknownEntityType
	defer func() { s.opts.Metrics.ObserveRestore(entityType, err) }()

	if !principal.Valid() {
		return nil, fmt.Errorf("%w: principal required", model.ErrUnauthorized)
	}
	trashID = strings.TrimSpace(trashID)
	if trashID == "" {
		return nil, model.ErrTrashEntryNotFound
	}

	now := s.now()
	token := uuid.NewString()
	entry, err := s.trash.Claim(ctx, model.RestoreClaim{
		TrashID:       trashID,
		Token:         token,
		At:            now,
		StaleBefore:   now.Add(-s.opts.RestoreLease),
		ExpiredBefore: s.cutoff(now),
	})
	if err != nil {
		return nil, err
	}
	entityType = entry.OriginalType

	collection := s.records.ResolveOrLoose(entry.OriginalType)
	record, err = collection.Insert(ctx, entry.Snapshot)
	if err == nil {
		err = s.checkRestored(record, entry)
	}
	if err != nil {
		s.release(ctx, entry.ID, token)
		return nil, err
	}

	if err := s.audit.Append(ctx, model.AuditEntry{
		ID:              auditID(entry.ID, model.ActionRestored),
		Action:          model.ActionRestored,
		EntityType:      entry.OriginalType,
		EntityID:        entry.OriginalID,
		PerformedBy:     principal.ID,
		PerformedByName: principal.Name(),
		Message:         "restored from trash",
		OccurredAt:      now,
	}); err != nil {
		s.release(ctx, entry.ID, token)
		return nil, err
	}

	if err := s.trash.DeleteClaimed(ctx, entry.ID, token); err != nil {
		if !errors.Is(err, model.ErrConflict) {
			s.release(ctx, entry.ID, token)
		}
		return nil, err
	}

	s.logger.Info("record restored from trash",
		"trash_id", entry.ID, "entity_type", entry.OriginalType, "entity_id", entry.OriginalID,
		"principal_id", principal.ID, "loose", isLoose(record))
	return record, nil
}

// checkRestored accepts an insert that left the snapshot live, including one
// a previous attempt already made. A different record under the same id is
// refused so the snapshot is not dropped in its favour.
func (s *TrashService) checkRestored(record model.Record, entry model.TrashEntry) error {
	stored, err := record.Document()
	if err != nil {
		return err
	}
	if !stored.Equal(entry.Snapshot) {
		s.logger.Warn("restore blocked by a different live record",
			"trash_id", entry.ID, "entity_type", entry.OriginalType, "entity_id", entry.OriginalID)
		return fmt.Errorf("%w: %s %s differs from trash entry %s",
			model.ErrRecordExists, entry.OriginalType, entry.OriginalID, entry.ID)
	}
	return nil
}

// IsTrashed reports whether a trash entry exists for the record. When a live
// copy also exists after a failed soft delete, the trash entry wins.
func (s *TrashService) IsTrashed(ctx context.Context, entityType string, entityID string) (bool, error) {
	_, err := s.trash.FindByOriginal(ctx, strings.TrimSpace(entityType), strings.TrimSpace(entityID))
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindLive reads a live record, hiding it if it is also in the trash.
func (s *TrashService) FindLive(ctx context.Context, entityType string, entityID string) (model.Record, error) {
	collection, err := s.records.Resolve(entityType)
	if err != nil {
		return nil, err
	}
	trashed, err := s.IsTrashed(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if trashed {
		return nil, model.ErrRecordNotFound
	}
	return collection.FindByID(ctx, strings.TrimSpace(entityID))
}

func (s *TrashService) softDeleteAudit(entry model.TrashEntry, req model.SoftDeleteRequest, principal model.Principal) model.AuditEntry {
	return model.AuditEntry{
		ID:              auditID(entry.ID, req.Action),
		Action:          req.Action,
		EntityType:      entry.OriginalType,
		EntityID:        entry.OriginalID,
		PerformedBy:     principal.ID,
		PerformedByName: principal.Name(),
		Message:         req.AuditMessage,
		OccurredAt:      entry.DeletedAt,
	}
}

func (s *TrashService) release(ctx context.Context, id string, token string) {
	if err := s.trash.Release(ctx, id, token); err != nil {
		s.logger.Warn("could not release trash claim; it lapses with the lease",
			"trash_id", id, "error", err)
	}
}

func (s *TrashService) cutoff(now time.Time) time.Time {
	return now.Add(-s.opts.Retention)
}

func (s *TrashService) staleBefore(now time.Time) time.Time {
	return now.Add(-s.opts.RestoreLease)
}

func publicEntry(entry model.TrashEntry) model.TrashEntry {
	entry.ClaimToken = ""
	entry.ClaimedAt = time.Time{}
	return entry
}

func isLoose(record model.Record) bool {
	_, ok := record.(model.LooseRecord)
	return ok
}

var auditNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:clinic:trash:audit"))

// auditID derives a stable id per trash entry and lifecycle event, so
// replaying a step after a failure appends nothing new.
func auditID(trashID string, action model.AuditAction) string {
	return uuid.NewSHA1(auditNamespace, []byte(trashID+"/"+string(action))).String()
}

// idSource hands out ULIDs that sort by deletion time.
type idSource struct {
	mu      sync.Mutex
	entropy io.Reader
}

func newIDSource() *idSource {
	return &idSource{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (s *idSource) next(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}
