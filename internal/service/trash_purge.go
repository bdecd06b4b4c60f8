package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"clinic-trash/internal/model"
)

// TrashEntityType tags audit notes about the trash itself rather than a
// record inside it.
const TrashEntityType = "TrashEntry"

// PurgeExpired permanently removes expired auto-delete entries in batches.
// Entries under a live restore claim are skipped, so a concurrent restore and
// sweep never both win. Only the count is audited, not the content.
func (s *TrashService) PurgeExpired(ctx context.Context) (purged int, err error) {
	start := s.now()
	defer func() { s.opts.Metrics.ObservePurge(purged, s.now().Sub(start), err) }()

	cutoff := s.cutoff(start)
	for {
		if err = ctx.Err(); err != nil {
			break
		}

		var removed []model.TrashEntry
		removed, err = s.trash.DeleteExpired(ctx, cutoff, s.staleBefore(s.now()), s.opts.PurgeBatch)
		purged += len(removed)
		if err != nil || len(removed) < s.opts.PurgeBatch {
			break
		}
	}

	if purged > 0 {
		note := s.trashNote(fmt.Sprintf("purged %d expired trash entries", purged), model.SystemPrincipal)
		if auditErr := s.audit.Append(context.WithoutCancel(ctx), note); auditErr != nil {
			err = errors.Join(err, auditErr)
		}
	}

	if err != nil {
		s.logger.Error("trash purge failed", "purged", purged, "error", err)
		return purged, err
	}
	if purged > 0 {
		s.logger.Info("purged expired trash entries", "count", purged, "cutoff", cutoff)
	}
	return purged, nil
}

// HardDeleteTrashEntry removes one entry for good without restoring it.
func (s *TrashService) HardDeleteTrashEntry(ctx context.Context, trashID string, principal model.Principal) (err error) {
	defer func() { s.opts.Metrics.ObserveHardDelete(err) }()

	if !principal.Valid() {
		return fmt.Errorf("%w: principal required", model.ErrUnauthorized)
	}
	trashID = strings.TrimSpace(trashID)
	if trashID == "" {
		return model.ErrTrashEntryNotFound
	}

	now := s.now()
	entry, err := s.trash.DeleteUnclaimed(ctx, trashID, s.staleBefore(now))
	if err != nil {
		return err
	}

	if err := s.audit.Append(ctx, model.AuditEntry{
		ID:              auditID(entry.ID, model.ActionPurged),
		Action:          model.ActionPurged,
		EntityType:      entry.OriginalType,
		EntityID:        entry.OriginalID,
		PerformedBy:     principal.ID,
		PerformedByName: principal.Name(),
		Message:         "permanently deleted from trash",
		OccurredAt:      now,
	}); err != nil {
		return err
	}

	s.logger.Info("trash entry permanently deleted",
		"trash_id", entry.ID, "entity_type", entry.OriginalType, "entity_id", entry.OriginalID,
		"principal_id", principal.ID)
	return nil
}

// EmptyTrash permanently removes every unclaimed entry in scope. An empty
// scope means the whole trash.
func (s *TrashService) EmptyTrash(ctx context.Context, scope string, principal model.Principal) (int, error) {
	if !principal.Valid() {
		return 0, fmt.Errorf("%w: principal required", model.ErrUnauthorized)
	}

	scope = strings.TrimSpace(scope)
	removed, err := s.trash.DeleteAll(ctx, scope, s.staleBefore(s.now()))
	if err != nil {
		return 0, err
	}
	if len(removed) == 0 {
		return 0, nil
	}

	target := "all scopes"
	if scope != "" {
		target = "scope " + scope
	}
	note := s.trashNote(fmt.Sprintf("emptied trash for %s: %d entries", target, len(removed)), principal)
	if err := s.audit.Append(ctx, note); err != nil {
		return len(removed), err
	}

	s.logger.Info("trash emptied", "scope", scope, "count", len(removed), "principal_id", principal.ID)
	return len(removed), nil
}

// SetAutoDelete pins an entry (false) or hands it back to the purge sweep
// (true). Expired entries cannot be pinned back.
func (s *TrashService) SetAutoDelete(ctx context.Context, trashID string, autoDelete bool, principal model.Principal) (model.TrashEntry, error) {
	if !principal.Valid() {
		return model.TrashEntry{}, fmt.Errorf("%w: principal required", model.ErrUnauthorized)
	}
	trashID = strings.TrimSpace(trashID)

	now := s.now()
	current, err := s.trash.FindByID(ctx, trashID)
	if err != nil {
		return model.TrashEntry{}, err
	}
	if current.ExpiredAt(s.cutoff(now)) {
		return model.TrashEntry{}, model.ErrTrashEntryNotFound
	}
	if current.AutoDelete == autoDelete {
		return publicEntry(current), nil
	}

	entry, err := s.trash.SetAutoDelete(ctx, trashID, autoDelete)
	if err != nil {
		return model.TrashEntry{}, err
	}

	message := "auto delete disabled"
	if autoDelete {
		message = "auto delete enabled"
	}
	if err := s.audit.Append(ctx, model.AuditEntry{
		ID:              uuid.NewString(),
		Action:          model.ActionUpdated,
		EntityType:      TrashEntityType,
		EntityID:        entry.ID,
		PerformedBy:     principal.ID,
		PerformedByName: principal.Name(),
		Message:         message,
		OccurredAt:      now,
	}); err != nil {
		return model.TrashEntry{}, err
	}
	return publicEntry(entry), nil
}

func (s *TrashService) trashNote(message string, principal model.Principal) model.AuditEntry {
	return model.AuditEntry{
		ID:              uuid.NewString(),
		Action:          model.ActionPurged,
		EntityType:      TrashEntityType,
		EntityID:        "*",
		PerformedBy:     principal.ID,
		PerformedByName: principal.Name(),
		Message:         message,
		OccurredAt:      s.now(),
	}
}
