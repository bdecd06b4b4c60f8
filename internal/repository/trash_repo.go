package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"clinic-trash/internal/model"
)

const trashColumns = `id, original_type, original_id, scope, snapshot, message,
	deleted_by, deleted_by_name, deleted_at, auto_delete,
	coalesce(claim_token, ''), claimed_at`

// Columns returned by bulk deletes. Snapshots are not read back when content
// is being destroyed.
const trashSummaryColumns = `id, original_type, original_id, scope, deleted_at, auto_delete`

const uniqueViolation = "23505"

type TrashRepository struct {
	pool *pgxpool.Pool
}

func NewTrashRepository(pool *pgxpool.Pool) *TrashRepository {
	return &TrashRepository{pool: pool}
}

func (r *TrashRepository) Create(ctx context.Context, entry model.TrashEntry) error {
	snapshot, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	var claimToken *string
	var claimedAt *time.Time
	if entry.ClaimToken != "" {
		claimToken = &entry.ClaimToken
		claimedAt = &entry.ClaimedAt
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO trash_entries
		 (id, original_type, original_id, scope, snapshot, message,
		  deleted_by, deleted_by_name, deleted_at, auto_delete, claim_token, claimed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID, entry.OriginalType, entry.OriginalID, entry.Scope, snapshot, entry.Message,
		entry.DeletedBy, entry.DeletedByName, entry.DeletedAt, entry.AutoDelete,
		claimToken, claimedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return model.ErrAlreadyTrashed
	}
	if err != nil {
		return model.Persistence("create trash entry", err)
	}
	return nil
}

func (r *TrashRepository) FindByID(ctx context.Context, id string) (model.TrashEntry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+trashColumns+` FROM trash_entries WHERE id = $1`, id)
	return scanTrashEntry(row, "find trash entry")
}

func (r *TrashRepository) FindByOriginal(ctx context.Context, originalType string, originalID string) (model.TrashEntry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+trashColumns+` FROM trash_entries
		 WHERE original_type = $1 AND original_id = $2`, originalType, originalID)
	return scanTrashEntry(row, "find trash entry by original")
}

func (r *TrashRepository) List(ctx context.Context, query model.TrashQuery) ([]model.TrashEntry, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 6)
	argIdx := 1

	if scope := strings.TrimSpace(query.Scope); scope != "" {
		where = append(where, fmt.Sprintf("scope = $%d", argIdx))
		args = append(args, scope)
		argIdx++
	}
	if originalType := strings.TrimSpace(query.OriginalType); originalType != "" {
		where = append(where, fmt.Sprintf("original_type = $%d", argIdx))
		args = append(args, originalType)
		argIdx++
	}
	if query.After != nil {
		where = append(where, fmt.Sprintf("(deleted_at, id) < ($%d, $%d)", argIdx, argIdx+1))
		args = append(args, query.After.DeletedAt, query.After.ID)
		argIdx += 2
	}
	if !query.ExpiredBefore.IsZero() {
		where = append(where, fmt.Sprintf("NOT (auto_delete AND deleted_at <= $%d)", argIdx))
		args = append(args, query.ExpiredBefore)
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM trash_entries %s
		 ORDER BY deleted_at DESC, id DESC
		 LIMIT $%d`, trashColumns, whereClause, argIdx), args...)
	if err != nil {
		return nil, model.Persistence("list trash entries", err)
	}
	defer rows.Close()

	entries := make([]model.TrashEntry, 0)
	for rows.Next() {
		entry, err := scanTrashEntry(rows, "scan trash entry")
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence("list trash entries", err)
	}
	return entries, nil
}

// Claim takes the restore claim with a single conditional update, so two
// concurrent claimers can never both succeed.
func (r *TrashRepository) Claim(ctx context.Context, claim model.RestoreClaim) (model.TrashEntry, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE trash_entries
		 SET claim_token = $2, claimed_at = $3
		 WHERE id = $1
		   AND (claim_token IS NULL OR claimed_at <= $4)
		   AND NOT (auto_delete AND deleted_at <= coalesce($5::timestamptz, '-infinity'::timestamptz))
		 RETURNING `+trashColumns,
		claim.TrashID, claim.Token, claim.At, claim.StaleBefore, nullableTime(claim.ExpiredBefore))

	entry, err := scanTrashEntry(row, "claim trash entry")
	if !errors.Is(err, model.ErrTrashEntryNotFound) {
		return entry, err
	}
	return model.TrashEntry{}, r.explainMiss(ctx, claim.TrashID, claim.ExpiredBefore)
}

func (r *TrashRepository) Release(ctx context.Context, id string, token string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE trash_entries SET claim_token = NULL, claimed_at = NULL
		 WHERE id = $1 AND claim_token = $2`, id, token)
	if err != nil {
		return model.Persistence("release trash claim", err)
	}
	return nil
}

func (r *TrashRepository) DeleteClaimed(ctx context.Context, id string, token string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM trash_entries WHERE id = $1 AND claim_token = $2`, id, token)
	if err != nil {
		return model.Persistence("delete claimed trash entry", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrConflict
	}
	return nil
}

func (r *TrashRepository) DeleteUnclaimed(ctx context.Context, id string, staleBefore time.Time) (model.TrashEntry, error) {
	row := r.pool.QueryRow(ctx,
		`DELETE FROM trash_entries
		 WHERE id = $1 AND (claim_token IS NULL OR claimed_at <= $2)
		 RETURNING `+trashColumns, id, staleBefore)

	entry, err := scanTrashEntry(row, "delete trash entry")
	if !errors.Is(err, model.ErrTrashEntryNotFound) {
		return entry, err
	}
	return model.TrashEntry{}, r.explainMiss(ctx, id, time.Time{})
}

// DeleteExpired removes up to limit purge-eligible entries in one statement.
// SKIP LOCKED keeps concurrent sweeps from blocking each other; the predicate
// is repeated on the outer delete so a row claimed meanwhile is left alone.
func (r *TrashRepository) DeleteExpired(ctx context.Context, expiredBefore time.Time, staleBefore time.Time, limit int) ([]model.TrashEntry, error) {
	rows, err := r.pool.Query(ctx,
		`DELETE FROM trash_entries
		 WHERE id IN (
		     SELECT id FROM trash_entries
		     WHERE auto_delete AND deleted_at <= $1
		       AND (claim_token IS NULL OR claimed_at <= $2)
		     ORDER BY deleted_at
		     LIMIT $3
		     FOR UPDATE SKIP LOCKED
		 )
		   AND auto_delete AND deleted_at <= $1
		   AND (claim_token IS NULL OR claimed_at <= $2)
		 RETURNING `+trashSummaryColumns, expiredBefore, staleBefore, limit)
	if err != nil {
		return nil, model.Persistence("purge expired trash", err)
	}
	return collectTrashSummaries(rows, "purge expired trash")
}

func (r *TrashRepository) DeleteAll(ctx context.Context, scope string, staleBefore time.Time) ([]model.TrashEntry, error) {
	query := `DELETE FROM trash_entries WHERE (claim_token IS NULL OR claimed_at <= $1)`
	args := []any{staleBefore}
	if scope = strings.TrimSpace(scope); scope != "" {
		query += ` AND scope = $2`
		args = append(args, scope)
	}

	rows, err := r.pool.Query(ctx, query+` RETURNING `+trashSummaryColumns, args...)
	if err != nil {
		return nil, model.Persistence("empty trash", err)
	}
	return collectTrashSummaries(rows, "empty trash")
}

func (r *TrashRepository) SetAutoDelete(ctx context.Context, id string, autoDelete bool) (model.TrashEntry, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE trash_entries SET auto_delete = $2 WHERE id = $1
		 RETURNING `+trashColumns, id, autoDelete)
	return scanTrashEntry(row, "set trash auto delete")
}

// explainMiss tells a missing entry apart from one somebody else holds.
func (r *TrashRepository) explainMiss(ctx context.Context, id string, expiredBefore time.Time) error {
	var expired bool
	err := r.pool.QueryRow(ctx,
		`SELECT auto_delete AND deleted_at <= coalesce($2::timestamptz, '-infinity'::timestamptz)
		 FROM trash_entries WHERE id = $1`, id, nullableTime(expiredBefore)).Scan(&expired)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && expired) {
		return model.ErrTrashEntryNotFound
	}
	if err != nil {
		return model.Persistence("inspect trash entry", err)
	}
	return model.ErrConflict
}

func scanTrashEntry(row pgx.Row, op string) (model.TrashEntry, error) {
	var entry model.TrashEntry
	var snapshot []byte
	var claimedAt *time.Time

	err := row.Scan(
		&entry.ID, &entry.OriginalType, &entry.OriginalID, &entry.Scope, &snapshot, &entry.Message,
		&entry.DeletedBy, &entry.DeletedByName, &entry.DeletedAt, &entry.AutoDelete,
		&entry.ClaimToken, &claimedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.TrashEntry{}, model.ErrTrashEntryNotFound
	}
	if err != nil {
		return model.TrashEntry{}, model.Persistence(op, err)
	}

	entry.DeletedAt = entry.DeletedAt.UTC()
	if claimedAt != nil {
		entry.ClaimedAt = claimedAt.UTC()
	}
	if entry.Snapshot, err = model.DocumentFromJSON(snapshot); err != nil {
		return model.TrashEntry{}, fmt.Errorf("%s: %w", op, err)
	}
	return entry, nil
}

func collectTrashSummaries(rows pgx.Rows, op string) ([]model.TrashEntry, error) {
	defer rows.Close()

	entries := make([]model.TrashEntry, 0)
	for rows.Next() {
		var entry model.TrashEntry
		if err := rows.Scan(&entry.ID, &entry.OriginalType, &entry.OriginalID,
			&entry.Scope, &entry.DeletedAt, &entry.AutoDelete); err != nil {
			return nil, model.Persistence(op, err)
		}
		entry.DeletedAt = entry.DeletedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence(op, err)
	}
	return entries, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
