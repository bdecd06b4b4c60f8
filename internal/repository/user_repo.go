package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clinic-trash/internal/model"
)

// UserRepository reads dashboard users as principals. Accounts are managed
// elsewhere; this service only resolves names and roles.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) FindPrincipal(ctx context.Context, id string) (model.Principal, error) {
	var p model.Principal
	err := r.pool.QueryRow(ctx,
		`SELECT id, display_name, role FROM users WHERE id = $1`, strings.TrimSpace(id)).
		Scan(&p.ID, &p.DisplayName, &p.Role)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Principal{}, model.ErrPrincipalNotFound
	}
	if err != nil {
		return model.Principal{}, model.Persistence("find principal", err)
	}
	return p, nil
}
