package auth

import (
	"context"
	"log/slog"
	"strings"

	"clinic-trash/internal/model"
)

type PrincipalSource interface {
	FindPrincipal(ctx context.Context, id string) (model.Principal, error)
}

// Directory resolves principal ids to principals, reading through an
// optional Redis cache. Cache failures degrade to the source.
type Directory struct {
	source PrincipalSource
	cache  *PrincipalCache
	logger *slog.Logger
}

func NewDirectory(source PrincipalSource, cache *PrincipalCache, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{source: source, cache: cache, logger: logger}
}

func (d *Directory) Lookup(ctx context.Context, id string) (model.Principal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Principal{}, model.ErrPrincipalNotFound
	}
	if id == model.SystemPrincipal.ID {
		return model.SystemPrincipal, nil
	}

	if d.cache != nil {
		p, ok, err := d.cache.Get(ctx, id)
		if err != nil {
			d.logger.Warn("principal cache read failed", "principal_id", id, "error", err)
		} else if ok {
			return p, nil
		}
	}

	p, err := d.source.FindPrincipal(ctx, id)
	if err != nil {
		return model.Principal{}, err
	}

	if d.cache != nil {
		if err := d.cache.Set(ctx, p); err != nil {
			d.logger.Warn("principal cache write failed", "principal_id", id, "error", err)
		}
	}
	return p, nil
}

func (d *Directory) Invalidate(ctx context.Context, id string) error {
	if d.cache == nil {
		return nil
	}
	return d.cache.Invalidate(ctx, id)
}
