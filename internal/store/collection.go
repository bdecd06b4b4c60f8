package store

import (
	"context"
	"fmt"

	"clinic-trash/internal/model"
)

type typedCollection[T model.Entity] struct {
	name    string
	backend Backend
}

func (c *typedCollection[T]) Name() string { return c.name }

func (c *typedCollection[T]) FindByID(ctx context.Context, id string) (model.Record, error) {
	doc, err := c.backend.Get(ctx, c.name, id)
	if err != nil {
		return nil, err
	}
	return c.decode(doc)
}

func (c *typedCollection[T]) Insert(ctx context.Context, doc model.Document) (model.Record, error) {
	if doc.ID() == "" {
		return nil, fmt.Errorf("%w: %s record has no %q field", model.ErrInvalidInput, c.name, model.IDField)
	}
	if _, err := c.decode(doc); err != nil {
		return nil, err
	}

	stored, err := c.backend.PutIfAbsent(ctx, c.name, doc)
	if err != nil {
		return nil, err
	}
	return c.decode(stored)
}

func (c *typedCollection[T]) DeleteByID(ctx context.Context, id string) (bool, error) {
	return c.backend.Delete(ctx, c.name, id)
}

func (c *typedCollection[T]) decode(doc model.Document) (model.Record, error) {
	var entity T
	if err := doc.Decode(&entity); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrInvalidInput, c.name, err)
	}
	return model.KnownRecord{Type: c.name, Entity: entity, Fields: doc}, nil
}

// LooseCollection stores records of a type nobody registered. Used as the
// restore fallback so data is never dropped for lack of a schema.
type LooseCollection struct {
	name    string
	backend Backend
}

func NewLooseCollection(name string, backend Backend) *LooseCollection {
	return &LooseCollection{name: name, backend: backend}
}

func (c *LooseCollection) Name() string { return c.name }

func (c *LooseCollection) FindByID(ctx context.Context, id string) (model.Record, error) {
	doc, err := c.backend.Get(ctx, c.name, id)
	if err != nil {
		return nil, err
	}
	return model.LooseRecord{Type: c.name, Fields: doc}, nil
}

func (c *LooseCollection) Insert(ctx context.Context, doc model.Document) (model.Record, error) {
	if doc.ID() == "" {
		return nil, fmt.Errorf("%w: %s record has no %q field", model.ErrInvalidInput, c.name, model.IDField)
	}
	stored, err := c.backend.PutIfAbsent(ctx, c.name, doc)
	if err != nil {
		return nil, err
	}
	return model.LooseRecord{Type: c.name, Fields: stored}, nil
}

func (c *LooseCollection) DeleteByID(ctx context.Context, id string) (bool, error) {
	return c.backend.Delete(ctx, c.name, id)
}
