package store

import (
	"context"

	"clinic-trash/internal/model"
)

// Collection is the live-record capability the trash engine depends on. It is
// type-erased: records go in as Documents and come out as model.Record.
type Collection interface {
	Name() string
	FindByID(ctx context.Context, id string) (model.Record, error)
	// Insert stores doc under its identity field. Inserting an id that already
	// exists is a no-op returning the stored record.
	Insert(ctx context.Context, doc model.Document) (model.Record, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
}

// Backend persists raw documents grouped by collection name.
type Backend interface {
	Get(ctx context.Context, collection string, id string) (model.Document, error)
	// PutIfAbsent inserts doc unless its id exists and returns whatever is
	// stored afterwards.
	PutIfAbsent(ctx context.Context, collection string, doc model.Document) (model.Document, error)
	Delete(ctx context.Context, collection string, id string) (bool, error)
}
