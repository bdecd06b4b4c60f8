package store

import (
	"context"

	"github.com/stretchr/testify/mock"

	"clinic-trash/internal/model"
)

type MockCollection struct {
	mock.Mock
}

func (m *MockCollection) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockCollection) FindByID(ctx context.Context, id string) (model.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.Record), args.Error(1)
}

func (m *MockCollection) Insert(ctx context.Context, doc model.Document) (model.Record, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.Record), args.Error(1)
}

func (m *MockCollection) DeleteByID(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// StaticResolver resolves every entity type to the same collection.
type StaticResolver struct {
	Collection Collection
}

func (r StaticResolver) Resolve(string) (Collection, error) { return r.Collection, nil }

func (r StaticResolver) ResolveOrLoose(string) Collection { return r.Collection }
