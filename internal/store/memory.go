package store

import (
	"context"
	"sync"

	"clinic-trash/internal/model"
)

// MemoryBackend keeps documents in process. Stored documents are copied in
// and out so callers never share maps with the store.
type MemoryBackend struct {
	mu          sync.Mutex
	collections map[string]map[string]model.Document
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: map[string]map[string]model.Document{}}
}

func (b *MemoryBackend) Get(_ context.Context, collection string, id string) (model.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, ok := b.collections[collection][id]
	if !ok {
		return nil, model.ErrRecordNotFound
	}
	return doc.Clone(), nil
}

func (b *MemoryBackend) PutIfAbsent(_ context.Context, collection string, doc model.Document) (model.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	docs, ok := b.collections[collection]
	if !ok {
		docs = map[string]model.Document{}
		b.collections[collection] = docs
	}

	id := doc.ID()
	if existing, ok := docs[id]; ok {
		return existing.Clone(), nil
	}
	docs[id] = doc.Clone()
	return doc.Clone(), nil
}

func (b *MemoryBackend) Delete(_ context.Context, collection string, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	docs := b.collections[collection]
	if _, ok := docs[id]; !ok {
		return false, nil
	}
	delete(docs, id)
	return true, nil
}

func (b *MemoryBackend) Len(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.collections[collection])
}
