package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// IDField is the identity field every stored record carries.
const IDField = "id"

// Document is the schema-less field bag records are stored, snapshotted and
// restored as.
type Document map[string]any

func (d Document) ID() string {
	switch v := d[IDField].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Clone returns a deep copy. Nested maps and slices are copied; leaf values
// are JSON scalars and are shared.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return cloneValue(map[string]any(d)).(map[string]any)
}

// Equal compares documents by their JSON encoding, so numbers read back from
// storage (json.Number) match the values that were written.
func (d Document) Equal(other Document) bool {
	if d == nil || other == nil {
		return d == nil && other == nil
	}
	a, err := json.Marshal(d)
	if err != nil {
		return false
	}
	b, err := json.Marshal(other)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// Decode unmarshals the document into target through its JSON form.
func (d Document) Decode(target any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// DocumentFromJSON parses raw JSON into a Document, keeping numbers as
// json.Number so integer fields survive a round trip unchanged.
func DocumentFromJSON(raw []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is null", ErrInvalidInput)
	}
	return doc, nil
}

// DocumentOf converts any JSON-serialisable value into a Document.
func DocumentOf(value any) (Document, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return DocumentFromJSON(raw)
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = cloneValue(item)
		}
		return out
	case Document:
		return Document(cloneValue(map[string]any(v)).(map[string]any))
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Entity is implemented by every statically known record kind.
type Entity interface {
	EntityID() string
}

// Record is a live record of either a registered kind (KnownRecord) or an
// unregistered one (LooseRecord). The set is closed.
type Record interface {
	RecordType() string
	RecordID() string
	Document() (Document, error)
	isRecord()
}

type KnownRecord struct {
	Type   string
	Entity Entity
	// Fields is the document as stored. It may carry fields Entity has no
	// place for, and lacks fields the stored record never had.
	Fields Document
}

func (r KnownRecord) RecordType() string { return r.Type }
func (r KnownRecord) RecordID() string   { return r.Entity.EntityID() }

// Document returns a fresh copy of the stored document, so it doubles as a
// deep snapshot. Records built in memory without one fall back to Entity.
func (r KnownRecord) Document() (Document, error) {
	if r.Fields != nil {
		return r.Fields.Clone(), nil
	}
	return DocumentOf(r.Entity)
}

func (KnownRecord) isRecord() {}

// LooseRecord holds a record whose type has no registered shape.
type LooseRecord struct {
	Type   string
	Fields Document
}

func (r LooseRecord) RecordType() string { return r.Type }
func (r LooseRecord) RecordID() string   { return r.Fields.ID() }

func (r LooseRecord) Document() (Document, error) {
	return r.Fields.Clone(), nil
}

func (LooseRecord) isRecord() {}
