package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory implementation of Store.
// Useful for testing and development.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
}

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]any),
	}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return exportObject(doc), nil
}

func (s *MemoryStore) Create(ctx context.Context, collection, id string, doc Document) error {
	normalized, err := normalizeObject(map[string]any(doc))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		s.collections[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return ErrExists
	}
	coll[id] = normalized
	return nil
}

func (s *MemoryStore) Increment(ctx context.Context, collection, id string, deltas []FieldDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}

	for _, d := range deltas {
		parent, leaf, err := descend(doc, d.Path)
		if err != nil {
			return err
		}
		cur, exists := parent[leaf]
		if !exists {
			parent[leaf] = d.Delta
			continue
		}
		curDec, ok := cur.(decimal.Decimal)
		if !ok {
			return fmt.Errorf("increment %s: %w", d.Path, ErrPathConflict)
		}
		parent[leaf] = curDec.Add(d.Delta)
	}
	return nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, fields []FieldValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}

	for _, f := range fields {
		parent, leaf, err := descend(doc, f.Path)
		if err != nil {
			return err
		}
		normalized, err := normalizeValue(f.Value)
		if err != nil {
			return err
		}
		parent[leaf] = normalized
	}
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fn func(Document) (Document, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}

	updated, err := fn(exportObject(doc))
	if err != nil {
		return err
	}
	normalized, err := normalizeObject(map[string]any(updated))
	if err != nil {
		return err
	}
	s.collections[collection][id] = normalized
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, collection, field, value string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Entry
	for id, doc := range s.collections[collection] {
		fv, ok := doc[field]
		if !ok {
			continue
		}
		if stringifyLeaf(fv) != value {
			continue
		}
		result = append(result, Entry{ID: id, Doc: exportObject(doc)})
	}
	return result, nil
}

func (s *MemoryStore) DeleteAll(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, collection)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Len reports the number of documents in a collection.
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// descend walks all but the last segment, creating missing intermediate
// objects and rejecting non-object intermediates.
func descend(doc map[string]any, path FieldPath) (map[string]any, string, error) {
	if len(path) == 0 {
		return nil, "", fmt.Errorf("empty field path: %w", ErrPathConflict)
	}
	cur := doc
	for _, seg := range path[:len(path)-1] {
		next, exists := cur[seg]
		if !exists {
			child := make(map[string]any)
			cur[seg] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("segment %q is not an object: %w", seg, ErrPathConflict)
		}
		cur = child
	}
	return cur, path[len(path)-1], nil
}

// normalizeValue converts incoming values to the internal representation:
// numeric leaves become decimal.Decimal so increments stay exact.
func normalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string:
		return val, nil
	case decimal.Decimal:
		return val, nil
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return d, nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case float64:
		return decimal.NewFromFloat(val), nil
	case map[string]any:
		return normalizeObject(val)
	case Document:
		return normalizeObject(map[string]any(val))
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			normalized, err := normalizeValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = normalized
		}
		return out, nil
	default:
		// Structured values (qualitative comment lists) round-trip
		// through JSON into plain maps.
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("unsupported document value %T: %w", val, err)
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, err
		}
		return normalizeValue(decoded)
	}
}

func normalizeObject(obj map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		normalized, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = normalized
	}
	return out, nil
}

// exportValue deep-copies the internal representation back out,
// rendering decimals as json.Number so no precision is lost.
func exportValue(v any) any {
	switch val := v.(type) {
	case decimal.Decimal:
		return json.Number(val.String())
	case map[string]any:
		return map[string]any(exportObject(val))
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = exportValue(elem)
		}
		return out
	default:
		return val
	}
}

func exportObject(obj map[string]any) Document {
	out := make(Document, len(obj))
	for k, v := range obj {
		out[k] = exportValue(v)
	}
	return out
}

func stringifyLeaf(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case decimal.Decimal:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
