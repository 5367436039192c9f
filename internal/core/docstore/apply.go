package docstore

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ApplyDeltas folds increments into a document body and returns the
// updated body. Adapters that persist documents as opaque JSON (the
// Postgres adapter) share this with the in-memory store so increment
// semantics — intermediate-object creation, ErrPathConflict, exact
// decimal arithmetic — are identical everywhere.
func ApplyDeltas(doc Document, deltas []FieldDelta) (Document, error) {
	internal, err := normalizeObject(map[string]any(doc))
	if err != nil {
		return nil, err
	}
	for _, d := range deltas {
		parent, leaf, err := descend(internal, d.Path)
		if err != nil {
			return nil, err
		}
		cur, exists := parent[leaf]
		if !exists {
			parent[leaf] = d.Delta
			continue
		}
		curDec, ok := cur.(decimal.Decimal)
		if !ok {
			return nil, fmt.Errorf("increment %s: %w", d.Path, ErrPathConflict)
		}
		parent[leaf] = curDec.Add(d.Delta)
	}
	return exportObject(internal), nil
}

// ApplyValues writes field values into a document body and returns the
// updated body.
func ApplyValues(doc Document, fields []FieldValue) (Document, error) {
	internal, err := normalizeObject(map[string]any(doc))
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		parent, leaf, err := descend(internal, f.Path)
		if err != nil {
			return nil, err
		}
		normalized, err := normalizeValue(f.Value)
		if err != nil {
			return nil, err
		}
		parent[leaf] = normalized
	}
	return exportObject(internal), nil
}
