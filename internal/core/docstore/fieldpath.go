package docstore

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FieldPath addresses a nested field as an ordered list of segments.
// Segments are kept separate end to end; they are never joined with a
// separator and re-split, so names like "B.E." or "1.5h" are safe.
type FieldPath []string

// Path builds a FieldPath from segments.
func Path(segments ...string) FieldPath {
	return FieldPath(segments)
}

// Child returns a new path with extra segments appended.
func (p FieldPath) Child(segments ...string) FieldPath {
	child := make(FieldPath, 0, len(p)+len(segments))
	child = append(child, p...)
	child = append(child, segments...)
	return child
}

// String is for logs and error messages only, never for addressing.
func (p FieldPath) String() string {
	return strings.Join(p, " › ")
}

// Delta pairs a path with an increment amount.
func Delta(path FieldPath, delta decimal.Decimal) FieldDelta {
	return FieldDelta{Path: path, Delta: delta}
}

// Value pairs a path with a field write.
func Value(path FieldPath, value any) FieldValue {
	return FieldValue{Path: path, Value: value}
}

// SanitizeSegment replaces characters that downstream display layers
// treat as separators. Addressing never needs it; display keys do.
func SanitizeSegment(name string) string {
	if strings.TrimSpace(name) == "" {
		return "unknown"
	}
	return strings.TrimSpace(strings.ReplaceAll(name, ".", "_"))
}
