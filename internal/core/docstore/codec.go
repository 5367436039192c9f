package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode maps a document body onto a typed read model through JSON.
// Numeric leaves arrive as json.Number, which decimal fields parse
// without a float round trip.
func Decode(doc Document, target any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Encode converts a typed value into a document body.
func Encode(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode into document: %w", err)
	}
	return doc, nil
}
