package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/artpar/crudkit/domain/model"
)

// timeLayout has a fixed width so stored times order lexically.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// encodeValue converts a value to the representation stored in JSON.
func encodeValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(timeLayout)
	}
	return v
}

// filterArg converts a filter value to the SQL value json_extract yields
// for the stored representation.
func filterArg(v any) any {
	switch x := v.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	case time.Time:
		return x.UTC().Format(timeLayout)
	}
	return v
}

// encodeDoc serializes doc without its id, which lives in its own column.
func encodeDoc(doc model.Document) (string, error) {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == model.IDField {
			continue
		}
		out[k] = encodeValue(v)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(b), nil
}

// decodeDoc parses a stored document and restores declared types.
func decodeDoc(id, data string, m model.Model) (model.Document, error) {
	doc := make(model.Document)
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	doc[model.IDField] = id

	// Stored values were cast on write, so a failure here means the schema
	// changed since; the raw value is kept.
	_ = m.Cast(doc)

	for _, k := range []string{model.CreatedAtField, model.UpdatedAtField} {
		s, ok := doc[k].(string)
		if !ok {
			continue
		}
		if t, err := time.Parse(timeLayout, s); err == nil {
			doc[k] = t
		}
	}
	return doc, nil
}
