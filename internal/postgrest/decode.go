package postgrest

import (
	"encoding/json"
	"fmt"

	"finlink-client-go/internal/store"

	"go.uber.org/zap"
)

// decodeRows decodes a JSON array response into typed rows, validating
// each at the boundary. Malformed rows are logged and skipped rather
// than propagated untyped.
func decodeRows[T any](table string, data []byte, validate func(*T) error) ([]T, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unable to decode %s response: %w", table, err)
	}

	rows := make([]T, 0, len(raw))
	for i, item := range raw {
		var row T
		if err := json.Unmarshal(item, &row); err != nil {
			zap.L().Warn("Skipping malformed row",
				zap.String("table", table),
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		if err := validate(&row); err != nil {
			zap.L().Warn("Skipping invalid row",
				zap.String("table", table),
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// decodeOneRow expects exactly one valid row and maps an empty result to
// store.ErrRowNotFound.
func decodeOneRow[T any](table string, data []byte, validate func(*T) error) (*T, error) {
	rows, err := decodeRows(table, data, validate)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrRowNotFound
	}
	return &rows[0], nil
}
