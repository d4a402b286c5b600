package store

import (
	"encoding/json"
	"fmt"

	"github.com/persistorai/doctrail/internal/models"
)

// documentColumns lists the columns selected for document queries.
const documentColumns = `type, id, revision, attributes, created_at, updated_at`

// historyColumns lists the columns selected for history queries.
const historyColumns = `id, scope, type, chain, action, version,
	original, modified, modifier, created_at, updated_at`

// scanDocument scans a single row into a models.Document.
func scanDocument(scan func(dest ...any) error) (*models.Document, error) {
	var d models.Document
	var attrs []byte

	if err := scan(&d.Type, &d.ID, &d.Revision, &attrs, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}

	d.Attributes = map[string]any{}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &d.Attributes); err != nil {
			return nil, fmt.Errorf("decoding attributes of %s/%s: %w", d.Type, d.ID, err)
		}
	}

	return &d, nil
}

// scanRecord scans a single row into a models.HistoryRecord.
func scanRecord(scan func(dest ...any) error) (*models.HistoryRecord, error) {
	var r models.HistoryRecord
	var chain, original, modified []byte
	var action string
	var modifier *string

	if err := scan(
		&r.ID, &r.Scope, &r.Type, &chain, &action, &r.Version,
		&original, &modified, &modifier, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	r.Action = models.Action(action)
	if modifier != nil {
		r.Modifier = *modifier
	}

	if err := json.Unmarshal(chain, &r.Chain); err != nil {
		return nil, fmt.Errorf("decoding chain of %s: %w", r.ID, err)
	}

	r.Original = map[string]any{}
	if err := unmarshalOptional(original, &r.Original); err != nil {
		return nil, fmt.Errorf("decoding original of %s: %w", r.ID, err)
	}

	r.Modified = map[string]any{}
	if err := unmarshalOptional(modified, &r.Modified); err != nil {
		return nil, fmt.Errorf("decoding modified of %s: %w", r.ID, err)
	}

	return &r, nil
}

func unmarshalOptional(raw []byte, dst *map[string]any) error {
	if len(raw) == 0 {
		return nil
	}

	return json.Unmarshal(raw, dst)
}
