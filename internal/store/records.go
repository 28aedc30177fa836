package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lherron/curio/internal/domain"
	"github.com/lherron/curio/internal/registry"
)

// RecordStore handles generic record persistence operations.
type RecordStore struct {
	store *Store
}

// Get loads one record of the given type by UUID.
func (rs *RecordStore) Get(q Querier, t *registry.Type, recordUUID string) (*domain.Record, error) {
	cols := append([]string{"uuid", "id", "created_at", "updated_at"}, t.Fields...)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE uuid = ?", strings.Join(cols, ", "), t.Table)

	row := q.QueryRow(query, recordUUID)

	rec := &domain.Record{Type: t.Name, Fields: make(map[string]any, len(t.Fields))}
	fieldVals := make([]sql.NullString, len(t.Fields))
	dest := []any{&rec.UUID, &rec.ID, &rec.CreatedAt, &rec.UpdatedAt}
	for i := range fieldVals {
		dest = append(dest, &fieldVals[i])
	}

	if err := row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.Validationf("%s not found: %s", t.Name, recordUUID)
		}
		return nil, fmt.Errorf("failed to get %s: %w", t.Name, err)
	}

	for i, field := range t.Fields {
		if fieldVals[i].Valid {
			rec.Fields[field] = fieldVals[i].String
		} else {
			rec.Fields[field] = nil
		}
	}

	return rec, nil
}

// Exists reports whether a record of the given type exists.
func (rs *RecordStore) Exists(q Querier, t *registry.Type, recordUUID string) (bool, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE uuid = ?", t.Table)
	if err := q.QueryRow(query, recordUUID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check %s existence: %w", t.Name, err)
	}
	return n > 0, nil
}

// Resolve turns a selector (UUID or friendly ID like CIT-00042) into a UUID.
func (rs *RecordStore) Resolve(q Querier, t *registry.Type, selector string) (string, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return "", domain.Validationf("empty %s selector", t.Name)
	}

	col := "id"
	if domain.ValidateUUID(selector) == nil {
		col = "uuid"
	}

	var recordUUID string
	query := fmt.Sprintf("SELECT uuid FROM %s WHERE %s = ?", t.Table, col)
	err := q.QueryRow(query, selector).Scan(&recordUUID)
	if err == sql.ErrNoRows {
		return "", domain.Validationf("%s not found: %s", t.Name, selector)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s %q: %w", t.Name, selector, err)
	}
	return recordUUID, nil
}

// Create inserts a new record with the given field values and returns it with
// its generated identity.
func (rs *RecordStore) Create(q Querier, t *registry.Type, fields map[string]any) (*domain.Record, error) {
	for field := range fields {
		if !t.HasField(field) {
			return nil, domain.Validationf("record type %q has no field %q", t.Name, field)
		}
	}

	newUUID := uuid.NewString()

	cols := []string{"uuid"}
	placeholders := []string{"?"}
	args := []any{newUUID}
	for _, field := range t.Fields {
		if v, ok := fields[field]; ok {
			cols = append(cols, field)
			placeholders = append(placeholders, "?")
			args = append(args, v)
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := q.Exec(query, args...); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", t.Name, err)
	}

	// Re-read for the trigger-assigned friendly ID and timestamps.
	return rs.Get(q, t, newUUID)
}

// UpdateFields updates the given mergeable fields on a record.
func (rs *RecordStore) UpdateFields(q Querier, t *registry.Type, recordUUID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	var setClauses []string
	var args []any
	for _, field := range t.Fields {
		if v, ok := fields[field]; ok {
			setClauses = append(setClauses, fmt.Sprintf("%s = ?", field))
			args = append(args, v)
		}
	}
	if len(setClauses) != len(fields) {
		for field := range fields {
			if !t.HasField(field) {
				return domain.Validationf("record type %q has no field %q", t.Name, field)
			}
		}
	}
	args = append(args, recordUUID)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE uuid = ?", t.Table, strings.Join(setClauses, ", "))
	res, err := q.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", t.Name, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", t.Name, err)
	}
	if rows == 0 {
		return domain.Validationf("%s not found: %s", t.Name, recordUUID)
	}
	return nil
}

// Delete hard-deletes a record. FK actions on relation tables (CASCADE,
// SET NULL) fire here, which is why reconciliation must run first.
func (rs *RecordStore) Delete(q Querier, t *registry.Type, recordUUID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE uuid = ?", t.Table)
	if _, err := q.Exec(query, recordUUID); err != nil {
		return fmt.Errorf("failed to delete %s: %w", t.Name, err)
	}
	return nil
}

// List returns all records of a type as lightweight candidates, ordered by
// UUID for determinism.
func (rs *RecordStore) List(q Querier, t *registry.Type) ([]domain.Candidate, error) {
	cols := append([]string{"uuid", "id"}, t.Fields...)
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY uuid", strings.Join(cols, ", "), t.Table)

	rows, err := q.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", t.Name, err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		cand := domain.Candidate{Fields: make(map[string]any, len(t.Fields))}
		fieldVals := make([]sql.NullString, len(t.Fields))
		dest := []any{&cand.UUID, &cand.ID}
		for i := range fieldVals {
			dest = append(dest, &fieldVals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", t.Name, err)
		}
		for i, field := range t.Fields {
			if fieldVals[i].Valid {
				cand.Fields[field] = fieldVals[i].String
			} else {
				cand.Fields[field] = nil
			}
		}
		out = append(out, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s records: %w", t.Name, err)
	}
	return out, nil
}

// ReachesByParent walks the self-referential parent chain upward from start
// and reports whether it reaches the stop record. Used to reject parent
// choices that would create a cycle. A malformed pre-existing cycle in the
// chain terminates the walk rather than looping.
func (rs *RecordStore) ReachesByParent(q Querier, t *registry.Type, start, stop string) (bool, error) {
	if t.ParentField == "" {
		return false, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE uuid = ?", t.ParentField, t.Table)
	visited := make(map[string]bool)
	current := start

	for current != "" {
		if current == stop {
			return true, nil
		}
		if visited[current] {
			return false, nil
		}
		visited[current] = true

		var parent sql.NullString
		err := q.QueryRow(query, current).Scan(&parent)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to walk %s parents: %w", t.Name, err)
		}
		if !parent.Valid {
			return false, nil
		}
		current = parent.String
	}

	return false, nil
}
