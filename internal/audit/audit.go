// Package audit writes and reads the append-only merge log. Entries are
// created inside the merge transaction and never updated or deleted.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lherron/curio/internal/domain"
)

// Writer handles writing entries to the merge log
type Writer struct {
	db *sql.DB
}

// NewWriter creates a new merge log writer
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// LogMerge writes one entry for an executed merge. The resolved fields and
// relation outcomes are serialized as JSON payloads.
func (w *Writer) LogMerge(tx *sql.Tx, entry *domain.MergeLogEntry) error {
	query := `
		INSERT INTO merge_log (record_type, discarded_uuid, surviving_uuid, resolved_fields, relation_actions, actor)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	executor := w.getExecutor(tx)
	_, err := executor.Exec(query, entry.RecordType, entry.DiscardedUUID, entry.SurvivingUUID,
		entry.ResolvedFields, entry.RelationActions, entry.Actor)
	if err != nil {
		return fmt.Errorf("failed to write merge log entry: %w", err)
	}

	return nil
}

// EncodeMerge builds a log entry from a merge result.
func EncodeMerge(recordType, discardedUUID, survivingUUID string, result *domain.MergeResult, actor string) (*domain.MergeLogEntry, error) {
	fieldsJSON, err := json.Marshal(result.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resolved fields: %w", err)
	}
	relationsJSON, err := json.Marshal(result.Relations)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal relation outcomes: %w", err)
	}

	entry := &domain.MergeLogEntry{
		RecordType:      recordType,
		DiscardedUUID:   discardedUUID,
		SurvivingUUID:   survivingUUID,
		ResolvedFields:  string(fieldsJSON),
		RelationActions: string(relationsJSON),
	}
	if actor != "" {
		entry.Actor = &actor
	}
	return entry, nil
}

// List returns merge log entries, newest first, optionally filtered by record
// type. limit <= 0 means no limit.
func (w *Writer) List(recordType string, limit int) ([]domain.MergeLogEntry, error) {
	query := `
		SELECT id, record_type, discarded_uuid, surviving_uuid, resolved_fields, relation_actions, actor, executed_at
		FROM merge_log
	`
	var args []any
	if recordType != "" {
		query += " WHERE record_type = ?"
		args = append(args, recordType)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := w.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query merge log: %w", err)
	}
	defer rows.Close()

	var entries []domain.MergeLogEntry
	for rows.Next() {
		var e domain.MergeLogEntry
		var executedAt string
		if err := rows.Scan(&e.ID, &e.RecordType, &e.DiscardedUUID, &e.SurvivingUUID,
			&e.ResolvedFields, &e.RelationActions, &e.Actor, &executedAt); err != nil {
			return nil, fmt.Errorf("failed to scan merge log entry: %w", err)
		}
		if t, err := domain.ValidateTimestamp(executedAt); err == nil {
			e.ExecutedAt = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating merge log: %w", err)
	}

	return entries, nil
}

// Count returns the number of merge log entries.
func (w *Writer) Count() (int, error) {
	var n int
	if err := w.db.QueryRow("SELECT COUNT(*) FROM merge_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count merge log entries: %w", err)
	}
	return n, nil
}

// getExecutor returns the appropriate executor (tx or db)
func (w *Writer) getExecutor(tx *sql.Tx) interface {
	Exec(query string, args ...any) (sql.Result, error)
} {
	if tx != nil {
		return tx
	}
	return w.db
}
