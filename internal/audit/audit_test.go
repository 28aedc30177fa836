package audit

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/lherron/curio/internal/domain"
	"github.com/lherron/curio/internal/testutil"
)

func sampleResult() *domain.MergeResult {
	return &domain.MergeResult{
		Fields: map[string]domain.Resolution{
			"notes": domain.Changed("a\nb", "appended source value to target value"),
			"title": domain.Unchanged("no non-empty value on either side"),
		},
		Relations: map[string]domain.RelationOutcome{
			"keywords": {Added: 1, Skipped: 2},
		},
	}
}

func TestEncodeMerge(t *testing.T) {
	discarded := uuid.NewString()
	surviving := uuid.NewString()

	entry, err := EncodeMerge("citation", discarded, surviving, sampleResult(), "curator")
	if err != nil {
		t.Fatalf("EncodeMerge failed: %v", err)
	}

	if entry.RecordType != "citation" {
		t.Errorf("record type = %q", entry.RecordType)
	}
	if entry.DiscardedUUID != discarded || entry.SurvivingUUID != surviving {
		t.Error("entry does not carry the merge participants")
	}
	if entry.Actor == nil || *entry.Actor != "curator" {
		t.Errorf("actor = %v", entry.Actor)
	}

	var fields map[string]domain.Resolution
	if err := json.Unmarshal([]byte(entry.ResolvedFields), &fields); err != nil {
		t.Fatalf("resolved_fields is not valid JSON: %v", err)
	}
	if !fields["notes"].Changed || fields["title"].Changed {
		t.Error("resolution changed flags did not round-trip")
	}

	var relations map[string]domain.RelationOutcome
	if err := json.Unmarshal([]byte(entry.RelationActions), &relations); err != nil {
		t.Fatalf("relation_actions is not valid JSON: %v", err)
	}
	if relations["keywords"].Added != 1 {
		t.Errorf("keywords added = %d", relations["keywords"].Added)
	}
}

func TestEncodeMerge_AnonymousActor(t *testing.T) {
	entry, err := EncodeMerge("citation", uuid.NewString(), uuid.NewString(), sampleResult(), "")
	if err != nil {
		t.Fatalf("EncodeMerge failed: %v", err)
	}
	if entry.Actor != nil {
		t.Errorf("expected nil actor, got %v", entry.Actor)
	}
}

func TestLogMergeAndList(t *testing.T) {
	database, _ := testutil.TempDB(t)
	w := NewWriter(database.DB)

	write := func(recordType, actor string) *domain.MergeLogEntry {
		entry, err := EncodeMerge(recordType, uuid.NewString(), uuid.NewString(), sampleResult(), actor)
		if err != nil {
			t.Fatalf("EncodeMerge failed: %v", err)
		}
		if err := w.LogMerge(nil, entry); err != nil {
			t.Fatalf("LogMerge failed: %v", err)
		}
		return entry
	}

	first := write("citation", "curator")
	write("taxon", "")
	third := write("citation", "intern")

	// Newest first, no filter.
	entries, err := w.List("", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].DiscardedUUID != third.DiscardedUUID {
		t.Error("entries not ordered newest first")
	}
	if entries[0].ExecutedAt.IsZero() {
		t.Error("executed_at not populated")
	}

	// Filtered by type.
	entries, err = w.List("citation", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 citation entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.RecordType != "citation" {
			t.Errorf("filter returned type %q", e.RecordType)
		}
	}
	if entries[1].DiscardedUUID != first.DiscardedUUID {
		t.Error("oldest citation entry missing or out of order")
	}

	// Limited.
	entries, err = w.List("", 1)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry with limit, got %d", len(entries))
	}

	n, err := w.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
}

func TestLogMerge_InsideTransaction(t *testing.T) {
	database, _ := testutil.TempDB(t)
	w := NewWriter(database.DB)

	entry, err := EncodeMerge("citation", uuid.NewString(), uuid.NewString(), sampleResult(), "")
	if err != nil {
		t.Fatalf("EncodeMerge failed: %v", err)
	}

	tx, err := database.BeginTx()
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	if err := w.LogMerge(tx, entry); err != nil {
		tx.Rollback()
		t.Fatalf("LogMerge failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	// The rolled-back entry never landed.
	n, err := w.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Count = %d after rollback, want 0", n)
	}
}
