package merge

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/lherron/curio/internal/audit"
	"github.com/lherron/curio/internal/db"
	"github.com/lherron/curio/internal/domain"
	"github.com/lherron/curio/internal/registry"
	"github.com/lherron/curio/internal/store"
	"github.com/lherron/curio/internal/testutil"
)

type testEnv struct {
	db     *db.DB
	store  *store.Store
	reg    *registry.Registry
	engine *Engine
}

func setupEngine(t *testing.T) *testEnv {
	t.Helper()
	database, _ := testutil.TempDB(t)
	reg := registry.Default()
	s := store.New(database, reg)
	return &testEnv{
		db:     database,
		store:  s,
		reg:    reg,
		engine: NewEngine(s, audit.NewWriter(database.DB)),
	}
}

func (env *testEnv) create(t *testing.T, typeName string, fields map[string]any) *domain.Record {
	t.Helper()
	typ, err := env.reg.Lookup(typeName)
	if err != nil {
		t.Fatalf("lookup %s: %v", typeName, err)
	}
	rec, err := env.store.Records.Create(env.db, typ, fields)
	if err != nil {
		t.Fatalf("create %s: %v", typeName, err)
	}
	return rec
}

func (env *testEnv) get(t *testing.T, typeName, recordUUID string) *domain.Record {
	t.Helper()
	typ, _ := env.reg.Lookup(typeName)
	rec, err := env.store.Records.Get(env.db, typ, recordUUID)
	if err != nil {
		t.Fatalf("get %s %s: %v", typeName, recordUUID, err)
	}
	return rec
}

func (env *testEnv) exists(t *testing.T, typeName, recordUUID string) bool {
	t.Helper()
	typ, _ := env.reg.Lookup(typeName)
	ok, err := env.store.Records.Exists(env.db, typ, recordUUID)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	return ok
}

func (env *testEnv) addKeyword(t *testing.T, citationUUID, name string) string {
	t.Helper()
	keywordUUID := uuid.NewString()
	if _, err := env.db.Exec("INSERT INTO keywords (uuid, name) VALUES (?, ?)", keywordUUID, name); err != nil {
		t.Fatalf("insert keyword: %v", err)
	}
	if _, err := env.db.Exec("INSERT INTO citation_keywords (citation_uuid, keyword_uuid) VALUES (?, ?)", citationUUID, keywordUUID); err != nil {
		t.Fatalf("link keyword: %v", err)
	}
	return keywordUUID
}

func (env *testEnv) linkKeyword(t *testing.T, citationUUID, keywordUUID string) {
	t.Helper()
	if _, err := env.db.Exec("INSERT INTO citation_keywords (citation_uuid, keyword_uuid) VALUES (?, ?)", citationUUID, keywordUUID); err != nil {
		t.Fatalf("link keyword: %v", err)
	}
}

func (env *testEnv) addScan(t *testing.T, citationUUID, path string) {
	t.Helper()
	if _, err := env.db.Exec("INSERT INTO scans (uuid, citation_uuid, path) VALUES (?, ?, ?)", uuid.NewString(), citationUUID, path); err != nil {
		t.Fatalf("insert scan: %v", err)
	}
}

func (env *testEnv) linkSpecimenCitation(t *testing.T, specimenUUID, citationUUID string) {
	t.Helper()
	if _, err := env.db.Exec("INSERT INTO specimen_citations (uuid, specimen_uuid, citation_uuid) VALUES (?, ?, ?)",
		uuid.NewString(), specimenUUID, citationUUID); err != nil {
		t.Fatalf("link specimen citation: %v", err)
	}
}

func (env *testEnv) countRows(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	if err := env.db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	return n
}

func TestMerge_Citation(t *testing.T) {
	env := setupEngine(t)

	source := env.create(t, "citation", map[string]any{
		"title":   "Notes on the genus Carabus",
		"authors": "Horn, G. H.",
		"year":    "1887",
		"doi":     "10.1000/carabus",
		"notes":   "scanned from microfilm",
	})
	target := env.create(t, "citation", map[string]any{
		"title": "Notes on the genus Carabus",
		"year":  "1912",
		"notes": "original print copy",
	})

	result, err := env.engine.Merge("citation", source.UUID, target.UUID, nil, "curator", Options{Archive: true})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	merged := env.get(t, "citation", target.UUID)

	// prefer_non_null keeps the target's title; authors fall through to the
	// source since the target has none.
	if got := merged.FieldString("title"); got != "Notes on the genus Carabus" {
		t.Errorf("title = %q", got)
	}
	if got := merged.FieldString("authors"); got != "Horn, G. H." {
		t.Errorf("authors = %q, want source value", got)
	}
	if got := merged.FieldString("year"); got != "1887" {
		t.Errorf("year = %q, want earliest", got)
	}
	if got := merged.FieldString("doi"); got != "10.1000/carabus" {
		t.Errorf("doi = %q, want source value", got)
	}
	wantNotes := "original print copy\n\nscanned from microfilm"
	if got := merged.FieldString("notes"); got != wantNotes {
		t.Errorf("notes = %q, want %q", got, wantNotes)
	}

	// Archive hook appended a snapshot of the discarded citation.
	var history []map[string]any
	if err := json.Unmarshal([]byte(merged.FieldString("history")), &history); err != nil {
		t.Fatalf("history is not valid JSON: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one history snapshot, got %d", len(history))
	}
	if history[0]["uuid"] != source.UUID {
		t.Errorf("history snapshot uuid = %v, want %s", history[0]["uuid"], source.UUID)
	}

	if env.exists(t, "citation", source.UUID) {
		t.Error("source citation still exists after merge")
	}
	if !result.Fields["year"].Changed {
		t.Error("expected year resolution to be marked changed")
	}

	// Exactly one audit row.
	entries, err := audit.NewWriter(env.db.DB).List("citation", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 merge log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.DiscardedUUID != source.UUID || entry.SurvivingUUID != target.UUID {
		t.Errorf("log entry records %s -> %s", entry.DiscardedUUID, entry.SurvivingUUID)
	}
	if entry.Actor == nil || *entry.Actor != "curator" {
		t.Errorf("log entry actor = %v, want curator", entry.Actor)
	}
	var resolved map[string]domain.Resolution
	if err := json.Unmarshal([]byte(entry.ResolvedFields), &resolved); err != nil {
		t.Fatalf("resolved_fields is not valid JSON: %v", err)
	}
	if _, ok := resolved["notes"]; !ok {
		t.Error("resolved_fields is missing the notes resolution")
	}
}

func TestMerge_RelationReconciliation(t *testing.T) {
	env := setupEngine(t)

	source := env.create(t, "citation", map[string]any{"title": "a"})
	target := env.create(t, "citation", map[string]any{"title": "b"})

	// one_to_one: both sides hold a scan, so the target keeps its own and the
	// source's is dropped with the source row.
	env.addScan(t, source.UUID, "/scans/source.pdf")
	env.addScan(t, target.UUID, "/scans/target.pdf")

	// many_to_many: one shared keyword, one unique to the source.
	shared := env.addKeyword(t, source.UUID, "beetles")
	env.linkKeyword(t, target.UUID, shared)
	env.addKeyword(t, source.UUID, "nearctic")

	// unique_link: one specimen cites both sides, another cites only the
	// source.
	spec1 := env.create(t, "specimen", map[string]any{"catalog_number": "C-1"})
	spec2 := env.create(t, "specimen", map[string]any{"catalog_number": "C-2"})
	env.linkSpecimenCitation(t, spec1.UUID, source.UUID)
	env.linkSpecimenCitation(t, spec1.UUID, target.UUID)
	env.linkSpecimenCitation(t, spec2.UUID, source.UUID)

	result, err := env.engine.Merge("citation", source.UUID, target.UUID, nil, "", Options{})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	scans := result.Relations["scans"]
	if scans.Skipped != 1 || scans.Updated != 0 {
		t.Errorf("scans outcome = %+v, want skipped=1", scans)
	}
	keywords := result.Relations["keywords"]
	if keywords.Added != 1 || keywords.Skipped != 1 {
		t.Errorf("keywords outcome = %+v, want added=1 skipped=1", keywords)
	}
	links := result.Relations["specimen_links"]
	if links.Updated != 1 || links.Deleted != 1 {
		t.Errorf("specimen_links outcome = %+v, want updated=1 deleted=1", links)
	}

	// The target's scan survived; the source's rode the cascade.
	if n := env.countRows(t, "SELECT COUNT(*) FROM scans WHERE citation_uuid = ?", target.UUID); n != 1 {
		t.Errorf("target holds %d scans, want 1", n)
	}
	var path string
	if err := env.db.QueryRow("SELECT path FROM scans WHERE citation_uuid = ?", target.UUID).Scan(&path); err != nil {
		t.Fatalf("scan lookup failed: %v", err)
	}
	if path != "/scans/target.pdf" {
		t.Errorf("surviving scan path = %q", path)
	}

	if n := env.countRows(t, "SELECT COUNT(*) FROM citation_keywords WHERE citation_uuid = ?", target.UUID); n != 2 {
		t.Errorf("target holds %d keyword links, want 2", n)
	}
	if n := env.countRows(t, "SELECT COUNT(*) FROM specimen_citations WHERE citation_uuid = ?", target.UUID); n != 2 {
		t.Errorf("target holds %d specimen links, want 2", n)
	}
	if n := env.countRows(t, "SELECT COUNT(*) FROM specimen_citations WHERE citation_uuid = ?", source.UUID); n != 0 {
		t.Errorf("source still holds %d specimen links", n)
	}
}

func TestMerge_OwnedRelation(t *testing.T) {
	env := setupEngine(t)

	source := env.create(t, "specimen", map[string]any{"catalog_number": "C-1"})
	target := env.create(t, "specimen", map[string]any{"catalog_number": "C-2"})

	for _, note := range []string{"first sighting", "second sighting"} {
		if _, err := env.db.Exec("INSERT INTO observations (uuid, specimen_uuid, note) VALUES (?, ?, ?)",
			uuid.NewString(), source.UUID, note); err != nil {
			t.Fatalf("insert observation: %v", err)
		}
	}

	result, err := env.engine.Merge("specimen", source.UUID, target.UUID, nil, "", Options{})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if got := result.Relations["observations"].Updated; got != 2 {
		t.Errorf("observations updated = %d, want 2", got)
	}
	if n := env.countRows(t, "SELECT COUNT(*) FROM observations WHERE specimen_uuid = ?", target.UUID); n != 2 {
		t.Errorf("target owns %d observations, want 2", n)
	}
}

func TestMerge_DryRun(t *testing.T) {
	env := setupEngine(t)

	source := env.create(t, "citation", map[string]any{"title": "a", "notes": "source note"})
	target := env.create(t, "citation", map[string]any{"title": "b", "notes": "target note"})
	env.addKeyword(t, source.UUID, "beetles")

	result, err := env.engine.Merge("citation", source.UUID, target.UUID, nil, "", Options{Archive: true, DryRun: true})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if !result.DryRun {
		t.Error("result not marked as dry run")
	}
	if got := result.Target.FieldString("notes"); got != "target note\n\nsource note" {
		t.Errorf("computed notes = %q", got)
	}
	if got := result.Relations["keywords"].Added; got != 1 {
		t.Errorf("computed keywords added = %d, want 1", got)
	}

	// Nothing was persisted.
	if !env.exists(t, "citation", source.UUID) {
		t.Error("dry run deleted the source")
	}
	if got := env.get(t, "citation", target.UUID).FieldString("notes"); got != "target note" {
		t.Errorf("dry run wrote target notes: %q", got)
	}
	if n := env.countRows(t, "SELECT COUNT(*) FROM citation_keywords WHERE citation_uuid = ?", target.UUID); n != 0 {
		t.Errorf("dry run moved %d keyword links", n)
	}
	if n := env.countRows(t, "SELECT COUNT(*) FROM merge_log"); n != 0 {
		t.Errorf("dry run wrote %d merge log rows", n)
	}
}

func TestMerge_Preconditions(t *testing.T) {
	env := setupEngine(t)
	rec := env.create(t, "citation", map[string]any{"title": "a"})
	missing := uuid.NewString()

	var validation *domain.ValidationError

	_, err := env.engine.Merge("citation", rec.UUID, rec.UUID, nil, "", Options{})
	if !errors.As(err, &validation) {
		t.Errorf("self merge: expected validation error, got %v", err)
	}

	_, err = env.engine.Merge("citation", missing, rec.UUID, nil, "", Options{})
	if err == nil {
		t.Error("expected error for missing source")
	}

	_, err = env.engine.Merge("nonesuch", rec.UUID, missing, nil, "", Options{})
	if err == nil {
		t.Error("expected error for unknown record type")
	}

	_, err = env.engine.Merge("citation", rec.UUID, rec.UUID, &domain.StrategyConfig{
		Fields: map[string]domain.Policy{"nonfield": {Strategy: domain.StrategyLastWrite}},
	}, "", Options{})
	if !errors.As(err, &validation) {
		t.Errorf("unknown override field: expected validation error, got %v", err)
	}
}

func TestMerge_TaxonNamePrompts(t *testing.T) {
	env := setupEngine(t)

	source := env.create(t, "taxon", map[string]any{"name": "Carabus serratus", "rank": "species"})
	target := env.create(t, "taxon", map[string]any{"name": "Carabus serratus Say", "rank": "species"})

	_, err := env.engine.Merge("taxon", source.UUID, target.UUID, nil, "", Options{})

	var needsInput *domain.NeedsInputError
	if !errors.As(err, &needsInput) {
		t.Fatalf("expected NeedsInputError, got %v", err)
	}

	// The failed merge left both taxa in place.
	if !env.exists(t, "taxon", source.UUID) || !env.exists(t, "taxon", target.UUID) {
		t.Error("failed merge mutated the catalog")
	}
}

func TestMerge_ParentCycleRejected(t *testing.T) {
	env := setupEngine(t)

	root := env.create(t, "taxon", map[string]any{"name": "Carabidae", "rank": "family"})
	child := env.create(t, "taxon", map[string]any{"name": "Carabus", "rank": "genus", "parent_uuid": root.UUID})

	// Merging the child into its parent resolves parent_uuid to the target
	// itself, which must be rejected.
	cfg := &domain.StrategyConfig{Fields: map[string]domain.Policy{
		"name": {Strategy: domain.StrategyFieldSelection, SelectedFrom: domain.RoleTarget},
	}}
	_, err := env.engine.Merge("taxon", child.UUID, root.UUID, cfg, "", Options{})

	var cycle *domain.CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if env.get(t, "taxon", child.UUID).FieldString("parent_uuid") != root.UUID {
		t.Error("failed merge mutated the child taxon")
	}
}

func TestMerge_DeepParentCycleRejected(t *testing.T) {
	env := setupEngine(t)

	a := env.create(t, "taxon", map[string]any{"name": "Adephaga", "rank": "suborder"})
	b := env.create(t, "taxon", map[string]any{"name": "Carabidae", "rank": "family", "parent_uuid": a.UUID})
	c := env.create(t, "taxon", map[string]any{"name": "Carabinae", "rank": "subfamily", "parent_uuid": b.UUID})

	// Force the resolved parent of the surviving record to a descendant of
	// the discarded one: a's parent chain would loop through c -> b -> a.
	cfg := &domain.StrategyConfig{Fields: map[string]domain.Policy{
		"name":        {Strategy: domain.StrategyFieldSelection, SelectedFrom: domain.RoleTarget},
		"parent_uuid": {Strategy: domain.StrategyFieldSelection, Value: &c.UUID},
	}}
	_, err := env.engine.Merge("taxon", b.UUID, a.UUID, cfg, "", Options{})

	var cycle *domain.CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError, got %v", err)
	}
}

func TestMerge_ParentIntoChildNeverSelfReferences(t *testing.T) {
	env := setupEngine(t)

	parent := env.create(t, "taxon", map[string]any{"name": "Carabidae", "rank": "family"})
	survivor := env.create(t, "taxon", map[string]any{"name": "Carabus", "rank": "genus", "parent_uuid": parent.UUID})
	sibling := env.create(t, "taxon", map[string]any{"name": "Calosoma", "rank": "genus", "parent_uuid": parent.UUID})

	// An empty selection leaves parent_uuid unresolved, so the survivor's own
	// parent pointer at the discarded record must be handled by
	// reconciliation, not rewritten to the survivor itself.
	cfg := &domain.StrategyConfig{Fields: map[string]domain.Policy{
		"name":        {Strategy: domain.StrategyFieldSelection, SelectedFrom: domain.RoleTarget},
		"parent_uuid": {Strategy: domain.StrategyFieldSelection},
	}}
	result, err := env.engine.Merge("taxon", parent.UUID, survivor.UUID, cfg, "", Options{})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	// The sibling moved under the survivor; the survivor's own row did not.
	if got := result.Relations["children"].Updated; got != 1 {
		t.Errorf("children relation updated %d rows, want 1", got)
	}
	if env.get(t, "taxon", sibling.UUID).FieldString("parent_uuid") != survivor.UUID {
		t.Error("sibling was not reassigned to the surviving taxon")
	}

	// Deleting the discarded parent cleared the survivor's pointer.
	merged := env.get(t, "taxon", survivor.UUID)
	if got := merged.FieldString("parent_uuid"); got != "" {
		t.Errorf("surviving taxon has parent_uuid %q, want none", got)
	}
	if env.exists(t, "taxon", parent.UUID) {
		t.Error("discarded parent still exists")
	}
}

func TestMerge_ArchiveHookFailureRollsBack(t *testing.T) {
	env := setupEngine(t)

	source := env.create(t, "citation", map[string]any{"title": "a", "notes": "source note"})
	target := env.create(t, "citation", map[string]any{"title": "b"})
	env.addKeyword(t, source.UUID, "beetles")

	// Corrupt history makes the archive hook fail after relations were
	// already repaired inside the transaction.
	if _, err := env.db.Exec("UPDATE citations SET history = 'not json' WHERE uuid = ?", target.UUID); err != nil {
		t.Fatalf("corrupt history: %v", err)
	}

	_, err := env.engine.Merge("citation", source.UUID, target.UUID, nil, "", Options{Archive: true})
	if err == nil {
		t.Fatal("expected archive hook failure")
	}
	if !strings.Contains(err.Error(), "archive hook") {
		t.Errorf("unexpected error: %v", err)
	}

	// Everything rolled back.
	if !env.exists(t, "citation", source.UUID) {
		t.Error("rollback did not restore the source")
	}
	if n := env.countRows(t, "SELECT COUNT(*) FROM citation_keywords WHERE citation_uuid = ?", source.UUID); n != 1 {
		t.Errorf("rollback left %d keyword links on the source, want 1", n)
	}
	if n := env.countRows(t, "SELECT COUNT(*) FROM merge_log"); n != 0 {
		t.Errorf("rollback left %d merge log rows", n)
	}
}

func TestMerge_NoArchiveSkipsHook(t *testing.T) {
	env := setupEngine(t)

	source := env.create(t, "citation", map[string]any{"title": "a"})
	target := env.create(t, "citation", map[string]any{"title": "b"})

	_, err := env.engine.Merge("citation", source.UUID, target.UUID, nil, "", Options{Archive: false})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if got := env.get(t, "citation", target.UUID).FieldString("history"); got != "[]" {
		t.Errorf("history = %q, want untouched empty list", got)
	}
}

func TestMerge_SkippedRelation(t *testing.T) {
	env := setupEngine(t)

	reg := env.reg
	typ, _ := reg.Lookup("citation")
	for i := range typ.Relations {
		if typ.Relations[i].Name == "keywords" {
			typ.Relations[i].Action = "skip"
		}
	}

	source := env.create(t, "citation", map[string]any{"title": "a"})
	target := env.create(t, "citation", map[string]any{"title": "b"})
	env.addKeyword(t, source.UUID, "beetles")

	result, err := env.engine.Merge("citation", source.UUID, target.UUID, nil, "", Options{})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if got := result.Relations["keywords"].Action; got != "skip" {
		t.Errorf("keywords action = %q, want skip", got)
	}
	// The skipped link rode the source's cascade instead of moving.
	if n := env.countRows(t, "SELECT COUNT(*) FROM citation_keywords WHERE citation_uuid = ?", target.UUID); n != 0 {
		t.Errorf("skip still moved %d keyword links", n)
	}
}
