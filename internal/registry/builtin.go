package registry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lherron/curio/internal/domain"
)

// Default returns a registry populated with the built-in catalog types.
func Default() *Registry {
	r := New()

	// Handler must exist before any type referencing it is merged.
	if err := r.RegisterHandler("earliest_year", earliestYear); err != nil {
		panic(err)
	}

	for _, t := range builtinTypes() {
		if err := r.Register(t); err != nil {
			panic(fmt.Sprintf("invalid builtin record type: %v", err))
		}
	}
	return r
}

func builtinTypes() []*Type {
	preferTarget := []domain.Role{domain.RoleTarget, domain.RoleSource}

	return []*Type{
		{
			Name:     "citation",
			Table:    "citations",
			IDPrefix: "CIT-",
			Fields:   []string{"title", "authors", "year", "doi", "notes", "history"},
			Policies: map[string]domain.Policy{
				"title":   {Strategy: domain.StrategyPreferNonNull, Priority: preferTarget},
				"authors": {Strategy: domain.StrategyPreferNonNull, Priority: preferTarget},
				"year":    {Strategy: domain.StrategyCustom, Handler: "earliest_year"},
				"doi":     {Strategy: domain.StrategyWhitelist, Allow: []string{"doi"}},
				"notes":   {Strategy: domain.StrategyConcat, Delimiter: "\n\n"},
				// history is maintained by the archive hook, never merged.
			},
			Relations: []Relation{
				{Name: "scans", Kind: domain.RelationOneToOne, Table: "scans", FK: "citation_uuid"},
				{Name: "specimen_links", Kind: domain.RelationUniqueLink, Table: "specimen_citations", FK: "citation_uuid", OtherFK: "specimen_uuid"},
				{Name: "keywords", Kind: domain.RelationManyToMany, Table: "citation_keywords", FK: "citation_uuid", OtherFK: "keyword_uuid"},
			},
			ArchiveHook: appendHistorySnapshot,
		},
		{
			Name:     "taxon",
			Table:    "taxa",
			IDPrefix: "TAX-",
			Fields:   []string{"name", "rank", "parent_uuid"},
			Policies: map[string]domain.Policy{
				// Two taxa under the same name is a determination question;
				// a human has to pick.
				"name":        {Strategy: domain.StrategyUserPrompt},
				"rank":        {Strategy: domain.StrategyPreferNonNull, Priority: preferTarget},
				"parent_uuid": {Strategy: domain.StrategyPreferNonNull, Priority: preferTarget},
			},
			Relations: []Relation{
				{Name: "children", Kind: domain.RelationOwned, Table: "taxa", FK: "parent_uuid"},
				{Name: "specimens", Kind: domain.RelationOwned, Table: "specimens", FK: "taxon_uuid"},
			},
			ParentField: "parent_uuid",
		},
		{
			Name:     "location",
			Table:    "locations",
			IDPrefix: "LOC-",
			Fields:   []string{"name", "code", "parent_uuid"},
			Policies: map[string]domain.Policy{
				"name":        {Strategy: domain.StrategyPreferNonNull, Priority: preferTarget},
				"code":        {Strategy: domain.StrategyLastWrite},
				"parent_uuid": {Strategy: domain.StrategyPreferNonNull, Priority: preferTarget},
			},
			Relations: []Relation{
				{Name: "children", Kind: domain.RelationOwned, Table: "locations", FK: "parent_uuid"},
				{Name: "specimens", Kind: domain.RelationOwned, Table: "specimens", FK: "location_uuid"},
			},
			ParentField: "parent_uuid",
		},
		{
			Name:     "specimen",
			Table:    "specimens",
			IDPrefix: "SPE-",
			Fields:   []string{"catalog_number", "field_number", "notes", "taxon_uuid", "location_uuid"},
			Policies: map[string]domain.Policy{
				"catalog_number": {Strategy: domain.StrategyPreferNonNull, Priority: preferTarget},
				"field_number":   {Strategy: domain.StrategyPreferNonNull, Priority: []domain.Role{domain.RoleSource, domain.RoleTarget}},
				"notes":          {Strategy: domain.StrategyConcat, Delimiter: "; "},
				"taxon_uuid":     {Strategy: domain.StrategyPreferNonNull, Priority: preferTarget},
				"location_uuid":  {Strategy: domain.StrategyPreferNonNull, Priority: preferTarget},
			},
			Relations: []Relation{
				{Name: "observations", Kind: domain.RelationOwned, Table: "observations", FK: "specimen_uuid"},
				{Name: "citation_links", Kind: domain.RelationUniqueLink, Table: "specimen_citations", FK: "specimen_uuid", OtherFK: "citation_uuid"},
			},
		},
	}
}

// appendHistorySnapshot serializes the discarded citation and appends it to
// the surviving citation's history list.
func appendHistorySnapshot(source, target *domain.Record) (map[string]any, error) {
	var history []map[string]any
	if raw := target.FieldString("history"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			return nil, fmt.Errorf("failed to parse history on %s: %w", target.UUID, err)
		}
	}

	snapshot := map[string]any{
		"uuid":      source.UUID,
		"id":        source.ID,
		"fields":    source.Fields,
		"merged_at": time.Now().UTC().Format(time.RFC3339),
	}
	history = append(history, snapshot)

	data, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize history: %w", err)
	}
	return map[string]any{"history": string(data)}, nil
}

// earliestYear keeps the numerically earliest non-empty year. Duplicate
// citations frequently disagree on the year because reprints get entered with
// the reprint date.
func earliestYear(source, target *domain.Record) (any, string, error) {
	src := strings.TrimSpace(source.FieldString("year"))
	dst := strings.TrimSpace(target.FieldString("year"))

	switch {
	case src == "" && dst == "":
		return "", "no year on either record", nil
	case src == "":
		return dst, "kept target year", nil
	case dst == "":
		return src, "took source year", nil
	}

	srcN, srcErr := strconv.Atoi(src)
	dstN, dstErr := strconv.Atoi(dst)
	if srcErr != nil || dstErr != nil {
		// Non-numeric years: the target wins.
		return dst, "years not comparable, kept target year", nil
	}
	if srcN < dstN {
		return src, fmt.Sprintf("took earlier source year %d over %d", srcN, dstN), nil
	}
	return dst, fmt.Sprintf("kept earlier target year %d over %d", dstN, srcN), nil
}
