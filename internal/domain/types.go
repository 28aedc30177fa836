// Package domain defines the shared types of the catalog: generic records,
// merge policies, resolutions, merge results, and the typed errors the engine
// surfaces to callers.
package domain

import (
	"time"
)

// Strategy identifies a field merge policy.
type Strategy string

const (
	StrategyLastWrite      Strategy = "last_write"
	StrategyPreferNonNull  Strategy = "prefer_non_null"
	StrategyConcat         Strategy = "concat"
	StrategyWhitelist      Strategy = "whitelist"
	StrategyFieldSelection Strategy = "field_selection"
	StrategyCustom         Strategy = "custom"
	StrategyUserPrompt     Strategy = "user_prompt"
)

// Role names one side of a merge.
type Role string

const (
	RoleSource Role = "source"
	RoleTarget Role = "target"
)

// RelationKind classifies how other records point at a mergeable record.
type RelationKind string

const (
	RelationOwned      RelationKind = "owned"       // one-to-many FK held by related rows
	RelationOneToOne   RelationKind = "one_to_one"  // single FK holder, at most one
	RelationManyToMany RelationKind = "many_to_many" // symmetric association pairs
	RelationUniqueLink RelationKind = "unique_link" // join rows unique per key pair
)

// Record is a type-agnostic projection of one catalog row. Fields holds the
// mergeable columns only; identity and timestamps are carried separately.
type Record struct {
	Type      string
	UUID      string
	ID        string
	Fields    map[string]any
	CreatedAt string
	UpdatedAt string
}

// FieldString returns the named field as a string ("" when absent or NULL).
func (r *Record) FieldString(name string) string {
	v, ok := r.Fields[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// Policy declares how one field resolves during a merge. Strategy selects the
// mode; the remaining options apply to specific strategies.
type Policy struct {
	Strategy     Strategy `yaml:"strategy" json:"strategy"`
	Priority     []Role   `yaml:"priority,omitempty" json:"priority,omitempty"`           // prefer_non_null order
	Delimiter    string   `yaml:"delimiter,omitempty" json:"delimiter,omitempty"`         // concat joiner
	Allow        []string `yaml:"allow,omitempty" json:"allow,omitempty"`                 // whitelist field names
	Value        *string  `yaml:"value,omitempty" json:"value,omitempty"`                 // field_selection literal
	SelectedFrom Role     `yaml:"selected_from,omitempty" json:"selected_from,omitempty"` // field_selection role
	Handler      string   `yaml:"handler,omitempty" json:"handler,omitempty"`             // custom handler name
}

// StrategyConfig carries per-call policy overrides, keyed by field name.
type StrategyConfig struct {
	Fields map[string]Policy `yaml:"fields" json:"fields"`
}

// Resolution is the outcome of resolving one field. Changed distinguishes a
// real replacement value from "leave the target alone" so that nil or empty
// values are never mistaken for no-ops.
type Resolution struct {
	Changed bool   `json:"changed"`
	Value   any    `json:"value,omitempty"`
	Note    string `json:"note"`
}

// Unchanged returns a resolution that leaves the target's value as-is.
func Unchanged(note string) Resolution {
	return Resolution{Note: note}
}

// Changed returns a resolution carrying a replacement value.
func Changed(value any, note string) Resolution {
	return Resolution{Changed: true, Value: value, Note: note}
}

// RelationOutcome summarizes what the reconciler did for one relation.
// Action is set to "skip" when the relation was declared untouchable;
// otherwise the counts describe the mutations performed.
type RelationOutcome struct {
	Action  string `json:"action,omitempty"`
	Updated int    `json:"updated,omitempty"`
	Skipped int    `json:"skipped,omitempty"`
	Deleted int    `json:"deleted,omitempty"`
	Added   int    `json:"added,omitempty"`
}

// MergeResult is the outcome of one executed (or dry-run) merge.
type MergeResult struct {
	Target    *Record                    `json:"target"`
	Fields    map[string]Resolution      `json:"fields"`
	Relations map[string]RelationOutcome `json:"relations"`
	DryRun    bool                       `json:"dry_run"`
}

// MergeLogEntry is one immutable row of the merge audit log.
type MergeLogEntry struct {
	ID              int64     `json:"id" db:"id"`
	RecordType      string    `json:"record_type" db:"record_type"`
	DiscardedUUID   string    `json:"discarded_uuid" db:"discarded_uuid"`
	SurvivingUUID   string    `json:"surviving_uuid" db:"surviving_uuid"`
	ResolvedFields  string    `json:"resolved_fields" db:"resolved_fields"`   // JSON
	RelationActions string    `json:"relation_actions" db:"relation_actions"` // JSON
	Actor           *string   `json:"actor,omitempty" db:"actor"`
	ExecutedAt      time.Time `json:"executed_at" db:"executed_at"`
}

// Candidate is a lightweight search projection of a record. It is not
// persisted; it exists to rank likely duplicates and present selectable
// values.
type Candidate struct {
	UUID   string         `json:"uuid"`
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// ScoredCandidate pairs a candidate with its similarity score (0-100).
type ScoredCandidate struct {
	Candidate Candidate `json:"candidate"`
	Score     int       `json:"score"`
}
