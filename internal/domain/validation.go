package domain

import (
	"fmt"
	"regexp"
	"time"
)

// UUIDv4Regex validates lowercase UUIDv4 format
var UUIDv4Regex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// ValidateUUID validates a UUID v4 format (lowercase with hyphens)
func ValidateUUID(uuid string) error {
	if !UUIDv4Regex.MatchString(uuid) {
		return fmt.Errorf("invalid UUID: must be lowercase UUIDv4 format (e.g., 550e8400-e29b-41d4-a716-446655440000)")
	}
	return nil
}

// ValidateStrategy validates a merge strategy token
func ValidateStrategy(s Strategy) error {
	switch s {
	case StrategyLastWrite, StrategyPreferNonNull, StrategyConcat,
		StrategyWhitelist, StrategyFieldSelection, StrategyCustom, StrategyUserPrompt:
		return nil
	default:
		return fmt.Errorf("invalid strategy: must be one of: last_write, prefer_non_null, concat, whitelist, field_selection, custom, user_prompt")
	}
}

// ValidateRole validates a merge side role
func ValidateRole(r Role) error {
	switch r {
	case RoleSource, RoleTarget:
		return nil
	default:
		return fmt.Errorf("invalid role: must be one of: source, target")
	}
}

// ValidateRelationKind validates a relation descriptor kind
func ValidateRelationKind(k RelationKind) error {
	switch k {
	case RelationOwned, RelationOneToOne, RelationManyToMany, RelationUniqueLink:
		return nil
	default:
		return fmt.Errorf("invalid relation kind: must be one of: owned, one_to_one, many_to_many, unique_link")
	}
}

// ValidateTimestamp validates and parses an ISO8601 timestamp
func ValidateTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp format: expected ISO8601/RFC3339")
	}
	return t, nil
}
