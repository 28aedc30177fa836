package merge

import (
	"database/sql"

	"github.com/lherron/curio/internal/domain"
	"github.com/lherron/curio/internal/registry"
)

// Selections maps a field name to the user's choice for it: the UUID of one
// of the merge candidates (target or a source), or a free-text literal value.
type Selections map[string]string

// MergeSelected merges every source into the target sequentially inside one
// transaction, applying the user's per-field selections. Later merges observe
// the effects of earlier ones; any failure rolls back the whole batch.
func (e *Engine) MergeSelected(typeName, targetUUID string, sourceUUIDs []string, selections Selections, actor string, archive bool) ([]*domain.MergeResult, error) {
	t, err := e.reg.Lookup(typeName)
	if err != nil {
		return nil, err
	}

	var results []*domain.MergeResult

	err = e.store.WithTx(func(tx *sql.Tx) error {
		if err := e.validateSelection(tx, t, targetUUID, sourceUUIDs, selections); err != nil {
			return err
		}

		// Capture selected candidate values before the first merge deletes
		// any of them.
		captured, err := e.captureSelectedValues(tx, t, targetUUID, selections)
		if err != nil {
			return err
		}

		for _, sourceUUID := range sourceUUIDs {
			cfg := buildSelectionConfig(sourceUUID, targetUUID, selections, captured)

			result, err := e.mergeInTx(tx, typeName, sourceUUID, targetUUID, cfg, actor, Options{Archive: archive})
			if err != nil {
				return err
			}
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

// validateSelection performs all input checks before anything is touched:
// target and sources must be persisted records of the governing type and
// mutually distinct, every selection key must be a field the type configures
// for selection (or prompts for), and every selected identifier must name one
// of the candidates.
func (e *Engine) validateSelection(tx *sql.Tx, t *registry.Type, targetUUID string, sourceUUIDs []string, selections Selections) error {
	if len(sourceUUIDs) == 0 {
		return domain.Validationf("no source records supplied")
	}

	if ok, err := e.store.Records.Exists(tx, t, targetUUID); err != nil {
		return err
	} else if !ok {
		return domain.Validationf("target %s not found: %s", t.Name, targetUUID)
	}

	seen := map[string]bool{targetUUID: true}
	for _, sourceUUID := range sourceUUIDs {
		if sourceUUID == targetUUID {
			return domain.Validationf("source %s is the same record as the target", sourceUUID)
		}
		if seen[sourceUUID] {
			return domain.Validationf("source %s supplied more than once", sourceUUID)
		}
		seen[sourceUUID] = true

		if ok, err := e.store.Records.Exists(tx, t, sourceUUID); err != nil {
			return err
		} else if !ok {
			return domain.Validationf("source %s not found: %s", t.Name, sourceUUID)
		}
	}

	for field, selected := range selections {
		policy, ok := t.Policy(field)
		if !ok {
			return domain.Validationf("field %q is not configured for selection on record type %q", field, t.Name)
		}
		// A selection answers a user_prompt field; otherwise the field must
		// be configured for explicit selection.
		if policy.Strategy != domain.StrategyFieldSelection && policy.Strategy != domain.StrategyUserPrompt {
			return domain.Validationf("field %q is not configured for selection on record type %q", field, t.Name)
		}
		// Identifiers must name a candidate; anything that is not an
		// identifier is a free-text override.
		if domain.ValidateUUID(selected) == nil && !seen[selected] {
			return domain.Validationf("selected record %s for field %q is not among the merge candidates", selected, field)
		}
	}

	return nil
}

// captureSelectedValues snapshots the current field value of every selection
// that names a source candidate, keyed by field.
func (e *Engine) captureSelectedValues(tx *sql.Tx, t *registry.Type, targetUUID string, selections Selections) (map[string]string, error) {
	captured := make(map[string]string)
	for field, selected := range selections {
		if selected == targetUUID || domain.ValidateUUID(selected) != nil {
			continue
		}
		chosen, err := e.store.Records.Get(tx, t, selected)
		if err != nil {
			return nil, err
		}
		captured[field] = chosen.FieldString(field)
	}
	return captured, nil
}

// buildSelectionConfig turns the user's selections into the strategy config
// for one source/target merge: a role when the chosen candidate is a side of
// this merge, otherwise the chosen candidate's captured value (or the free
// text) verbatim.
func buildSelectionConfig(sourceUUID, targetUUID string, selections Selections, captured map[string]string) *domain.StrategyConfig {
	if len(selections) == 0 {
		return nil
	}

	cfg := &domain.StrategyConfig{Fields: make(map[string]domain.Policy, len(selections))}

	for field, selected := range selections {
		switch {
		case selected == targetUUID:
			cfg.Fields[field] = domain.Policy{Strategy: domain.StrategyFieldSelection, SelectedFrom: domain.RoleTarget}
		case selected == sourceUUID:
			cfg.Fields[field] = domain.Policy{Strategy: domain.StrategyFieldSelection, SelectedFrom: domain.RoleSource}
		case domain.ValidateUUID(selected) == nil:
			// Another candidate in the batch: its value was captured before
			// the batch began.
			value := captured[field]
			cfg.Fields[field] = domain.Policy{Strategy: domain.StrategyFieldSelection, Value: &value}
		default:
			// Free-text override.
			value := selected
			cfg.Fields[field] = domain.Policy{Strategy: domain.StrategyFieldSelection, Value: &value}
		}
	}

	return cfg
}
