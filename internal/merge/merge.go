// Package merge implements the generic merge/deduplication engine: field
// resolution under configurable policies, relation reconciliation, and the
// transactional orchestrator that consolidates two records into one with a
// durable audit trail.
package merge

import (
	"database/sql"
	"fmt"

	"github.com/lherron/curio/internal/audit"
	"github.com/lherron/curio/internal/domain"
	"github.com/lherron/curio/internal/registry"
	"github.com/lherron/curio/internal/store"
)

// Engine is the transactional entry point for merges.
type Engine struct {
	store *store.Store
	reg   *registry.Registry
	audit *audit.Writer
}

// NewEngine creates a merge engine over the given store and audit writer.
func NewEngine(s *store.Store, aw *audit.Writer) *Engine {
	return &Engine{store: s, reg: s.Registry(), audit: aw}
}

// Options control a single merge invocation.
type Options struct {
	Archive bool // run the type's archive hook before deleting the source
	DryRun  bool // compute everything, persist nothing, log nothing
}

// Merge consolidates source into target inside one transaction: resolves
// every configured field, repairs every incoming relation, optionally
// archives a snapshot of the source onto the target, deletes the source, and
// writes one merge log entry. Any failure rolls the whole thing back.
func (e *Engine) Merge(typeName, sourceUUID, targetUUID string, cfg *domain.StrategyConfig, actor string, opts Options) (*domain.MergeResult, error) {
	var result *domain.MergeResult

	err := e.store.WithTx(func(tx *sql.Tx) error {
		r, err := e.mergeInTx(tx, typeName, sourceUUID, targetUUID, cfg, actor, opts)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// mergeInTx is the orchestrator body. It is shared with MergeSelected, which
// runs several merges inside one caller-owned transaction.
func (e *Engine) mergeInTx(tx *sql.Tx, typeName, sourceUUID, targetUUID string, cfg *domain.StrategyConfig, actor string, opts Options) (*domain.MergeResult, error) {
	t, err := e.reg.Lookup(typeName)
	if err != nil {
		return nil, err
	}

	// Preconditions, checked before any mutation.
	if sourceUUID == targetUUID {
		return nil, domain.Validationf("cannot merge a %s into itself", t.Name)
	}
	source, err := e.store.Records.Get(tx, t, sourceUUID)
	if err != nil {
		return nil, err
	}
	target, err := e.store.Records.Get(tx, t, targetUUID)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		for field, policy := range cfg.Fields {
			if !t.HasField(field) {
				return nil, domain.Validationf("record type %q has no field %q", t.Name, field)
			}
			if err := domain.ValidateStrategy(policy.Strategy); err != nil {
				return nil, domain.Validationf("field %q: %v", field, err)
			}
		}
	}

	// Resolve every field the type declares or the caller overrides.
	resolutions := make(map[string]domain.Resolution)
	updates := make(map[string]any)
	for _, field := range t.Fields {
		policy, ok := fieldPolicy(t, cfg, field)
		if !ok {
			// No declared policy: the engine never guesses.
			continue
		}

		res, err := ResolveField(e.reg, t, field, policy, source, target)
		if err != nil {
			return nil, err
		}
		resolutions[field] = res
		if res.Changed {
			target.Fields[field] = res.Value
			updates[field] = res.Value
		}
	}

	// A resolved self-referential parent must not point into the target's
	// own subtree (nor at either merge participant).
	if t.ParentField != "" {
		if res, ok := resolutions[t.ParentField]; ok && res.Changed {
			if err := e.checkParentCycle(tx, t, res.Value, source, target); err != nil {
				return nil, err
			}
		}
	}

	relations, err := reconcileRelations(tx, t, sourceUUID, targetUUID, opts.DryRun)
	if err != nil {
		return nil, err
	}

	// Archive hook runs before deletion so the snapshot can land on the
	// surviving record.
	if opts.Archive && t.ArchiveHook != nil {
		hookUpdates, err := t.ArchiveHook(source, target)
		if err != nil {
			return nil, fmt.Errorf("archive hook failed for %s: %w", t.Name, err)
		}
		for field, value := range hookUpdates {
			if !t.HasField(field) {
				return nil, fmt.Errorf("archive hook for %s set unknown field %q", t.Name, field)
			}
			target.Fields[field] = value
			updates[field] = value
		}
	}

	result := &domain.MergeResult{
		Target:    target,
		Fields:    resolutions,
		Relations: relations,
		DryRun:    opts.DryRun,
	}

	if opts.DryRun {
		return result, nil
	}

	// Relation rows were already repaired in place; the target row itself is
	// only written when a field resolution or the archive hook changed it.
	if len(updates) > 0 {
		if err := e.store.Records.UpdateFields(tx, t, targetUUID, updates); err != nil {
			return nil, err
		}
	}

	if err := e.store.Records.Delete(tx, t, sourceUUID); err != nil {
		return nil, err
	}

	entry, err := audit.EncodeMerge(t.Name, sourceUUID, targetUUID, result, actor)
	if err != nil {
		return nil, err
	}
	if err := e.audit.LogMerge(tx, entry); err != nil {
		return nil, err
	}

	return result, nil
}

// checkParentCycle rejects a resolved parent value that is the target, the
// source, or any record whose parent chain reaches either of them. The
// source's descendants become the target's during reconciliation, so both
// subtrees are off limits.
func (e *Engine) checkParentCycle(q store.Querier, t *registry.Type, chosen any, source, target *domain.Record) error {
	parent, _ := chosen.(string)
	if parent == "" {
		return nil
	}

	if parent == target.UUID || parent == source.UUID {
		return &domain.CycleError{Type: t.Name, Field: t.ParentField, Chosen: parent}
	}

	for _, stop := range []string{target.UUID, source.UUID} {
		reaches, err := e.store.Records.ReachesByParent(q, t, parent, stop)
		if err != nil {
			return err
		}
		if reaches {
			return &domain.CycleError{Type: t.Name, Field: t.ParentField, Chosen: parent}
		}
	}

	return nil
}

// fieldPolicy returns the per-call override for a field if one was supplied,
// falling back to the type's declared default.
func fieldPolicy(t *registry.Type, cfg *domain.StrategyConfig, field string) (domain.Policy, bool) {
	if cfg != nil {
		if policy, ok := cfg.Fields[field]; ok {
			return policy, true
		}
	}
	return t.Policy(field)
}
