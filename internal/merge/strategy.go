package merge

import (
	"fmt"
	"strings"

	"github.com/lherron/curio/internal/domain"
	"github.com/lherron/curio/internal/registry"
)

// ResolveField resolves one field under the given policy. It never mutates
// source or target; the returned Resolution carries the replacement value (or
// marks the field untouched) plus a note explaining the decision.
func ResolveField(reg *registry.Registry, t *registry.Type, field string, policy domain.Policy, source, target *domain.Record) (domain.Resolution, error) {
	switch policy.Strategy {
	case domain.StrategyLastWrite:
		return domain.Changed(source.Fields[field], "took source value (last write wins)"), nil

	case domain.StrategyPreferNonNull:
		return resolvePreferNonNull(field, policy, source, target), nil

	case domain.StrategyConcat:
		return resolveConcat(field, policy, source, target), nil

	case domain.StrategyWhitelist:
		for _, allowed := range policy.Allow {
			if allowed == field {
				return domain.Changed(source.Fields[field], "field allowed, took source value"), nil
			}
		}
		return domain.Unchanged(fmt.Sprintf("field %q not in allow list, blocked", field)), nil

	case domain.StrategyFieldSelection:
		return resolveFieldSelection(field, policy, source, target), nil

	case domain.StrategyCustom:
		handler, ok := reg.Handler(policy.Handler)
		if !ok {
			return domain.Resolution{}, &domain.HandlerNotFoundError{Type: t.Name, Field: field, Handler: policy.Handler}
		}
		value, note, err := handler(source, target)
		if err != nil {
			return domain.Resolution{}, fmt.Errorf("custom handler %q failed for %s.%s: %w", policy.Handler, t.Name, field, err)
		}
		return domain.Changed(value, note), nil

	case domain.StrategyUserPrompt:
		return domain.Resolution{}, &domain.NeedsInputError{Field: field}

	default:
		return domain.Resolution{}, domain.Validationf("field %q has invalid strategy %q", field, policy.Strategy)
	}
}

// resolvePreferNonNull walks the priority list and takes the first side whose
// value is non-null and non-empty. An empty priority list defaults to
// source-then-target.
func resolvePreferNonNull(field string, policy domain.Policy, source, target *domain.Record) domain.Resolution {
	priority := policy.Priority
	if len(priority) == 0 {
		priority = []domain.Role{domain.RoleSource, domain.RoleTarget}
	}

	for _, role := range priority {
		rec := source
		if role == domain.RoleTarget {
			rec = target
		}
		if v, ok := rec.Fields[field]; ok && !isEmpty(v) {
			return domain.Changed(v, fmt.Sprintf("first non-empty value in priority order (%s)", role))
		}
	}

	return domain.Unchanged("no non-empty value on either side")
}

// resolveConcat joins target then source with the configured delimiter,
// trimming each side and skipping empty or equal values.
func resolveConcat(field string, policy domain.Policy, source, target *domain.Record) domain.Resolution {
	delimiter := policy.Delimiter
	if delimiter == "" {
		delimiter = "\n"
	}

	src := strings.TrimSpace(source.FieldString(field))
	dst := strings.TrimSpace(target.FieldString(field))

	switch {
	case src == "":
		return domain.Unchanged("source value empty, nothing to append")
	case src == dst:
		return domain.Unchanged("values identical after trimming")
	case dst == "":
		return domain.Changed(src, "target value empty, took source value")
	default:
		return domain.Changed(dst+delimiter+src, "appended source value to target value")
	}
}

// resolveFieldSelection applies the user's explicit choice: a literal value
// verbatim, or the named side's value.
func resolveFieldSelection(field string, policy domain.Policy, source, target *domain.Record) domain.Resolution {
	if policy.Value != nil {
		return domain.Changed(*policy.Value, "user-entered value")
	}

	switch policy.SelectedFrom {
	case domain.RoleSource:
		return domain.Changed(source.Fields[field], "user selected source value")
	case domain.RoleTarget:
		return domain.Changed(target.Fields[field], "user selected target value")
	}

	return domain.Unchanged("no selection made")
}

// isEmpty treats nil and empty strings as absent values.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
