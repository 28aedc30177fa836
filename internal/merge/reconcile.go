package merge

import (
	"fmt"

	"github.com/lherron/curio/internal/domain"
	"github.com/lherron/curio/internal/registry"
	"github.com/lherron/curio/internal/store"
)

// reconcileRelations repairs every relation pointing at the source so that
// deleting it cannot orphan or violate anything. All mutations happen inside
// the caller's transaction and strictly before the source row is removed.
// With dryRun set, only the reads run and the counts describe what would
// happen.
func reconcileRelations(q store.Querier, t *registry.Type, sourceUUID, targetUUID string, dryRun bool) (map[string]domain.RelationOutcome, error) {
	outcomes := make(map[string]domain.RelationOutcome, len(t.Relations))

	for _, rel := range t.Relations {
		if rel.Action == "skip" {
			// Deletion-time FK behavior already does the right thing here.
			outcomes[rel.Name] = domain.RelationOutcome{Action: "skip"}
			continue
		}

		var outcome domain.RelationOutcome
		var err error
		switch rel.Kind {
		case domain.RelationOwned:
			// On a self-referential parent table the surviving row itself may
			// point at the source; reassigning it would make it its own
			// parent, so it is excluded and the source's deletion-time FK
			// action clears the pointer instead.
			exclude := ""
			if rel.Table == t.Table && rel.FK == t.ParentField {
				exclude = targetUUID
			}
			outcome, err = reconcileOwned(q, rel, sourceUUID, targetUUID, exclude, dryRun)
		case domain.RelationOneToOne:
			outcome, err = reconcileOneToOne(q, rel, sourceUUID, targetUUID, dryRun)
		case domain.RelationManyToMany:
			outcome, err = reconcileManyToMany(q, rel, sourceUUID, targetUUID, dryRun)
		case domain.RelationUniqueLink:
			outcome, err = reconcileUniqueLink(q, rel, sourceUUID, targetUUID, dryRun)
		default:
			err = fmt.Errorf("relation %q has unknown kind %q", rel.Name, rel.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to reconcile relation %q: %w", rel.Name, err)
		}
		outcomes[rel.Name] = outcome
	}

	return outcomes, nil
}

// reconcileOwned reassigns every row holding a FK to the source, except the
// row named by excludeUUID.
func reconcileOwned(q store.Querier, rel registry.Relation, sourceUUID, targetUUID, excludeUUID string, dryRun bool) (domain.RelationOutcome, error) {
	var outcome domain.RelationOutcome

	if dryRun {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", rel.Table, rel.FK)
		args := []any{sourceUUID}
		if excludeUUID != "" {
			query += " AND uuid <> ?"
			args = append(args, excludeUUID)
		}
		if err := q.QueryRow(query, args...).Scan(&outcome.Updated); err != nil {
			return outcome, err
		}
		return outcome, nil
	}

	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", rel.Table, rel.FK, rel.FK)
	args := []any{targetUUID, sourceUUID}
	if excludeUUID != "" {
		query += " AND uuid <> ?"
		args = append(args, excludeUUID)
	}
	res, err := q.Exec(query, args...)
	if err != nil {
		return outcome, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return outcome, err
	}
	outcome.Updated = int(n)
	return outcome, nil
}

// reconcileOneToOne reassigns the source's single holder only when the target
// has none. When both sides hold one, the target's wins a priori and the
// source's counterpart is left to ride the FK action on deletion.
func reconcileOneToOne(q store.Querier, rel registry.Relation, sourceUUID, targetUUID string, dryRun bool) (domain.RelationOutcome, error) {
	var outcome domain.RelationOutcome

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", rel.Table, rel.FK)

	var sourceHolders int
	if err := q.QueryRow(countQuery, sourceUUID).Scan(&sourceHolders); err != nil {
		return outcome, err
	}
	if sourceHolders == 0 {
		return outcome, nil
	}

	var targetHolders int
	if err := q.QueryRow(countQuery, targetUUID).Scan(&targetHolders); err != nil {
		return outcome, err
	}

	if targetHolders > 0 {
		outcome.Skipped = sourceHolders
		return outcome, nil
	}

	if !dryRun {
		query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", rel.Table, rel.FK, rel.FK)
		if _, err := q.Exec(query, targetUUID, sourceUUID); err != nil {
			return outcome, err
		}
	}
	outcome.Updated = sourceHolders
	return outcome, nil
}

// reconcileManyToMany copies the source's association pairs onto the target,
// leaving pairs the target already holds alone.
func reconcileManyToMany(q store.Querier, rel registry.Relation, sourceUUID, targetUUID string, dryRun bool) (domain.RelationOutcome, error) {
	var outcome domain.RelationOutcome

	listQuery := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", rel.OtherFK, rel.Table, rel.FK)
	rows, err := q.Query(listQuery, sourceUUID)
	if err != nil {
		return outcome, err
	}
	defer rows.Close()

	var others []string
	for rows.Next() {
		var other string
		if err := rows.Scan(&other); err != nil {
			return outcome, err
		}
		others = append(others, other)
	}
	if err := rows.Err(); err != nil {
		return outcome, err
	}
	rows.Close()

	existsQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ? AND %s = ?", rel.Table, rel.FK, rel.OtherFK)
	insertQuery := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)", rel.Table, rel.FK, rel.OtherFK)

	for _, other := range others {
		var n int
		if err := q.QueryRow(existsQuery, targetUUID, other).Scan(&n); err != nil {
			return outcome, err
		}
		if n > 0 {
			outcome.Skipped++
			continue
		}
		if !dryRun {
			if _, err := q.Exec(insertQuery, targetUUID, other); err != nil {
				return outcome, err
			}
		}
		outcome.Added++
	}

	return outcome, nil
}

// reconcileUniqueLink reassigns the source's linking rows to the target unless
// the target already holds a link for the same other-side key; redundant links
// are deleted instead, so the uniqueness constraint can never trip.
func reconcileUniqueLink(q store.Querier, rel registry.Relation, sourceUUID, targetUUID string, dryRun bool) (domain.RelationOutcome, error) {
	var outcome domain.RelationOutcome

	listQuery := fmt.Sprintf("SELECT uuid, %s FROM %s WHERE %s = ?", rel.OtherFK, rel.Table, rel.FK)
	rows, err := q.Query(listQuery, sourceUUID)
	if err != nil {
		return outcome, err
	}
	defer rows.Close()

	type link struct {
		uuid  string
		other string
	}
	var links []link
	for rows.Next() {
		var l link
		if err := rows.Scan(&l.uuid, &l.other); err != nil {
			return outcome, err
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return outcome, err
	}
	rows.Close()

	existsQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ? AND %s = ?", rel.Table, rel.FK, rel.OtherFK)

	for _, l := range links {
		var n int
		if err := q.QueryRow(existsQuery, targetUUID, l.other).Scan(&n); err != nil {
			return outcome, err
		}
		if n > 0 {
			// The target already links this key; the source's link is redundant.
			if !dryRun {
				deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE uuid = ?", rel.Table)
				if _, err := q.Exec(deleteQuery, l.uuid); err != nil {
					return outcome, err
				}
			}
			outcome.Deleted++
			continue
		}
		if !dryRun {
			updateQuery := fmt.Sprintf("UPDATE %s SET %s = ? WHERE uuid = ?", rel.Table, rel.FK)
			if _, err := q.Exec(updateQuery, targetUUID, l.uuid); err != nil {
				return outcome, err
			}
		}
		outcome.Updated++
	}

	return outcome, nil
}
