package reconcile

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/mpsync/pkg/db"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
)

// ParentRef names the foreign key column that ties children to one parent.
type ParentRef struct {
	Column string
	ID     int64
}

type ChildOptions[T any] struct {
	// Prepare may rewrite a record before it is matched. Returning skip=true
	// ignores the record but keeps any persisted child with the same key.
	Prepare func(ctx context.Context, rec Record) (Record, bool, error)
	// SetParent stamps the parent id onto created children.
	SetParent func(*T, int64)
}

// SyncChildren mirrors records onto the children of one parent within tx.
// Existing children are locked and matched by the schema key, changed fields
// are saved, unknown keys are created and children whose key is absent from
// records are deleted. An empty records slice removes every child.
func SyncChildren[T any](ctx context.Context, tx *gorm.DB, schema *Schema[T], parent ParentRef, records []Record, opts ChildOptions[T]) (Summary, error) {
	summary := Summary{Table: schema.Table}
	if err := schema.Validate(); err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "invalid schema")
	}
	if parent.Column == "" {
		return summary, pkgerrors.New(pkgerrors.CodeInternal, "parent column required")
	}
	tx = tx.WithContext(ctx)

	var existing []T
	if err := tx.Table(schema.Table).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(fmt.Sprintf("%s = ?", parent.Column), parent.ID).
		Find(&existing).Error; err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load children")
	}

	index := make(map[string]*T, len(existing))
	for i := range existing {
		key, err := schema.rowKey(&existing[i])
		if err != nil {
			return summary, pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "persisted child key")
		}
		index[key] = &existing[i]
	}
	summary.Found = len(index)

	keep := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if opts.Prepare != nil {
			prepared, skip, err := opts.Prepare(ctx, rec)
			if err != nil {
				return summary, err
			}
			if skip {
				if key, _, err := schema.recordKey(rec); err == nil {
					keep[key] = struct{}{}
				}
				continue
			}
			rec = prepared
		}

		key, _, err := schema.recordKey(rec)
		if err != nil {
			return summary, pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "child key")
		}
		summary.Received++
		keep[key] = struct{}{}

		row, ok := index[key]
		if !ok {
			fresh, err := schema.Build(rec)
			if err != nil {
				return summary, pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "build child")
			}
			if opts.SetParent != nil {
				opts.SetParent(fresh, parent.ID)
			}
			if err := tx.Create(fresh).Error; err != nil {
				if db.IsUniqueViolation(err, "") {
					return summary, pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "create child")
				}
				return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create child")
			}
			index[key] = fresh
			summary.Created++
			continue
		}

		cols, _, err := applyChanges(schema, row, rec, nil)
		if err != nil {
			return summary, err
		}
		if len(cols) == 0 {
			continue
		}
		if err := tx.Model(row).Select(cols).Updates(row).Error; err != nil {
			return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update child")
		}
		summary.Updated++
		summary.Changed = mergeColumns(summary.Changed, cols)
	}

	var stale []T
	for i := range existing {
		key, _ := schema.rowKey(&existing[i])
		if _, ok := keep[key]; !ok {
			stale = append(stale, existing[i])
		}
	}
	if len(stale) > 0 {
		if err := tx.Delete(&stale).Error; err != nil {
			return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete stale children")
		}
	}
	return summary, nil
}
