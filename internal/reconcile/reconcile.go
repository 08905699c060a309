package reconcile

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/mpsync/pkg/db"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
)

const defaultBatchSize = 500

// Hook may override the naive change decision for a field. Returning
// skip=true leaves the whole row untouched for this run.
type Hook[T any] func(changed bool, current *T, column string, incoming any) (bool, bool)

// Observer receives the outcome of each reconciliation.
type Observer interface {
	ObserveReconcile(table string, created, updated int)
}

type Options[T any] struct {
	// ShopID scopes the lookup and stamps created rows. Zero disables scoping.
	ShopID    int64
	Hook      Hook[T]
	BatchSize int
	Observer  Observer
}

// Summary describes one reconciliation run.
type Summary struct {
	Table    string
	Received int
	Found    int
	Updated  int
	Created  int
	Changed  []string
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: received %d / found %d and updated %d / changed fields [%s] / created %d",
		s.Table, s.Received, s.Found, s.Updated, strings.Join(s.Changed, ", "), s.Created)
}

// Add folds other into s, keeping the changed columns sorted and unique.
func (s *Summary) Add(other Summary) {
	if s.Table == "" {
		s.Table = other.Table
	}
	s.Received += other.Received
	s.Found += other.Found
	s.Updated += other.Updated
	s.Created += other.Created
	s.Changed = mergeColumns(s.Changed, other.Changed)
}

// Reconcile makes the persisted rows match records for every composite key
// present in records. Unknown keys are created in bulk; existing rows are
// updated only when a declared field changed, in one bulk upsert restricted
// to the union of changed columns. Duplicate keys within records resolve last-write-wins.
// The lookup takes row locks, so concurrent runs over overlapping keys
// serialize.
func Reconcile[T any](ctx context.Context, conn *gorm.DB, schema *Schema[T], records []Record, opts Options[T]) (Summary, error) {
	summary := Summary{Table: schema.Table}
	if err := schema.Validate(); err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "invalid schema")
	}

	order := make([]string, 0, len(records))
	latest := make(map[string]Record, len(records))
	filters := make([][]any, len(schema.KeyColumns))
	seen := make([]map[string]struct{}, len(schema.KeyColumns))
	for i := range seen {
		seen[i] = map[string]struct{}{}
	}

	for _, rec := range records {
		key, params, err := schema.recordKey(rec)
		if err != nil {
			return summary, pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "record key")
		}
		if _, dup := latest[key]; !dup {
			order = append(order, key)
		}
		latest[key] = rec
		for i, p := range params {
			part, _ := stringForm(schema.mustField(i).Kind, p)
			if _, ok := seen[i][part]; ok {
				continue
			}
			seen[i][part] = struct{}{}
			filters[i] = append(filters[i], p)
		}
	}
	summary.Received = len(order)
	if len(order) == 0 {
		return summary, nil
	}

	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Table(schema.Table).Clauses(clause.Locking{Strength: "UPDATE"})
		if schema.ShopColumn != "" && opts.ShopID != 0 {
			query = query.Where(fmt.Sprintf("%s = ?", schema.ShopColumn), opts.ShopID)
		}
		for i, col := range schema.KeyColumns {
			query = query.Where(fmt.Sprintf("%s IN ?", col), filters[i])
		}

		var existing []T
		if err := query.Find(&existing).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load existing rows")
		}

		index := make(map[string]*T, len(existing))
		for i := range existing {
			key, err := schema.rowKey(&existing[i])
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "persisted row key")
			}
			index[key] = &existing[i]
		}
		summary.Found = len(index)

		var (
			creates     []*T
			updates     []*T
			changedCols []string
		)
		for _, key := range order {
			rec := latest[key]
			row, ok := index[key]
			if !ok {
				fresh, err := schema.Build(rec)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "build row")
				}
				if schema.SetShop != nil && opts.ShopID != 0 {
					schema.SetShop(fresh, opts.ShopID)
				}
				creates = append(creates, fresh)
				continue
			}

			rowCols, skip, err := applyChanges(schema, row, rec, opts.Hook)
			if err != nil {
				return err
			}
			if skip || len(rowCols) == 0 {
				continue
			}
			updates = append(updates, row)
			changedCols = mergeColumns(changedCols, rowCols)
		}

		if len(creates) > 0 {
			if err := tx.CreateInBatches(creates, batch).Error; err != nil {
				if db.IsUniqueViolation(err, "") {
					return pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "create rows").
						WithDetails(map[string]any{"table": schema.Table})
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create rows")
			}
		}

		if len(updates) > 0 {
			if err := bulkUpdate(tx, updates, changedCols, batch); err != nil {
				if db.IsUniqueViolation(err, "") {
					return pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "update rows")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update rows")
			}
		}

		summary.Created = len(creates)
		summary.Updated = len(updates)
		summary.Changed = changedCols
		return nil
	})
	if err != nil {
		return Summary{Table: schema.Table, Received: summary.Received}, err
	}

	if opts.Observer != nil {
		opts.Observer.ObserveReconcile(schema.Table, summary.Created, summary.Updated)
	}
	return summary, nil
}

// applyChanges copies changed declared fields from rec onto row and returns
// their columns. When the hook asks to skip any field, row is left as loaded
// and skip is true.
func applyChanges[T any](schema *Schema[T], row *T, rec Record, hook Hook[T]) ([]string, bool, error) {
	var changed []Field[T]
	for _, f := range schema.Fields {
		v, ok := rec[f.Column]
		if !ok {
			continue
		}
		diff, err := f.Changed(row, v)
		if err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "compare field")
		}
		if hook != nil {
			var skip bool
			if diff, skip = hook(diff, row, f.Column, v); skip {
				return nil, true, nil
			}
		}
		if diff {
			changed = append(changed, f)
		}
	}

	cols := make([]string, 0, len(changed))
	for _, f := range changed {
		if err := f.Set(row, rec[f.Column]); err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "assign field")
		}
		cols = append(cols, f.Column)
	}
	return cols, false, nil
}

// bulkUpdate writes rows back as upserts on their primary key, assigning
// only cols plus the update timestamp.
func bulkUpdate[T any](tx *gorm.DB, rows []*T, cols []string, batch int) error {
	stmt := &gorm.Statement{DB: tx}
	if err := stmt.Parse(rows[0]); err != nil {
		return err
	}
	pk := stmt.Schema.PrioritizedPrimaryField
	if pk == nil {
		return fmt.Errorf("table %s has no primary key", stmt.Schema.Table)
	}
	set := clause.AssignmentColumns(cols)
	if f := stmt.Schema.LookUpField("updated_at"); f != nil && f.AutoUpdateTime > 0 && !slices.Contains(cols, f.DBName) {
		set = append(set, clause.Assignment{Column: clause.Column{Name: f.DBName}, Value: time.Now()})
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: pk.DBName}},
		DoUpdates: set,
	}).CreateInBatches(rows, batch).Error
}

func (s *Schema[T]) mustField(keyIndex int) Field[T] {
	f, _ := s.Field(s.KeyColumns[keyIndex])
	return f
}

func mergeColumns(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	set := make(map[string]struct{}, len(a)+len(b))
	for _, c := range a {
		set[c] = struct{}{}
	}
	for _, c := range b {
		set[c] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
