package reconcile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Record is one upstream row as a field map keyed by column name.
type Record map[string]any

// Field binds a column to a struct member of T.
type Field[T any] struct {
	Column   string
	Kind     Kind
	Nullable bool
	get      func(*T) any
	set      func(*T, any) error
}

// Get returns the current value of the field on row.
func (f Field[T]) Get(row *T) any {
	return f.get(row)
}

// Set converts v and stores it on row.
func (f Field[T]) Set(row *T, v any) error {
	if err := f.set(row, v); err != nil {
		return fmt.Errorf("field %s: %w", f.Column, err)
	}
	return nil
}

// Changed applies HasChanged after mapping a missing incoming value to the
// zero value of non-nullable fields.
func (f Field[T]) Changed(row *T, incoming any) (bool, error) {
	if incoming == nil && !f.Nullable {
		zero, err := Convert(f.Kind, nil)
		if err != nil {
			return false, err
		}
		incoming = zero
	}
	changed, err := HasChanged(f.get(row), incoming, f.Kind)
	if err != nil {
		return false, fmt.Errorf("field %s: %w", f.Column, err)
	}
	return changed, nil
}

func String[T any](column string, ptr func(*T) *string) Field[T] {
	return Field[T]{
		Column: column,
		Kind:   KindString,
		get:    func(row *T) any { return *ptr(row) },
		set: func(row *T, v any) error {
			s, err := toString(v)
			if err != nil {
				return err
			}
			*ptr(row) = s
			return nil
		},
	}
}

// StringAs binds a named string type such as an enum.
func StringAs[T any, S ~string](column string, ptr func(*T) *S) Field[T] {
	return Field[T]{
		Column: column,
		Kind:   KindString,
		get:    func(row *T) any { return string(*ptr(row)) },
		set: func(row *T, v any) error {
			s, err := toString(v)
			if err != nil {
				return err
			}
			*ptr(row) = S(s)
			return nil
		},
	}
}

func Int64[T any](column string, ptr func(*T) *int64) Field[T] {
	return Field[T]{
		Column: column,
		Kind:   KindInt,
		get:    func(row *T) any { return *ptr(row) },
		set: func(row *T, v any) error {
			n, err := toInt64(v)
			if err != nil {
				return err
			}
			*ptr(row) = n
			return nil
		},
	}
}

// NullableInt64 keeps nil distinct from zero.
func NullableInt64[T any](column string, ptr func(*T) **int64) Field[T] {
	return Field[T]{
		Column:   column,
		Kind:     KindInt,
		Nullable: true,
		get: func(row *T) any {
			if p := *ptr(row); p != nil {
				return *p
			}
			return nil
		},
		set: func(row *T, v any) error {
			if v == nil {
				*ptr(row) = nil
				return nil
			}
			n, err := toInt64(v)
			if err != nil {
				return err
			}
			*ptr(row) = &n
			return nil
		},
	}
}

func Bool[T any](column string, ptr func(*T) *bool) Field[T] {
	return Field[T]{
		Column: column,
		Kind:   KindBool,
		get:    func(row *T) any { return *ptr(row) },
		set: func(row *T, v any) error {
			b, err := toBool(v)
			if err != nil {
				return err
			}
			*ptr(row) = b
			return nil
		},
	}
}

func Decimal[T any](column string, ptr func(*T) *decimal.Decimal) Field[T] {
	return Field[T]{
		Column: column,
		Kind:   KindDecimal,
		get:    func(row *T) any { return *ptr(row) },
		set: func(row *T, v any) error {
			d, err := toDecimal(v)
			if err != nil {
				return err
			}
			*ptr(row) = d
			return nil
		},
	}
}

func Date[T any](column string, ptr func(*T) *time.Time) Field[T] {
	return Field[T]{
		Column: column,
		Kind:   KindDate,
		get:    func(row *T) any { return *ptr(row) },
		set: func(row *T, v any) error {
			d, err := toDate(v)
			if err != nil {
				return err
			}
			*ptr(row) = d
			return nil
		},
	}
}

func DateTime[T any](column string, ptr func(*T) *time.Time) Field[T] {
	return Field[T]{
		Column: column,
		Kind:   KindDateTime,
		get:    func(row *T) any { return *ptr(row) },
		set: func(row *T, v any) error {
			t, err := toDateTime(v)
			if err != nil {
				return err
			}
			*ptr(row) = t
			return nil
		},
	}
}

func JSON[T any](column string, ptr func(*T) *datatypes.JSON) Field[T] {
	return Field[T]{
		Column:   column,
		Kind:     KindJSON,
		Nullable: true,
		get: func(row *T) any {
			if raw := *ptr(row); len(raw) > 0 {
				return raw
			}
			return nil
		},
		set: func(row *T, v any) error {
			raw, err := toJSON(v)
			if err != nil {
				return err
			}
			*ptr(row) = raw
			return nil
		},
	}
}

// Int64Array stores a list of integers in a Postgres bigint[] column.
func Int64Array[T any](column string, ptr func(*T) *pq.Int64Array) Field[T] {
	return Field[T]{
		Column:   column,
		Kind:     KindJSON,
		Nullable: true,
		get: func(row *T) any {
			if vals := *ptr(row); vals != nil {
				return []int64(vals)
			}
			return nil
		},
		set: func(row *T, v any) error {
			if v == nil {
				*ptr(row) = nil
				return nil
			}
			items, ok := v.([]any)
			if !ok {
				if typed, ok := v.([]int64); ok {
					*ptr(row) = pq.Int64Array(typed)
					return nil
				}
				return fmt.Errorf("unsupported int64 array value %T", v)
			}
			out := make(pq.Int64Array, 0, len(items))
			for _, item := range items {
				n, err := toInt64(item)
				if err != nil {
					return err
				}
				out = append(out, n)
			}
			*ptr(row) = out
			return nil
		},
	}
}

// Schema declares how an entity type is matched and diffed. Only declared
// fields are read from records; everything else is ignored.
type Schema[T any] struct {
	Table      string
	KeyColumns []string
	// ShopColumn scopes lookups to the owning tenant when set.
	ShopColumn string
	Fields     []Field[T]
	SetShop    func(*T, int64)
}

// Validate checks that every key column is a declared field.
func (s *Schema[T]) Validate() error {
	if s.Table == "" {
		return errors.New("schema table required")
	}
	if len(s.KeyColumns) == 0 {
		return fmt.Errorf("schema %s: key columns required", s.Table)
	}
	for _, col := range s.KeyColumns {
		if _, ok := s.Field(col); !ok {
			return fmt.Errorf("schema %s: key column %s is not a declared field", s.Table, col)
		}
	}
	if s.ShopColumn != "" && s.SetShop == nil {
		return fmt.Errorf("schema %s: shop column without SetShop", s.Table)
	}
	return nil
}

// Field returns the declared field for column.
func (s *Schema[T]) Field(column string) (Field[T], bool) {
	for _, f := range s.Fields {
		if f.Column == column {
			return f, true
		}
	}
	return Field[T]{}, false
}

// Build creates a new row from the declared fields present in rec.
func (s *Schema[T]) Build(rec Record) (*T, error) {
	row := new(T)
	for _, f := range s.Fields {
		v, ok := rec[f.Column]
		if !ok {
			continue
		}
		if err := f.Set(row, v); err != nil {
			return nil, err
		}
	}
	return row, nil
}

const keySeparator = "\x1f"

func (s *Schema[T]) rowKey(row *T) (string, error) {
	parts := make([]string, len(s.KeyColumns))
	for i, col := range s.KeyColumns {
		f, _ := s.Field(col)
		part, err := stringForm(f.Kind, f.Get(row))
		if err != nil {
			return "", fmt.Errorf("key %s: %w", col, err)
		}
		parts[i] = part
	}
	return strings.Join(parts, keySeparator), nil
}

// recordKey returns the composite key of rec and the typed key values used
// to filter the lookup query.
func (s *Schema[T]) recordKey(rec Record) (string, []any, error) {
	parts := make([]string, len(s.KeyColumns))
	params := make([]any, len(s.KeyColumns))
	for i, col := range s.KeyColumns {
		f, _ := s.Field(col)
		raw, ok := rec[col]
		if !ok || raw == nil {
			return "", nil, fmt.Errorf("record missing key column %s", col)
		}
		value, err := Convert(f.Kind, raw)
		if err != nil {
			return "", nil, fmt.Errorf("key %s: %w", col, err)
		}
		part, err := stringForm(f.Kind, value)
		if err != nil {
			return "", nil, fmt.Errorf("key %s: %w", col, err)
		}
		parts[i] = part
		params[i] = value
	}
	return strings.Join(parts, keySeparator), params, nil
}
