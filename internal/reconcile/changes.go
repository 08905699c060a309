package reconcile

import (
	"fmt"
	"strconv"
	"time"
)

// Kind selects the equality rule applied to a field.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindBool
	KindDecimal
	KindDate
	KindDateTime
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindDecimal:
		return "decimal"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	case KindJSON:
		return "json"
	default:
		return "string"
	}
}

// decimalPlaces is the precision at which decimal fields are compared.
const decimalPlaces = 5

// HasChanged reports whether incoming differs from the persisted value.
//
// Dates and integers compare by their canonical string form, datetimes by
// instant after ISO-8601 parsing, decimals after formatting both sides to
// five places with nil read as zero, JSON by canonical encoding. Everything
// else compares directly.
func HasChanged(current, incoming any, kind Kind) (bool, error) {
	switch kind {
	case KindDate, KindInt:
		cur, err := stringForm(kind, current)
		if err != nil {
			return false, fmt.Errorf("current %s: %w", kind, err)
		}
		inc, err := stringForm(kind, incoming)
		if err != nil {
			return false, fmt.Errorf("incoming %s: %w", kind, err)
		}
		return cur != inc, nil
	case KindDateTime:
		cur, err := toDateTime(current)
		if err != nil {
			return false, fmt.Errorf("current datetime: %w", err)
		}
		inc, err := toDateTime(incoming)
		if err != nil {
			return false, fmt.Errorf("incoming datetime: %w", err)
		}
		return !cur.Equal(inc), nil
	case KindDecimal:
		cur, err := toDecimal(current)
		if err != nil {
			return false, fmt.Errorf("current decimal: %w", err)
		}
		inc, err := toDecimal(incoming)
		if err != nil {
			return false, fmt.Errorf("incoming decimal: %w", err)
		}
		return cur.StringFixed(decimalPlaces) != inc.StringFixed(decimalPlaces), nil
	case KindJSON:
		cur, err := canonicalJSON(current)
		if err != nil {
			return false, fmt.Errorf("current json: %w", err)
		}
		inc, err := canonicalJSON(incoming)
		if err != nil {
			return false, fmt.Errorf("incoming json: %w", err)
		}
		return cur != inc, nil
	case KindBool:
		cur, err := toBool(current)
		if err != nil {
			return false, err
		}
		inc, err := toBool(incoming)
		if err != nil {
			return false, err
		}
		return cur != inc, nil
	default:
		cur, err := toString(current)
		if err != nil {
			return false, err
		}
		inc, err := toString(incoming)
		if err != nil {
			return false, err
		}
		return cur != inc, nil
	}
}

// stringForm renders key and comparison values. nil renders empty so a
// missing value is distinguishable from zero.
func stringForm(kind Kind, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	switch kind {
	case KindInt:
		n, err := toInt64(v)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil
	case KindDate:
		d, err := toDate(v)
		if err != nil {
			return "", err
		}
		if d.IsZero() {
			return "", nil
		}
		return d.Format(dateLayout), nil
	case KindDateTime:
		t, err := toDateTime(v)
		if err != nil {
			return "", err
		}
		if t.IsZero() {
			return "", nil
		}
		return t.UTC().Format(time.RFC3339Nano), nil
	case KindDecimal:
		d, err := toDecimal(v)
		if err != nil {
			return "", err
		}
		return d.StringFixed(decimalPlaces), nil
	case KindJSON:
		return canonicalJSON(v)
	case KindBool:
		b, err := toBool(v)
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	default:
		return toString(v)
	}
}
