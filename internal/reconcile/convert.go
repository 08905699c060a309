package reconcile

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const dateLayout = "2006-01-02"

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	dateLayout,
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case *int64:
		if t == nil {
			return 0, nil
		}
		return *t, nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("value %v is not an integer", t)
		}
		return int64(t), nil
	case json.Number:
		return t.Int64()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseInt(s, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported integer value %T", v)
	}
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case *string:
		if t == nil {
			return "", nil
		}
		return *t, nil
	case json.Number:
		return t.String(), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return "", fmt.Errorf("unsupported string value %T", v)
	}
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return false, nil
		}
		return strconv.ParseBool(strings.TrimSpace(t))
	case float64:
		return t != 0, nil
	case int:
		return t != 0, nil
	case int64:
		return t != 0, nil
	default:
		return false, fmt.Errorf("unsupported bool value %T", v)
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return t, nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case json.Number:
		return decimal.NewFromString(t.String())
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(s)
	default:
		return decimal.Zero, fmt.Errorf("unsupported decimal value %T", v)
	}
}

func toDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		if t.IsZero() {
			return t, nil
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, nil
		}
		return toDate(*t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, nil
		}
		if len(s) > len(dateLayout) {
			s = s[:len(dateLayout)]
		}
		return time.ParseInLocation(dateLayout, s, time.UTC)
	default:
		return time.Time{}, fmt.Errorf("unsupported date value %T", v)
	}
}

func toDateTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, nil
		}
		return *t, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, nil
		}
		for _, layout := range dateTimeLayouts {
			if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid ISO-8601 datetime %q", s)
	default:
		return time.Time{}, fmt.Errorf("unsupported datetime value %T", v)
	}
}

func toJSON(v any) (datatypes.JSON, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case datatypes.JSON:
		return t, nil
	case json.RawMessage:
		return datatypes.JSON(t), nil
	case []byte:
		if !json.Valid(t) {
			return nil, fmt.Errorf("invalid json payload")
		}
		return datatypes.JSON(t), nil
	case string:
		if json.Valid([]byte(t)) {
			return datatypes.JSON(t), nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// canonicalJSON re-encodes a document so key order and spacing do not matter.
func canonicalJSON(v any) (string, error) {
	raw, err := toJSON(v)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", err
	}
	if doc == nil {
		return "", nil
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Convert turns a raw upstream value into the Go value stored for kind.
func Convert(kind Kind, v any) (any, error) {
	switch kind {
	case KindInt:
		return toInt64(v)
	case KindBool:
		return toBool(v)
	case KindDecimal:
		return toDecimal(v)
	case KindDate:
		return toDate(v)
	case KindDateTime:
		return toDateTime(v)
	case KindJSON:
		return toJSON(v)
	default:
		return toString(v)
	}
}
