package store

import (
	"fmt"
	"strconv"
	"time"
)

//nolint:gochecknoglobals // fixed set of row fields
var observationColumns = []string{
	"keyword", "geo_code", "geo_name", "value", "start", "end", "date", "is_partial", BatchedAtColumn,
}

// Observation is one flat row of harvested data
type Observation struct {
	Keyword   string
	GeoCode   string
	GeoName   string
	Value     float64
	Start     time.Time
	End       time.Time
	Date      time.Time
	IsPartial bool
	BatchedAt time.Time
}

// Field returns the value of a named column
func (o Observation) Field(name string) (any, error) {
	switch name {
	case "keyword":
		return o.Keyword, nil
	case "geo_code":
		return o.GeoCode, nil
	case "geo_name":
		return o.GeoName, nil
	case "value":
		return o.Value, nil
	case "start":
		return o.Start, nil
	case "end":
		return o.End, nil
	case "date":
		return o.Date, nil
	case "is_partial":
		return o.IsPartial, nil
	case BatchedAtColumn:
		return o.BatchedAt, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
}

// Record renders the row as a column -> wire value map for the given schema.
// Dates become YYYY-MM-DD and timestamps YYYY-MM-DD hh:mm:ss in UTC.
func (o Observation) Record(columns []Column) (map[string]any, error) {
	rec := make(map[string]any, len(columns))

	for _, c := range columns {
		v, err := o.Field(c.Name)
		if err != nil {
			return nil, err
		}

		rec[c.Name] = Format(c.Type, v)
	}

	return rec, nil
}

// Values returns the row's values for the given schema, in column order, typed for database/sql
func (o Observation) Values(columns []Column) ([]any, error) {
	out := make([]any, 0, len(columns))

	for _, c := range columns {
		v, err := o.Field(c.Name)
		if err != nil {
			return nil, err
		}

		if t, ok := v.(time.Time); ok {
			if c.Type == TypeDate {
				v = t.UTC().Format("2006-01-02")
			} else {
				v = t.UTC()
			}
		}

		out = append(out, v)
	}

	return out, nil
}

// Format converts a field value to its textual wire form
func Format(typ ColumnType, v any) any {
	switch val := v.(type) {
	case time.Time:
		if typ == TypeDate {
			return val.UTC().Format("2006-01-02")
		}

		return val.UTC().Format("2006-01-02 15:04:05")
	default:
		return val
	}
}

// KeyOf renders the natural key of a row as a comparable string
func KeyOf(o Observation, key []string) (string, error) {
	var buf []byte

	for i, name := range key {
		v, err := o.Field(name)
		if err != nil {
			return "", err
		}

		if i > 0 {
			buf = append(buf, 0x1f)
		}

		switch val := v.(type) {
		case string:
			buf = append(buf, val...)
		case float64:
			buf = strconv.AppendFloat(buf, val, 'g', -1, 64)
		case bool:
			buf = strconv.AppendBool(buf, val)
		case time.Time:
			buf = val.UTC().AppendFormat(buf, time.RFC3339)
		}
	}

	return string(buf), nil
}
