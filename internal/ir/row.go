package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is one result row: column names in the order the query declared them,
// paired with their values. Lookups by name are linear; rows are small.
type Row struct {
	Columns []string
	Values  []any
}

// NewRow builds a row from parallel column and value slices.
func NewRow(columns []string, values []any) Row {
	return Row{Columns: columns, Values: values}
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.Columns)
}

// Get returns the value of the named column.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Set replaces the named column's value, appending the column if absent.
func (r *Row) Set(column string, value any) {
	for i, c := range r.Columns {
		if c == column {
			r.Values[i] = value
			return
		}
	}
	r.Columns = append(r.Columns, column)
	r.Values = append(r.Values, value)
}

// Map returns the row as an unordered map.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return m
}

// MarshalJSON encodes the row as a JSON object whose keys keep column order.
// []byte values (SQLite BLOB/TEXT from the driver) are written as strings.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		v := r.Values[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String renders the row as "col=value" pairs in column order.
func (r Row) String() string {
	var buf bytes.Buffer
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteString(" ")
		}
		v := r.Values[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		fmt.Fprintf(&buf, "%s=%v", c, v)
	}
	return buf.String()
}
