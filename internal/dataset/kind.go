package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the value type inferred for a column.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "string"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "string":
		return KindString, nil
	case "int":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	case "bool":
		return KindBool, nil
	default:
		return KindString, fmt.Errorf("unknown column kind %q", s)
	}
}

// inferKinds picks the narrowest kind that every present cell of a column
// satisfies: int, then float, then bool, falling back to string. A column
// with no present cells is a string column.
func inferKinds(width int, rows [][]string) []Kind {
	kinds := make([]Kind, width)
	for col := 0; col < width; col++ {
		canInt, canFloat, canBool, seen := true, true, true, false
		for _, row := range rows {
			cell := row[col]
			if cell == "" {
				continue
			}
			seen = true
			if canInt {
				if _, ok := parseInt(cell); !ok {
					canInt = false
				}
			}
			if canFloat && !canInt {
				if _, ok := parseFloat(cell); !ok {
					canFloat = false
				}
			}
			if canBool {
				if _, ok := parseBool(cell); !ok {
					canBool = false
				}
			}
			if !canInt && !canFloat && !canBool {
				break
			}
		}

		switch {
		case !seen:
			kinds[col] = KindString
		case canInt:
			kinds[col] = KindInt
		case canFloat:
			kinds[col] = KindFloat
		case canBool:
			kinds[col] = KindBool
		default:
			kinds[col] = KindString
		}
	}
	return kinds
}

func parseInt(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v, err == nil
}

// parseFloat rejects infinities, which have no JSON representation.
func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

// Value converts a normalised cell to its typed Go value: nil for a missing
// cell, otherwise int64, float64, bool or string according to kind.
func Value(kind Kind, cell string) any {
	if cell == "" {
		return nil
	}
	switch kind {
	case KindInt:
		if v, ok := parseInt(cell); ok {
			return v
		}
	case KindFloat:
		if v, ok := parseFloat(cell); ok {
			return v
		}
	case KindBool:
		if v, ok := parseBool(cell); ok {
			return v
		}
	}
	return cell
}

// Record is one row. It encodes as a JSON object whose keys follow the
// column order of the file.
type Record struct {
	columns []string
	kinds   []Kind
	cells   []string
}

// Get returns the typed value of the named column and whether it exists.
func (r Record) Get(column string) (any, bool) {
	for i, name := range r.columns {
		if name == column {
			return Value(r.kinds[i], r.cells[i]), true
		}
	}
	return nil, false
}

// Map returns the record as a column → value map.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, name := range r.columns {
		m[name] = Value(r.kinds[i], r.cells[i])
	}
	return m
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(Value(r.kinds[i], r.cells[i]))
		if err != nil {
			return nil, fmt.Errorf("encoding column %q: %w", name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
