package model

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"time"
)

// ErrUnknownColumn is returned when a column is not part of a table.
var ErrUnknownColumn = errors.New("unknown column")

// Table is a time-indexed dataset with one or more numeric columns.
// Missing cells hold NaN until DropNA is called.
type Table struct {
	Name       string
	TimeColumn string
	Columns    []string
	Timestamps []time.Time
	Values     map[string][]float64
}

// Row is one record of a table, used for previews.
type Row struct {
	Time   time.Time          `json:"time"`
	Values map[string]float64 `json:"values"`
}

// NewTable creates an empty table with the given value columns.
func NewTable(name, timeColumn string, columns []string) *Table {
	t := &Table{
		Name:       name,
		TimeColumn: timeColumn,
		Columns:    append([]string(nil), columns...),
		Values:     make(map[string][]float64, len(columns)),
	}
	for _, c := range columns {
		t.Values[c] = nil
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Timestamps) }

// AppendRow adds a row. vals is aligned with Columns; short rows are padded
// with NaN.
func (t *Table) AppendRow(ts time.Time, vals []float64) {
	t.Timestamps = append(t.Timestamps, ts)
	for i, c := range t.Columns {
		v := math.NaN()
		if i < len(vals) {
			v = vals[i]
		}
		t.Values[c] = append(t.Values[c], v)
	}
}

// HasColumn reports whether c is a value column.
func (t *Table) HasColumn(c string) bool {
	_, ok := t.Values[c]
	return ok
}

// RemoveColumns drops value columns by name. Unknown names are ignored.
func (t *Table) RemoveColumns(names ...string) {
	for _, name := range names {
		delete(t.Values, name)
	}
	kept := t.Columns[:0]
	for _, c := range t.Columns {
		if _, ok := t.Values[c]; ok {
			kept = append(kept, c)
		}
	}
	t.Columns = kept
}

// SortByTime orders rows by timestamp, keeping the original order of
// equal timestamps.
func (t *Table) SortByTime() {
	idx := make([]int, t.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return t.Timestamps[idx[a]].Before(t.Timestamps[idx[b]])
	})
	t.permute(idx)
}

// DropNA removes every row that has a missing or non-finite value in any
// column and returns the number of rows removed.
func (t *Table) DropNA() int {
	keep := make([]int, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		ok := true
		for _, c := range t.Columns {
			v := t.Values[c][i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}
	dropped := t.Len() - len(keep)
	if dropped > 0 {
		t.permute(keep)
	}
	return dropped
}

func (t *Table) permute(idx []int) {
	ts := make([]time.Time, len(idx))
	for i, j := range idx {
		ts[i] = t.Timestamps[j]
	}
	t.Timestamps = ts
	for _, c := range t.Columns {
		src := t.Values[c]
		dst := make([]float64, len(idx))
		for i, j := range idx {
			dst[i] = src[j]
		}
		t.Values[c] = dst
	}
}

// Series returns a copy of one column paired with the time axis.
func (t *Table) Series(column string) (*Series, error) {
	vals, ok := t.Values[column]
	if !ok {
		return nil, fmt.Errorf("%w: %q in dataset %q", ErrUnknownColumn, column, t.Name)
	}
	return &Series{
		Name:       column,
		Timestamps: append([]time.Time(nil), t.Timestamps...),
		Values:     append([]float64(nil), vals...),
	}, nil
}

// Head returns the first n rows, or all rows when n exceeds Len.
func (t *Table) Head(n int) []Row {
	n = max(0, min(n, t.Len()))
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		vals := make(map[string]float64, len(t.Columns))
		for _, c := range t.Columns {
			vals[c] = t.Values[c][i]
		}
		rows[i] = Row{Time: t.Timestamps[i], Values: vals}
	}
	return rows
}

// Version fingerprints the table content with FNV-64a. Two tables with the
// same columns, timestamps and values share a version.
func (t *Table) Version() string {
	h := fnv.New64a()
	var buf [8]byte
	for _, c := range t.Columns {
		h.Write([]byte(c))
		h.Write([]byte{0})
	}
	for _, ts := range t.Timestamps {
		binary.LittleEndian.PutUint64(buf[:], uint64(ts.UnixNano()))
		h.Write(buf[:])
	}
	for _, c := range t.Columns {
		for _, v := range t.Values[c] {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Series is a single named column with its timestamps.
type Series struct {
	Name       string
	Timestamps []time.Time
	Values     []float64
}

// Len returns the number of samples.
func (s *Series) Len() int { return len(s.Values) }
