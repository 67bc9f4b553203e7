package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sensortrend/internal/model"
)

// LoadCSV loads a table from a CSV file. The dataset is named after the file
// unless name is set.
func LoadCSV(filename, name string, opts Options) (*model.Table, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if name == "" {
		name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	return LoadCSVFromReader(file, name, opts)
}

// LoadCSVFromReader reads a header row followed by data rows. The time
// column is parsed as timestamps, every other column as numbers.
func LoadCSVFromReader(r io.Reader, name string, opts Options) (*model.Table, error) {
	opts = opts.withDefaults()

	reader := csv.NewReader(r)
	reader.Comma = opts.Delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = cleanHeader(h)
	}

	timeIdx, err := findTimeColumn(headers, opts.TimeColumn)
	if err != nil {
		return nil, err
	}

	b := newBuilder(name, headers, timeIdx, opts)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b.add(record)
	}
	return b.finish()
}

// builder accumulates raw records into a table and applies the shared
// cleaning steps.
type builder struct {
	table   *model.Table
	timeIdx int
	valIdx  []int
	opts    Options
	badTime int
	row     []float64

	// Per value column: NA-token rows, and whether any cell held text.
	// Text columns are not numeric and are dropped once NA rows are gone.
	na   [][]bool
	text []bool
}

func newBuilder(name string, headers []string, timeIdx int, opts Options) *builder {
	var cols []string
	var idx []int
	for i, h := range headers {
		if i == timeIdx || h == "" {
			continue
		}
		cols = append(cols, h)
		idx = append(idx, i)
	}
	return &builder{
		table:   model.NewTable(name, headers[timeIdx], cols),
		timeIdx: timeIdx,
		valIdx:  idx,
		opts:    opts,
		row:     make([]float64, len(cols)),
		na:      make([][]bool, len(cols)),
		text:    make([]bool, len(cols)),
	}
}

func (b *builder) add(record []string) {
	if b.timeIdx >= len(record) {
		b.badTime++
		return
	}
	ts, err := parseTime(strings.Trim(record[b.timeIdx], "\""), b.opts.TimeLayout, b.opts.Location)
	if err != nil {
		b.badTime++
		return
	}
	b.addParsed(ts, record)
}

func (b *builder) addParsed(ts time.Time, record []string) {
	for i, j := range b.valIdx {
		cell := ""
		if j < len(record) {
			cell = record[j]
		}
		v, text := parseValue(cell)
		b.row[i] = v
		b.na[i] = append(b.na[i], math.IsNaN(v) && !text)
		b.text[i] = b.text[i] || text
	}
	b.table.AppendRow(ts, b.row)
}

func (b *builder) finish() (*model.Table, error) {
	t := b.table
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("dataset %q: no value columns", t.Name)
	}

	// A text column only marks rows as incomplete where it holds an NA token.
	var textCols []string
	for i, c := range t.Columns {
		if !b.text[i] {
			continue
		}
		textCols = append(textCols, c)
		for r, missing := range b.na[i] {
			if missing {
				t.Values[c][r] = math.NaN()
			} else {
				t.Values[c][r] = 0
			}
		}
	}

	t.SortByTime()
	dropped := t.DropNA()
	if b.badTime > 0 || dropped > 0 {
		log.Printf("[dataset] %s: skipped %d rows with bad timestamps, dropped %d incomplete rows",
			t.Name, b.badTime, dropped)
	}
	if len(textCols) > 0 {
		t.RemoveColumns(textCols...)
		log.Printf("[dataset] %s: ignoring non-numeric columns %v", t.Name, textCols)
	}
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("dataset %q: no numeric value columns", t.Name)
	}
	if t.Len() == 0 {
		return nil, fmt.Errorf("%w in %q", ErrNoRows, t.Name)
	}
	return t, nil
}
