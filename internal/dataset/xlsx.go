package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"sensortrend/internal/model"
)

// LoadXLSX loads a table from a workbook on disk.
func LoadXLSX(filename, name string, opts Options) (*model.Table, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if name == "" {
		name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	return LoadXLSXFromReader(file, name, opts)
}

// LoadXLSXFromReader reads one sheet of a workbook. The first row is the
// header. Time cells may hold Excel serial dates or text timestamps.
func LoadXLSXFromReader(r io.Reader, name string, opts Options) (*model.Table, error) {
	opts = opts.withDefaults()

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w in %q", ErrNoRows, name)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w in %q", ErrNoRows, name)
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = cleanHeader(h)
	}
	timeIdx, err := findTimeColumn(headers, opts.TimeColumn)
	if err != nil {
		return nil, err
	}

	b := newBuilder(name, headers, timeIdx, opts)
	for _, record := range rows[1:] {
		if timeIdx >= len(record) {
			b.badTime++
			continue
		}
		ts, err := cellTime(record[timeIdx], date1904, opts)
		if err != nil {
			b.badTime++
			continue
		}
		b.addParsed(ts, record)
	}
	return b.finish()
}

// cellTime converts a raw time cell. Serial dates carry no zone, so their
// wall clock is read in opts.Location.
func cellTime(raw string, date1904 bool, opts Options) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		wall, err := excelize.ExcelDateToTime(serial, date1904)
		if err != nil {
			return time.Time{}, err
		}
		return time.Date(wall.Year(), wall.Month(), wall.Day(),
			wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(), opts.Location).UTC(), nil
	}
	return parseTime(raw, opts.TimeLayout, opts.Location)
}
