// Package dataset loads time-indexed sensor tables from CSV and XLSX files,
// locally or from S3, and describes them in a YAML manifest.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoRows is returned when a source has no complete row left after
	// missing values are dropped.
	ErrNoRows = errors.New("dataset: no complete rows")

	// ErrUnsupportedFormat is returned for sources that are neither CSV nor XLSX.
	ErrUnsupportedFormat = errors.New("dataset: unsupported format")

	// ErrNoTimeColumn is returned when the configured time column is absent.
	ErrNoTimeColumn = errors.New("dataset: time column not found")
)

// Options holds options shared by the CSV and XLSX loaders.
type Options struct {
	TimeColumn string         // Header of the time column (default: first column)
	TimeLayout string         // Preferred layout, tried before the common ones
	Location   *time.Location // Zone for timestamps without offset (default: UTC)
	Delimiter  rune           // CSV field delimiter (default: ',')
	Sheet      string         // XLSX sheet (default: first sheet)
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	return o
}

// commonLayouts are tried after Options.TimeLayout.
var commonLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"01/02/2006 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-Jan-2006",
}

func parseTime(s, layout string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if layout != "" {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	for _, l := range commonLayouts {
		if t, err := time.ParseInLocation(l, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// naTokens are cell values treated as missing.
var naTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"#N/A": true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
}

// parseValue returns NaN for missing or unparseable cells. text reports a
// cell that is neither a number nor an NA token.
func parseValue(s string) (v float64, text bool) {
	s = strings.TrimSpace(strings.Trim(s, "\""))
	if naTokens[s] {
		return math.NaN(), false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), true
	}
	return v, false
}

func findTimeColumn(headers []string, name string) (int, error) {
	if name == "" {
		if len(headers) == 0 {
			return -1, ErrNoTimeColumn
		}
		return 0, nil
	}
	for i, h := range headers {
		if h == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrNoTimeColumn, name)
}

func cleanHeader(h string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimPrefix(h, "\ufeff"), "\""))
}
