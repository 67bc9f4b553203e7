package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"sensortrend/internal/dataset"
	"sensortrend/internal/logger"
	"sensortrend/internal/model"
	"sensortrend/internal/render"
	"sensortrend/internal/trend"
)

func main() {
	logger.Init("trendcli", logger.ParseLevel(os.Getenv("LOG_LEVEL")), os.Stderr)
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("[trendcli] %v", err)
	}
}

type options struct {
	in, column, timeColumn string
	out, png               string
	params                 trend.Params
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("trendcli", flag.ContinueOnError)
	fs.StringVar(&o.in, "in", "", "input CSV or XLSX file (required)")
	fs.StringVar(&o.column, "column", "", "column to smooth (default: first value column)")
	fs.StringVar(&o.timeColumn, "time-column", "", "time column header (default: first column)")
	fs.IntVar(&o.params.WindowLength, "window", trend.DefaultParams().WindowLength, "window length in samples")
	fs.IntVar(&o.params.PolyOrder, "order", trend.DefaultParams().PolyOrder, "polynomial order")
	fs.StringVar(&o.out, "out", "", "write time,raw,trend CSV to this file")
	fs.StringVar(&o.png, "png", "", "write a two-panel chart to this file")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.in == "" {
		fs.Usage()
		return o, errors.New("-in is required")
	}
	return o, nil
}

func run(args []string, stdout io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}

	name := strings.TrimSuffix(filepath.Base(o.in), filepath.Ext(o.in))
	table, err := dataset.Load(context.Background(), dataset.Spec{
		Name:       name,
		Source:     o.in,
		TimeColumn: o.timeColumn,
	}, nil)
	if err != nil {
		return fmt.Errorf("load %s: %w", o.in, err)
	}

	column := o.column
	if column == "" {
		column = table.Columns[0]
	}
	series, err := table.Series(column)
	if err != nil {
		return err
	}

	start := time.Now()
	smoothed, err := trend.ExtractTrend(series.Timestamps, series.Values, o.params)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	eff := o.params.Normalize()

	if o.out != "" {
		if err := writeCSV(o.out, series, smoothed); err != nil {
			return err
		}
	}
	if o.png != "" {
		if err := writePNG(o.png, series, smoothed); err != nil {
			return err
		}
	}

	sum := trend.Summarize(series.Values, smoothed)
	fmt.Fprintf(stdout, "dataset:    %s (%d rows, columns: %s)\n", name, table.Len(), strings.Join(table.Columns, ", "))
	fmt.Fprintf(stdout, "column:     %s\n", column)
	fmt.Fprintf(stdout, "range:      %s .. %s\n",
		series.Timestamps[0].Format(time.RFC3339), series.Timestamps[series.Len()-1].Format(time.RFC3339))
	fmt.Fprintf(stdout, "params:     window=%d order=%d (effective window %d)\n",
		o.params.WindowLength, o.params.PolyOrder, eff.WindowLength)
	fmt.Fprintf(stdout, "rmse:       %.6g\n", sum.RMSE)
	fmt.Fprintf(stdout, "residual:   std %.6g\n", sum.ResidualStd)
	fmt.Fprintf(stdout, "roughness:  raw %.6g, trend %.6g\n", sum.RawRoughness, sum.TrendRoughness)
	fmt.Fprintf(stdout, "elapsed:    %s\n", elapsed.Round(time.Microsecond))
	return nil
}

// writeCSV writes time,raw,trend rows. Timestamps keep sub-second precision.
func writeCSV(path string, s *model.Series, smoothed []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"time", "raw", "trend"})
	for i, v := range s.Values {
		w.Write([]string{
			s.Timestamps[i].Format(time.RFC3339Nano),
			strconv.FormatFloat(v, 'g', -1, 64),
			strconv.FormatFloat(smoothed[i], 'g', -1, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Printf("[trendcli] wrote %d rows to %s", len(s.Values), path)
	return f.Close()
}

func writePNG(path string, s *model.Series, smoothed []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := render.TrendPNG(f, render.Plot{
		Column:   s.Name,
		X:        s.Timestamps,
		Raw:      s.Values,
		Smoothed: smoothed,
	}); err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	log.Printf("[trendcli] wrote chart to %s", path)
	return f.Close()
}
