package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sensortrend/internal/model"
	"sensortrend/internal/trend"
)

// Request selects a column and the smoothing parameters.
type Request struct {
	Dataset string
	Column  string // empty selects the dataset default
	Params  trend.Params
}

// Result is one smoothed column. Timestamps and Raw are the inputs the
// trend was computed from.
type Result struct {
	Dataset    string        `json:"dataset"`
	Column     string        `json:"column"`
	Version    string        `json:"version"`
	Requested  trend.Params  `json:"requested"`
	Effective  trend.Params  `json:"effective"`
	Smoothed   []float64     `json:"smoothed"`
	Summary    trend.Summary `json:"summary"`
	Cached     bool          `json:"cached"`
	Duration   time.Duration `json:"-"`
	Timestamps []time.Time   `json:"-"`
	Raw        []float64     `json:"-"`
}

// CacheKey identifies a result. The version makes keys from before a
// reload unreachable.
func CacheKey(dataset, version, column string, eff trend.Params) string {
	return fmt.Sprintf("%s:%s:%s:w%d:p%d", dataset, version, column, eff.WindowLength, eff.PolyOrder)
}

// Compute smooths one column. Cache and journal failures are logged and
// never fail the request.
func (s *Service) Compute(ctx context.Context, req Request) (res *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "engine.Compute", trace.WithAttributes(
		attribute.String("dataset", req.Dataset),
		attribute.String("column", req.Column),
		attribute.Int("window_length", req.Params.WindowLength),
		attribute.Int("poly_order", req.Params.PolyOrder),
	))
	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = ErrorKind(err)
			if outcome == KindInternal {
				outcome = "error"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case res.Cached:
			outcome = "cached"
		}
		s.deps.Metrics.ObserveCompute(outcome, time.Since(start))
		span.End()
	}()

	e, err := s.entry(req.Dataset)
	if err != nil {
		return nil, err
	}
	column := req.Column
	if column == "" {
		column = e.info.DefaultColumn
	}
	series, err := e.table.Series(column)
	if err != nil {
		return nil, err
	}
	eff, err := req.Params.Validate(series.Len())
	if err != nil {
		return nil, err
	}

	res = &Result{
		Dataset:    e.info.Name,
		Column:     column,
		Version:    e.info.Version,
		Requested:  req.Params,
		Effective:  eff,
		Timestamps: series.Timestamps,
		Raw:        series.Values,
	}

	key := CacheKey(e.info.Name, e.info.Version, column, eff)
	if s.deps.Cache != nil {
		if vals, ok := s.deps.Cache.GetTrend(ctx, key); ok && len(vals) == series.Len() {
			res.Smoothed = vals
			res.Cached = true
		}
		s.deps.Metrics.ObserveCache(res.Cached)
	}

	if !res.Cached {
		smoothed, err := trend.ExtractTrend(series.Timestamps, series.Values, req.Params)
		if err != nil {
			return nil, err
		}
		res.Smoothed = smoothed
		if s.deps.Cache != nil {
			if err := s.deps.Cache.PutTrend(ctx, key, smoothed); err != nil {
				log.Printf("[engine] cache put %s: %v", key, err)
			}
		}
	}

	res.Summary = trend.Summarize(series.Values, res.Smoothed)
	res.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Bool("cached", res.Cached),
		attribute.Int("points", series.Len()),
		attribute.Int("effective_window", eff.WindowLength),
	)

	s.record(ctx, res)
	return res, nil
}

func (s *Service) record(ctx context.Context, res *Result) {
	if s.deps.Journal == nil {
		return
	}
	run := model.TrendRun{
		RunID:        uuid.NewString(),
		Dataset:      res.Dataset,
		Column:       res.Column,
		Version:      res.Version,
		WindowLength: res.Effective.WindowLength,
		PolyOrder:    res.Effective.PolyOrder,
		Points:       len(res.Smoothed),
		Cached:       res.Cached,
		Duration:     res.Duration,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.deps.Journal.RecordRun(ctx, run); err != nil {
		log.Printf("[engine] journal: %v", err)
	}
}
