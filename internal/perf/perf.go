// Package perf establishes query-latency baselines, benchmarks the same
// queries after a migration, and flags regressions beyond the configured
// degradation threshold.
package perf

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/safemigrate/safemigrate/database"
	"github.com/safemigrate/safemigrate/internal/config"
	"github.com/safemigrate/safemigrate/internal/errdefs"
)

// QueryMetrics aggregates repeated timings of one query.
type QueryMetrics struct {
	Query      string  `json:"query"`
	Iterations int     `json:"iterations"`
	AvgMS      float64 `json:"avg_ms"`
	MinMS      float64 `json:"min_ms"`
	MaxMS      float64 `json:"max_ms"`
}

// Baseline is the pre-migration latency record for an environment.
type Baseline struct {
	Environment   string         `json:"environment"`
	EstablishedAt time.Time      `json:"established_at"`
	Queries       []QueryMetrics `json:"queries"`
}

// Benchmark repeats a baseline's queries after a migration.
type Benchmark struct {
	Environment string         `json:"environment"`
	RanAt       time.Time      `json:"ran_at"`
	Queries     []QueryMetrics `json:"queries"`
}

// QueryComparison is the per-query degradation result.
type QueryComparison struct {
	Query              string  `json:"query"`
	BaselineAvgMS      float64 `json:"baseline_avg_ms"`
	BenchmarkAvgMS     float64 `json:"benchmark_avg_ms"`
	DegradationPercent float64 `json:"degradation_percent"`
}

// Comparison is the overall verdict. IsAcceptable is false whenever the
// worst single-query degradation exceeds the threshold.
type Comparison struct {
	PerQuery         []QueryComparison `json:"per_query"`
	OverallPercent   float64           `json:"overall_percent"`
	WorstPercent     float64           `json:"worst_percent"`
	WorstQuery       string            `json:"worst_query,omitempty"`
	ThresholdPercent float64           `json:"threshold_percent"`
	IsAcceptable     bool              `json:"is_acceptable"`
}

// Validator runs baseline and benchmark passes over a connection.
type Validator struct {
	conn       database.ConnectionManager
	iterations int
	threshold  float64
	log        zerolog.Logger
	timeQuery  func(ctx context.Context, query string) (time.Duration, error)
}

// NewValidator creates a validator using the configured iteration count and
// degradation threshold.
func NewValidator(conn database.ConnectionManager, cfg config.RiskConfig, log zerolog.Logger) *Validator {
	if conn == nil {
		panic("perf: connection manager is required")
	}
	iterations := cfg.BenchmarkIterations
	if iterations < 1 {
		iterations = 1
	}
	v := &Validator{
		conn:       conn,
		iterations: iterations,
		threshold:  cfg.DegradationPercent,
		log:        log.With().Str("component", "perf").Logger(),
	}
	v.timeQuery = func(ctx context.Context, query string) (time.Duration, error) {
		started := time.Now()
		err := conn.ExecuteQuery(ctx, query)
		return time.Since(started), err
	}
	return v
}

// EstablishBaseline runs each query the configured number of times and
// records avg/min/max latency.
func (v *Validator) EstablishBaseline(ctx context.Context, environment string, queries []string) (*Baseline, error) {
	metrics, err := v.measure(ctx, queries)
	if err != nil {
		return nil, err
	}
	return &Baseline{
		Environment:   environment,
		EstablishedAt: time.Now().UTC(),
		Queries:       metrics,
	}, nil
}

// RunBenchmark repeats the baseline's queries post-migration.
func (v *Validator) RunBenchmark(ctx context.Context, baseline *Baseline) (*Benchmark, error) {
	if baseline == nil {
		return nil, errdefs.ValidationError.New("baseline is required")
	}
	queries := make([]string, len(baseline.Queries))
	for i, q := range baseline.Queries {
		queries[i] = q.Query
	}
	metrics, err := v.measure(ctx, queries)
	if err != nil {
		return nil, err
	}
	return &Benchmark{
		Environment: baseline.Environment,
		RanAt:       time.Now().UTC(),
		Queries:     metrics,
	}, nil
}

func (v *Validator) measure(ctx context.Context, queries []string) ([]QueryMetrics, error) {
	if len(queries) == 0 {
		return nil, errdefs.ValidationError.New("at least one query is required")
	}

	metrics := make([]QueryMetrics, 0, len(queries))
	for _, query := range queries {
		m := QueryMetrics{Query: query, Iterations: v.iterations}
		var total float64
		for i := 0; i < v.iterations; i++ {
			elapsed, err := v.timeQuery(ctx, query)
			if err != nil {
				return nil, errdefs.ExecutionError.Wrap(err, "benchmark query failed")
			}
			ms := float64(elapsed.Microseconds()) / 1000
			total += ms
			if i == 0 || ms < m.MinMS {
				m.MinMS = ms
			}
			if ms > m.MaxMS {
				m.MaxMS = ms
			}
		}
		m.AvgMS = total / float64(v.iterations)
		metrics = append(metrics, m)
	}
	return metrics, nil
}

// ComparePerformance computes per-query and overall degradation. The
// comparison is pure: identical inputs always produce the same verdict.
func (v *Validator) ComparePerformance(baseline *Baseline, benchmark *Benchmark) (*Comparison, error) {
	if baseline == nil || benchmark == nil {
		return nil, errdefs.ValidationError.New("baseline and benchmark are required")
	}

	benchByQuery := make(map[string]QueryMetrics, len(benchmark.Queries))
	for _, m := range benchmark.Queries {
		benchByQuery[m.Query] = m
	}

	comparison := &Comparison{ThresholdPercent: v.threshold, IsAcceptable: true}
	var baseTotal, benchTotal float64

	for _, base := range baseline.Queries {
		bench, ok := benchByQuery[base.Query]
		if !ok {
			return nil, errdefs.ValidationError.New("benchmark is missing query %q", base.Query)
		}

		qc := QueryComparison{
			Query:          base.Query,
			BaselineAvgMS:  base.AvgMS,
			BenchmarkAvgMS: bench.AvgMS,
		}
		if base.AvgMS > 0 {
			qc.DegradationPercent = (bench.AvgMS - base.AvgMS) / base.AvgMS * 100
		}
		comparison.PerQuery = append(comparison.PerQuery, qc)
		baseTotal += base.AvgMS
		benchTotal += bench.AvgMS

		if qc.DegradationPercent > comparison.WorstPercent {
			comparison.WorstPercent = qc.DegradationPercent
			comparison.WorstQuery = qc.Query
		}
	}

	if baseTotal > 0 {
		comparison.OverallPercent = (benchTotal - baseTotal) / baseTotal * 100
	}
	if comparison.WorstPercent > v.threshold {
		comparison.IsAcceptable = false
		v.log.Warn().
			Str("query", comparison.WorstQuery).
			Float64("degradation_percent", comparison.WorstPercent).
			Float64("threshold_percent", v.threshold).
			Msg("performance regression detected")
	}
	return comparison, nil
}
