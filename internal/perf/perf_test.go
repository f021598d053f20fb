package perf

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/safemigrate/safemigrate/database/memory"
	"github.com/safemigrate/safemigrate/internal/config"
)

func newTestValidator(conn *memory.ConnectionManager) *Validator {
	cfg := config.DefaultRiskConfig()
	cfg.BenchmarkIterations = 3
	return NewValidator(conn, cfg, zerolog.Nop())
}

// stubTimings replaces the wall-clock timer with scripted durations per
// query so comparisons are deterministic.
func stubTimings(v *Validator, millis map[string]float64) {
	v.timeQuery = func(ctx context.Context, query string) (time.Duration, error) {
		return time.Duration(millis[query] * float64(time.Millisecond)), nil
	}
}

func TestEstablishBaseline_RunsEachQueryNTimes(t *testing.T) {
	conn := memory.NewConnectionManager()
	validator := newTestValidator(conn)

	baseline, err := validator.EstablishBaseline(context.Background(), "staging",
		[]string{"SELECT count(*) FROM users", "SELECT count(*) FROM orders"})
	if err != nil {
		t.Fatalf("Failed to establish baseline: %v", err)
	}
	if len(baseline.Queries) != 2 {
		t.Fatalf("Expected 2 query metrics, got %d", len(baseline.Queries))
	}
	for _, m := range baseline.Queries {
		if m.Iterations != 3 {
			t.Errorf("Expected 3 iterations for %q, got %d", m.Query, m.Iterations)
		}
		if m.MinMS > m.AvgMS || m.AvgMS > m.MaxMS {
			t.Errorf("Expected min <= avg <= max for %q, got %f/%f/%f", m.Query, m.MinMS, m.AvgMS, m.MaxMS)
		}
	}
	if got := len(conn.ExecutedContaining("FROM users")); got != 3 {
		t.Errorf("Expected the users query executed 3 times, got %d", got)
	}
}

func TestEstablishBaseline_RequiresQueries(t *testing.T) {
	validator := newTestValidator(memory.NewConnectionManager())
	if _, err := validator.EstablishBaseline(context.Background(), "staging", nil); err == nil {
		t.Error("Expected an error for an empty query list")
	}
}

func TestRunBenchmark_RepeatsBaselineQueries(t *testing.T) {
	conn := memory.NewConnectionManager()
	validator := newTestValidator(conn)

	baseline, err := validator.EstablishBaseline(context.Background(), "staging", []string{"SELECT 1"})
	if err != nil {
		t.Fatalf("Failed to establish baseline: %v", err)
	}
	benchmark, err := validator.RunBenchmark(context.Background(), baseline)
	if err != nil {
		t.Fatalf("Failed to run benchmark: %v", err)
	}
	if len(benchmark.Queries) != 1 || benchmark.Queries[0].Query != "SELECT 1" {
		t.Errorf("Expected the baseline query repeated, got %+v", benchmark.Queries)
	}
	if benchmark.Environment != "staging" {
		t.Errorf("Expected the baseline environment carried over, got %s", benchmark.Environment)
	}
}

func TestComparePerformance_WithinThresholdAcceptable(t *testing.T) {
	validator := newTestValidator(memory.NewConnectionManager())

	stubTimings(validator, map[string]float64{"q1": 100})
	baseline, _ := validator.EstablishBaseline(context.Background(), "prod", []string{"q1"})

	// 15% slower stays under the default 20% threshold.
	stubTimings(validator, map[string]float64{"q1": 115})
	benchmark, _ := validator.RunBenchmark(context.Background(), baseline)

	comparison, err := validator.ComparePerformance(baseline, benchmark)
	if err != nil {
		t.Fatalf("Failed to compare: %v", err)
	}
	if !comparison.IsAcceptable {
		t.Errorf("Expected 15%% degradation to be acceptable, worst=%.1f", comparison.WorstPercent)
	}
}

func TestComparePerformance_WorstQueryBeyondThresholdFails(t *testing.T) {
	validator := newTestValidator(memory.NewConnectionManager())

	stubTimings(validator, map[string]float64{"fast": 10, "slow": 100})
	baseline, _ := validator.EstablishBaseline(context.Background(), "prod", []string{"fast", "slow"})

	// Overall change is modest but one query regresses 50%.
	stubTimings(validator, map[string]float64{"fast": 15, "slow": 100})
	benchmark, _ := validator.RunBenchmark(context.Background(), baseline)

	comparison, err := validator.ComparePerformance(baseline, benchmark)
	if err != nil {
		t.Fatalf("Failed to compare: %v", err)
	}
	if comparison.IsAcceptable {
		t.Error("Expected a 50% single-query regression to fail the gate")
	}
	if comparison.WorstQuery != "fast" {
		t.Errorf("Expected the fast query flagged as worst, got %q", comparison.WorstQuery)
	}
	if comparison.WorstPercent < 49 || comparison.WorstPercent > 51 {
		t.Errorf("Expected ~50%% worst degradation, got %.1f", comparison.WorstPercent)
	}
}

func TestComparePerformance_ImprovementIsAcceptable(t *testing.T) {
	validator := newTestValidator(memory.NewConnectionManager())

	stubTimings(validator, map[string]float64{"q1": 100})
	baseline, _ := validator.EstablishBaseline(context.Background(), "prod", []string{"q1"})
	stubTimings(validator, map[string]float64{"q1": 50})
	benchmark, _ := validator.RunBenchmark(context.Background(), baseline)

	comparison, err := validator.ComparePerformance(baseline, benchmark)
	if err != nil {
		t.Fatalf("Failed to compare: %v", err)
	}
	if !comparison.IsAcceptable {
		t.Error("Expected an improvement to be acceptable")
	}
	if comparison.OverallPercent >= 0 {
		t.Errorf("Expected negative overall degradation, got %.1f", comparison.OverallPercent)
	}
}

func TestComparePerformance_MissingQueryRejected(t *testing.T) {
	validator := newTestValidator(memory.NewConnectionManager())

	stubTimings(validator, map[string]float64{"q1": 100})
	baseline, _ := validator.EstablishBaseline(context.Background(), "prod", []string{"q1"})

	benchmark := &Benchmark{Environment: "prod", Queries: nil}
	if _, err := validator.ComparePerformance(baseline, benchmark); err == nil {
		t.Error("Expected an error when the benchmark is missing a baseline query")
	}
}
