// Package risk scores a proposed migration operation across independent
// danger categories and aggregates them into one 0-100 assessment.
//
// Scoring is deterministic: identical inputs always produce identical
// scores. Every signal contributes additively and caps are non-decreasing,
// so raising row counts, adding CASCADE constraints or removing a backup
// can never lower a score.
package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/safemigrate/safemigrate/internal/config"
	"github.com/safemigrate/safemigrate/internal/depend"
	"github.com/safemigrate/safemigrate/internal/errdefs"
)

// Engine computes risk assessments using the configured weights and level
// boundaries.
type Engine struct {
	cfg config.RiskConfig
}

// NewEngine creates a risk engine. A zero-valued config is API misuse.
func NewEngine(cfg config.RiskConfig) *Engine {
	if len(cfg.Weights) == 0 {
		panic("risk: config has no category weights")
	}
	return &Engine{cfg: cfg}
}

// weightKeys maps categories to their config weight keys.
var weightKeys = map[Category]string{
	CategoryDataLoss:               "data_loss",
	CategorySystemAvailability:     "system_availability",
	CategoryPerformanceDegradation: "performance_degradation",
	CategoryReferentialIntegrity:   "referential_integrity",
	CategoryRollbackability:        "rollbackability",
}

// CalculateMigrationRiskScore scores one operation against its dependency
// report. A nil report is treated as a no-dependency analysis.
func (e *Engine) CalculateMigrationRiskScore(op Operation, report *depend.DependencyReport) (*Assessment, error) {
	if op.OperationType == "" {
		return nil, errdefs.ValidationError.New("operation type is required")
	}

	signals := extractSignals(op, report)

	assessment := &Assessment{
		OperationID: op.ID,
		Categories:  make(map[Category]Score),
	}

	assessment.Categories[CategoryDataLoss] = e.scoreDataLoss(op, signals)
	assessment.Categories[CategorySystemAvailability] = e.scoreAvailability(op, signals)
	assessment.Categories[CategoryPerformanceDegradation] = e.scorePerformance(op, signals)
	assessment.Categories[CategoryReferentialIntegrity] = e.scoreReferentialIntegrity(op, signals)
	assessment.Categories[CategoryRollbackability] = e.scoreRollbackability(op, signals)

	var weighted, totalWeight float64
	for category, score := range assessment.Categories {
		w := e.cfg.Weights[weightKeys[category]]
		weighted += w * score.Score
		totalWeight += w
	}
	if totalWeight <= 0 {
		return nil, errdefs.ValidationError.New("category weights sum to zero")
	}
	assessment.OverallScore = clamp(weighted / totalWeight)
	assessment.Level = e.LevelFor(assessment.OverallScore)

	return assessment, nil
}

// LevelFor maps a 0-100 score through the fixed range table.
func (e *Engine) LevelFor(score float64) Level {
	switch {
	case score <= e.cfg.LowUpperBound:
		return LevelLow
	case score <= e.cfg.MediumUpperBound:
		return LevelMedium
	case score <= e.cfg.HighUpperBound:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// signals are the concrete facts the category formulas consume.
type signals struct {
	fkCount      int
	cascadeFKs   int
	viewCount    int
	indexCount   int
	triggerCount int
	checkCount   int
}

func extractSignals(op Operation, report *depend.DependencyReport) signals {
	var s signals
	if report == nil {
		return s
	}
	fkDeps := report.ByType(depend.DependencyForeignKey)
	s.fkCount = len(fkDeps)
	for _, dep := range fkDeps {
		if strings.Contains(dep.Definition, "ON DELETE CASCADE") {
			s.cascadeFKs++
		}
	}
	s.viewCount = len(report.ByType(depend.DependencyView))
	s.indexCount = len(report.ByType(depend.DependencyIndex))
	s.triggerCount = len(report.ByType(depend.DependencyTrigger))
	s.checkCount = len(report.ByType(depend.DependencyConstraint))
	return s
}

func isDestructive(opType string) bool {
	switch opType {
	case "DROP_TABLE", "DROP_COLUMN", "DROP_CONSTRAINT", "DROP_INDEX":
		return true
	}
	return false
}

func (e *Engine) scoreDataLoss(op Operation, s signals) Score {
	var score float64
	var factors []string

	switch op.OperationType {
	case "DROP_TABLE", "DROP_COLUMN":
		score += 65
		factors = append(factors, fmt.Sprintf("%s permanently discards data", op.OperationType))
	case "MODIFY_COLUMN":
		score += 30
		factors = append(factors, "type change may truncate or reject existing values")
	case "DROP_CONSTRAINT", "DROP_INDEX":
		score += 20
		factors = append(factors, fmt.Sprintf("%s weakens existing guarantees", op.OperationType))
	case "RENAME_COLUMN", "RENAME_TABLE":
		score += 15
		factors = append(factors, "rename breaks consumers that resolve by name")
	default:
		score += 5
	}

	if s.cascadeFKs > 0 {
		score += 25
		factors = append(factors, fmt.Sprintf("%d CASCADE foreign key(s) propagate deletions", s.cascadeFKs))
	}
	if !op.HasBackup {
		score += 10
		factors = append(factors, "no backup recorded for this operation")
	}

	return e.categoryScore(score, "Risk of unrecoverable data loss", factors)
}

func (e *Engine) scoreAvailability(op Operation, s signals) Score {
	var score float64
	var factors []string

	if op.IsProduction {
		score += 50
		factors = append(factors, "operation targets a production environment")
	}
	if op.EstimatedRows > 0 {
		rowScore := math.Min(30, float64(op.EstimatedRows)/2000)
		score += rowScore
		factors = append(factors, fmt.Sprintf("%d estimated rows extend lock duration", op.EstimatedRows))
	}
	if op.TableSizeMB > 0 {
		score += math.Min(20, op.TableSizeMB/50)
		factors = append(factors, fmt.Sprintf("table size %.0f MB extends rewrite time", op.TableSizeMB))
	}
	if isDestructive(op.OperationType) || op.OperationType == "MODIFY_COLUMN" {
		score += 10
		factors = append(factors, "operation takes an exclusive table lock")
	}

	return e.categoryScore(score, "Risk of downtime or blocked traffic", factors)
}

func (e *Engine) scorePerformance(op Operation, s signals) Score {
	var score float64
	var factors []string

	if op.EstimatedRows > 0 {
		score += math.Min(40, float64(op.EstimatedRows)/2500)
		factors = append(factors, fmt.Sprintf("%d rows to scan or rewrite", op.EstimatedRows))
	}
	if s.indexCount > 0 {
		score += math.Min(30, float64(s.indexCount)*5)
		factors = append(factors, fmt.Sprintf("%d dependent index(es) must be maintained or rebuilt", s.indexCount))
	}
	switch op.OperationType {
	case "MODIFY_COLUMN":
		score += 20
		factors = append(factors, "type change forces a full table rewrite")
	case "DROP_COLUMN", "DROP_INDEX":
		score += 10
		factors = append(factors, "dependent query plans will change")
	}

	return e.categoryScore(score, "Risk of degraded query performance", factors)
}

func (e *Engine) scoreReferentialIntegrity(op Operation, s signals) Score {
	var score float64
	var factors []string

	if s.fkCount > 0 {
		score += math.Min(45, float64(s.fkCount)*15)
		factors = append(factors, fmt.Sprintf("%d foreign key constraint(s) reference the target", s.fkCount))
	}
	if s.cascadeFKs > 0 {
		score += 40
		factors = append(factors, "CASCADE semantics can silently delete child rows")
	}
	if s.viewCount > 0 {
		score += math.Min(15, float64(s.viewCount)*5)
		factors = append(factors, fmt.Sprintf("%d dependent view(s) will break", s.viewCount))
	}

	return e.categoryScore(score, "Risk of breaking referential integrity", factors)
}

func (e *Engine) scoreRollbackability(op Operation, s signals) Score {
	var score float64
	var factors []string

	switch {
	case isDestructive(op.OperationType):
		score += 70
		factors = append(factors, "dropped data cannot be restored by reverse DDL")
	case op.OperationType == "MODIFY_COLUMN":
		score += 30
		factors = append(factors, "lossy type conversions cannot be reversed exactly")
	default:
		score += 10
	}
	if !op.HasBackup {
		score += 30
		factors = append(factors, "no backup to restore from if rollback fails")
	}

	return e.categoryScore(score, "Risk that the operation cannot be undone", factors)
}

func (e *Engine) categoryScore(score float64, description string, factors []string) Score {
	score = clamp(score)
	return Score{
		Score:       score,
		Level:       e.LevelFor(score),
		Description: description,
		Factors:     factors,
	}
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
