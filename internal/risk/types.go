package risk

// Category is one independent axis of migration danger.
type Category string

const (
	CategoryDataLoss               Category = "DATA_LOSS"
	CategorySystemAvailability     Category = "SYSTEM_AVAILABILITY"
	CategoryPerformanceDegradation Category = "PERFORMANCE_DEGRADATION"
	CategoryReferentialIntegrity   Category = "REFERENTIAL_INTEGRITY"
	CategoryRollbackability        Category = "ROLLBACKABILITY"
)

// Categories lists every category in fixed presentation order.
var Categories = []Category{
	CategoryDataLoss,
	CategorySystemAvailability,
	CategoryPerformanceDegradation,
	CategoryReferentialIntegrity,
	CategoryRollbackability,
}

// Level buckets a 0-100 score. The boundaries (25/50/75) are policy
// constants carried for compatibility.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Score is one category's contribution to an assessment.
type Score struct {
	Score       float64  `json:"score"`
	Level       Level    `json:"level"`
	Description string   `json:"description"`
	Factors     []string `json:"factors,omitempty"`
}

// Assessment is the immutable result of one risk evaluation.
type Assessment struct {
	OperationID  string             `json:"operation_id"`
	OverallScore float64            `json:"overall_score"`
	Level        Level              `json:"level"`
	Categories   map[Category]Score `json:"categories"`
}

// CategoryScore returns the score for one category, zero-valued when the
// category was not assessed.
func (a *Assessment) CategoryScore(c Category) Score {
	return a.Categories[c]
}

// Operation carries the facts about a proposed change that scoring needs.
// OperationType values match the orchestrator's migration type names.
type Operation struct {
	ID            string  `json:"id"`
	OperationType string  `json:"operation_type"`
	Table         string  `json:"table"`
	Column        string  `json:"column,omitempty"`
	IsProduction  bool    `json:"is_production"`
	TableSizeMB   float64 `json:"table_size_mb"`
	EstimatedRows int64   `json:"estimated_rows"`
	HasBackup     bool    `json:"has_backup"`
}
