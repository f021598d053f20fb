package mitigation

import "github.com/safemigrate/safemigrate/internal/risk"

// Category groups strategies by the kind of action they take.
type Category string

const (
	CategoryImmediateRiskReduction Category = "IMMEDIATE_RISK_REDUCTION"
	CategorySafetyEnhancements     Category = "SAFETY_ENHANCEMENTS"
	CategoryMonitoringDetection    Category = "MONITORING_DETECTION"
	CategoryProcessImprovements    Category = "PROCESS_IMPROVEMENTS"
)

// Priority orders strategies within a plan.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// priorityRank gives CRITICAL the highest rank for sorting.
var priorityRank = map[Priority]int{
	PriorityCritical: 3,
	PriorityHigh:     2,
	PriorityMedium:   1,
	PriorityLow:      0,
}

// Complexity grades implementation difficulty.
type Complexity string

const (
	ComplexitySimple     Complexity = "SIMPLE"
	ComplexityModerate   Complexity = "MODERATE"
	ComplexityComplex    Complexity = "COMPLEX"
	ComplexityEnterprise Complexity = "ENTERPRISE"
)

// Strategy is one concrete mitigation action instantiated against a risk
// assessment. Strategies are immutable once generated and deduplicated by
// Name.
type Strategy struct {
	ID                       string          `json:"id"`
	Name                     string          `json:"name"`
	Description              string          `json:"description"`
	Category                 Category        `json:"category"`
	Priority                 Priority        `json:"priority"`
	Complexity               Complexity      `json:"complexity"`
	RiskCategories           []risk.Category `json:"risk_categories"`
	RiskReductionPotential   float64         `json:"risk_reduction_potential"`
	ImplementationComplexity float64         `json:"implementation_complexity"`
	CostBenefitRatio         float64         `json:"cost_benefit_ratio"`
	SuccessProbability       float64         `json:"success_probability"`
	EstimatedEffortHours     float64         `json:"estimated_effort_hours"`
}

// Targets reports whether the strategy addresses the risk category.
func (s Strategy) Targets(c risk.Category) bool {
	for _, rc := range s.RiskCategories {
		if rc == c {
			return true
		}
	}
	return false
}

// EffectivenessScore is the deterministic ranking key used within equal
// priority: expected reduction discounted by implementation drag.
func (s Strategy) EffectivenessScore() float64 {
	return s.RiskReductionPotential*(s.SuccessProbability/100) - s.ImplementationComplexity*0.25
}

// EffectivenessAssessment grades one strategy in the context of a plan.
type EffectivenessAssessment struct {
	StrategyID                string   `json:"strategy_id"`
	EffectivenessScore        float64  `json:"effectiveness_score"`
	ImplementationFeasibility float64  `json:"implementation_feasibility"`
	Notes                     []string `json:"notes,omitempty"`
}

// Constraints bound what a team can absorb; zero values mean unbounded.
type Constraints struct {
	BudgetHours float64 `json:"budget_hours"`
	TeamSize    int     `json:"team_size"`
}

// PrioritizedPlan is an ordered strategy list with per-strategy
// effectiveness and plan-level totals.
type PrioritizedPlan struct {
	Strategies                []Strategy                         `json:"strategies"`
	Effectiveness             map[string]EffectivenessAssessment `json:"effectiveness"`
	TotalEstimatedEffortHours float64                            `json:"total_estimated_effort_hours"`
	ProjectedRiskReduction    float64                            `json:"projected_risk_reduction"`
}

// Phase is one stage of a risk reduction roadmap.
type Phase struct {
	Name              string   `json:"name"`
	StrategyIDs       []string `json:"strategy_ids"`
	EstimatedDuration float64  `json:"estimated_duration"`
	SuccessCriteria   []string `json:"success_criteria"`
}

// Milestone is the checkpoint closing one roadmap phase.
type Milestone struct {
	Name        string `json:"name"`
	PhaseIndex  int    `json:"phase_index"`
	Description string `json:"description"`
}

// Roadmap phases prioritized strategies toward a target risk level.
type Roadmap struct {
	CurrentLevel           risk.Level  `json:"current_level"`
	TargetLevel            risk.Level  `json:"target_level"`
	Phases                 []Phase     `json:"phases"`
	EstimatedTotalDuration float64     `json:"estimated_total_duration"`
	StakeholderApprovals   []string    `json:"stakeholder_approvals"`
	Milestones             []Milestone `json:"milestones"`
}
