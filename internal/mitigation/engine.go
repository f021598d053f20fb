// Package mitigation turns a risk assessment into concrete, prioritized
// mitigation strategies and phases them into a risk reduction roadmap.
package mitigation

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/safemigrate/safemigrate/internal/config"
	"github.com/safemigrate/safemigrate/internal/errdefs"
	"github.com/safemigrate/safemigrate/internal/risk"
)

// Engine generates and prioritizes mitigation strategies.
type Engine struct {
	cfg config.RiskConfig
	log zerolog.Logger
}

// NewEngine creates a mitigation engine using the same risk config the
// scoring engine runs with.
func NewEngine(cfg config.RiskConfig, log zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, log: log.With().Str("component", "mitigation").Logger()}
}

var levelRank = map[risk.Level]int{
	risk.LevelLow:      0,
	risk.LevelMedium:   1,
	risk.LevelHigh:     2,
	risk.LevelCritical: 3,
}

// GenerateMitigationStrategies instantiates every registered template that
// targets a non-trivial risk category of the assessment. Cross-category
// templates join only for CRITICAL overall risk; ENTERPRISE-complexity
// templates additionally require enterprise strategies to be enabled.
// Results are deduplicated by name, first occurrence wins.
func (e *Engine) GenerateMitigationStrategies(assessment *risk.Assessment) ([]Strategy, error) {
	if assessment == nil {
		return nil, errdefs.ValidationError.New("risk assessment is required")
	}

	flagged := make(map[risk.Category]bool)
	for category, score := range assessment.Categories {
		if score.Score > e.cfg.LowUpperBound {
			flagged[category] = true
		}
	}

	critical := assessment.Level == risk.LevelCritical
	seen := make(map[string]bool)
	var strategies []Strategy

	for _, tpl := range registry {
		if tpl.crossCategory && !critical {
			continue
		}
		if tpl.enterprise && !(critical && e.cfg.EnterpriseEnabled) {
			continue
		}
		if !targetsAny(tpl.Strategy, flagged) {
			continue
		}
		if seen[tpl.Name] {
			continue
		}
		seen[tpl.Name] = true
		strategies = append(strategies, instantiate(tpl.Strategy))
	}

	e.log.Debug().
		Str("operation_id", assessment.OperationID).
		Str("level", string(assessment.Level)).
		Int("strategies", len(strategies)).
		Msg("generated mitigation strategies")

	return strategies, nil
}

func targetsAny(s Strategy, flagged map[risk.Category]bool) bool {
	for _, c := range s.RiskCategories {
		if flagged[c] {
			return true
		}
	}
	return false
}

func instantiate(s Strategy) Strategy {
	s.ID = uuid.NewString()
	effort := s.EstimatedEffortHours
	if effort < 1 {
		effort = 1
	}
	s.CostBenefitRatio = s.RiskReductionPotential / effort
	return s
}

// PrioritizeMitigationActions orders strategies by priority, then by
// effectiveness score, then by name for a stable total order, and attaches
// per-strategy effectiveness assessments and plan-level totals.
func (e *Engine) PrioritizeMitigationActions(strategies []Strategy, constraints *Constraints) *PrioritizedPlan {
	ordered := make([]Strategy, len(strategies))
	copy(ordered, strategies)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := priorityRank[ordered[i].Priority], priorityRank[ordered[j].Priority]
		if ri != rj {
			return ri > rj
		}
		ei, ej := ordered[i].EffectivenessScore(), ordered[j].EffectivenessScore()
		if ei != ej {
			return ei > ej
		}
		return ordered[i].Name < ordered[j].Name
	})

	plan := &PrioritizedPlan{
		Strategies:    ordered,
		Effectiveness: make(map[string]EffectivenessAssessment, len(ordered)),
	}

	remainingRisk := 1.0
	for _, s := range ordered {
		plan.Effectiveness[s.ID] = e.ValidateMitigationEffectiveness(s, constraints)
		plan.TotalEstimatedEffortHours += s.EstimatedEffortHours
		remainingRisk *= 1 - (s.RiskReductionPotential/100)*(s.SuccessProbability/100)
	}
	plan.ProjectedRiskReduction = (1 - remainingRisk) * 100

	return plan
}

// ValidateMitigationEffectiveness grades one strategy against the team's
// constraints. Feasibility starts at 100 and degrades when the strategy
// exceeds the hour budget or the team is too small for its complexity.
func (e *Engine) ValidateMitigationEffectiveness(s Strategy, constraints *Constraints) EffectivenessAssessment {
	assessment := EffectivenessAssessment{
		StrategyID:                s.ID,
		EffectivenessScore:        s.EffectivenessScore(),
		ImplementationFeasibility: 100,
	}
	if constraints == nil {
		return assessment
	}

	if constraints.BudgetHours > 0 && s.EstimatedEffortHours > constraints.BudgetHours {
		assessment.ImplementationFeasibility = 100 * constraints.BudgetHours / s.EstimatedEffortHours
		assessment.Notes = append(assessment.Notes,
			fmt.Sprintf("estimated %.0fh exceeds the %.0fh budget", s.EstimatedEffortHours, constraints.BudgetHours))
	}
	if constraints.TeamSize > 0 {
		limit := 100.0
		switch s.Complexity {
		case ComplexityEnterprise:
			if constraints.TeamSize < 5 {
				limit = 60
			}
		case ComplexityComplex:
			if constraints.TeamSize < 3 {
				limit = 70
			}
		}
		if assessment.ImplementationFeasibility > limit {
			assessment.ImplementationFeasibility = limit
			assessment.Notes = append(assessment.Notes,
				fmt.Sprintf("%s complexity strains a team of %d", s.Complexity, constraints.TeamSize))
		}
	}
	return assessment
}

// phaseOrder fixes roadmap phase names per priority tier.
var phaseOrder = []struct {
	priority Priority
	name     string
	criteria []string
}{
	{PriorityCritical, "Critical Risk Mitigation", []string{"Backups verified", "Rollback path proven"}},
	{PriorityHigh, "High Risk Mitigation", []string{"All safety checks pass on a rehearsal run"}},
	{PriorityMedium, "Medium Risk Mitigation", []string{"Monitoring shows no regression for 24 hours"}},
	{PriorityLow, "Low Risk Mitigation", []string{"Plan documentation reviewed and archived"}},
}

// CreateRiskReductionRoadmap phases a prioritized plan toward a target
// level. The total duration always equals the sum of phase durations.
func (e *Engine) CreateRiskReductionRoadmap(assessment *risk.Assessment, target risk.Level, plan *PrioritizedPlan) (*Roadmap, error) {
	if assessment == nil || plan == nil {
		return nil, errdefs.ValidationError.New("assessment and plan are required")
	}
	if levelRank[target] >= levelRank[assessment.Level] {
		return nil, errdefs.ValidationError.New(
			"target level %s is not below current level %s", target, assessment.Level)
	}

	roadmap := &Roadmap{
		CurrentLevel: assessment.Level,
		TargetLevel:  target,
	}

	byPriority := make(map[Priority][]Strategy)
	for _, s := range plan.Strategies {
		byPriority[s.Priority] = append(byPriority[s.Priority], s)
	}

	for _, tier := range phaseOrder {
		members := byPriority[tier.priority]
		if len(members) == 0 {
			continue
		}
		phase := Phase{
			Name:            tier.name,
			SuccessCriteria: tier.criteria,
		}
		for _, s := range members {
			phase.StrategyIDs = append(phase.StrategyIDs, s.ID)
			phase.EstimatedDuration += s.EstimatedEffortHours
		}
		roadmap.Phases = append(roadmap.Phases, phase)
		roadmap.EstimatedTotalDuration += phase.EstimatedDuration
		roadmap.Milestones = append(roadmap.Milestones, Milestone{
			Name:        fmt.Sprintf("%s complete", tier.name),
			PhaseIndex:  len(roadmap.Phases) - 1,
			Description: fmt.Sprintf("All %d strategies in %q are implemented and verified", len(members), tier.name),
		})
	}

	switch assessment.Level {
	case risk.LevelCritical:
		roadmap.StakeholderApprovals = []string{"Database administration", "Engineering management"}
	case risk.LevelHigh:
		roadmap.StakeholderApprovals = []string{"Database administration"}
	}

	return roadmap, nil
}
