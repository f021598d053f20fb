package mitigation

import "github.com/safemigrate/safemigrate/internal/risk"

// template is a registered strategy blueprint. crossCategory templates are
// only instantiated for CRITICAL overall assessments; enterprise templates
// additionally require enterprise strategies to be enabled in config.
type template struct {
	Strategy
	crossCategory bool
	enterprise    bool
}

// registry holds every known strategy template in fixed order so generation
// output is deterministic.
var registry = []template{
	{
		Strategy: Strategy{
			Name:                     "Create a verified backup before the migration",
			Description:              "Take a full backup of every affected table and verify it restores cleanly before any DDL runs.",
			Category:                 CategoryImmediateRiskReduction,
			Priority:                 PriorityCritical,
			Complexity:               ComplexitySimple,
			RiskCategories:           []risk.Category{risk.CategoryDataLoss, risk.CategoryRollbackability},
			RiskReductionPotential:   70,
			ImplementationComplexity: 10,
			SuccessProbability:       98,
			EstimatedEffortHours:     2,
		},
	},
	{
		Strategy: Strategy{
			Name:                     "Schedule the migration inside a maintenance window",
			Description:              "Run the change while traffic is drained so exclusive locks cannot block user queries.",
			Category:                 CategoryImmediateRiskReduction,
			Priority:                 PriorityHigh,
			Complexity:               ComplexitySimple,
			RiskCategories:           []risk.Category{risk.CategorySystemAvailability},
			RiskReductionPotential:   60,
			ImplementationComplexity: 20,
			SuccessProbability:       95,
			EstimatedEffortHours:     3,
		},
	},
	{
		Strategy: Strategy{
			Name:                     "Wrap the migration in a transaction with savepoints",
			Description:              "Execute every step inside one transaction with a savepoint per step so a failure rolls back to a known point.",
			Category:                 CategorySafetyEnhancements,
			Priority:                 PriorityHigh,
			Complexity:               ComplexityModerate,
			RiskCategories:           []risk.Category{risk.CategoryRollbackability, risk.CategoryDataLoss},
			RiskReductionPotential:   50,
			ImplementationComplexity: 30,
			SuccessProbability:       95,
			EstimatedEffortHours:     4,
		},
	},
	{
		Strategy: Strategy{
			Name:                     "Generate and test rollback scripts in advance",
			Description:              "Produce the reverse DDL for every step and run it against a copy of the schema before the real migration.",
			Category:                 CategorySafetyEnhancements,
			Priority:                 PriorityHigh,
			Complexity:               ComplexityModerate,
			RiskCategories:           []risk.Category{risk.CategoryRollbackability},
			RiskReductionPotential:   60,
			ImplementationComplexity: 30,
			SuccessProbability:       90,
			EstimatedEffortHours:     6,
		},
	},
	{
		Strategy: Strategy{
			Name:                     "Backfill large tables in batches",
			Description:              "Split data rewrites into bounded batches with pauses so locks stay short and replication lag stays flat.",
			Category:                 CategorySafetyEnhancements,
			Priority:                 PriorityMedium,
			Complexity:               ComplexityModerate,
			RiskCategories:           []risk.Category{risk.CategoryPerformanceDegradation, risk.CategorySystemAvailability},
			RiskReductionPotential:   45,
			ImplementationComplexity: 40,
			SuccessProbability:       90,
			EstimatedEffortHours:     8,
		},
	},
	{
		Strategy: Strategy{
			Name:                     "Verify foreign key integrity after each step",
			Description:              "Run orphan-row checks against every referencing table between steps and halt on the first violation.",
			Category:                 CategoryMonitoringDetection,
			Priority:                 PriorityHigh,
			Complexity:               ComplexityModerate,
			RiskCategories:           []risk.Category{risk.CategoryReferentialIntegrity},
			RiskReductionPotential:   55,
			ImplementationComplexity: 25,
			SuccessProbability:       95,
			EstimatedEffortHours:     4,
		},
	},
	{
		Strategy: Strategy{
			Name:                     "Monitor query latency around the migration",
			Description:              "Capture per-query latency before, during and after the change and alert on regressions.",
			Category:                 CategoryMonitoringDetection,
			Priority:                 PriorityMedium,
			Complexity:               ComplexitySimple,
			RiskCategories:           []risk.Category{risk.CategoryPerformanceDegradation},
			RiskReductionPotential:   30,
			ImplementationComplexity: 15,
			SuccessProbability:       95,
			EstimatedEffortHours:     3,
		},
	},
	{
		Strategy: Strategy{
			Name:                     "Peer review the migration plan",
			Description:              "Have a second engineer walk the generated plan, its rollback path and the dependency report before approval.",
			Category:                 CategoryProcessImprovements,
			Priority:                 PriorityLow,
			Complexity:               ComplexitySimple,
			RiskCategories:           []risk.Category{risk.CategoryDataLoss, risk.CategoryReferentialIntegrity},
			RiskReductionPotential:   20,
			ImplementationComplexity: 10,
			SuccessProbability:       90,
			EstimatedEffortHours:     2,
		},
	},
	{
		Strategy: Strategy{
			Name:                     "Cut over through a blue-green schema copy",
			Description:              "Build the target schema alongside the current one, sync data, then switch readers atomically and keep the old schema as instant rollback.",
			Category:                 CategorySafetyEnhancements,
			Priority:                 PriorityCritical,
			Complexity:               ComplexityComplex,
			RiskCategories:           []risk.Category{risk.CategoryDataLoss, risk.CategorySystemAvailability, risk.CategoryRollbackability},
			RiskReductionPotential:   80,
			ImplementationComplexity: 70,
			SuccessProbability:       85,
			EstimatedEffortHours:     40,
		},
		crossCategory: true,
	},
	{
		Strategy: Strategy{
			Name:                     "Dual-write into a shadow table and verify",
			Description:              "Mirror writes into a shadow copy of the table during the transition and diff both copies continuously.",
			Category:                 CategoryMonitoringDetection,
			Priority:                 PriorityHigh,
			Complexity:               ComplexityComplex,
			RiskCategories:           []risk.Category{risk.CategoryDataLoss, risk.CategoryReferentialIntegrity},
			RiskReductionPotential:   65,
			ImplementationComplexity: 60,
			SuccessProbability:       85,
			EstimatedEffortHours:     24,
		},
		crossCategory: true,
	},
	{
		Strategy: Strategy{
			Name:                     "Rehearse the full migration in a staging clone",
			Description:              "Restore a production-sized clone, run the entire migration end to end, and measure timings before touching production.",
			Category:                 CategoryProcessImprovements,
			Priority:                 PriorityCritical,
			Complexity:               ComplexityEnterprise,
			RiskCategories:           []risk.Category{risk.CategoryDataLoss, risk.CategorySystemAvailability, risk.CategoryPerformanceDegradation},
			RiskReductionPotential:   75,
			ImplementationComplexity: 80,
			SuccessProbability:       90,
			EstimatedEffortHours:     40,
		},
		enterprise: true,
	},
	{
		Strategy: Strategy{
			Name:                     "Gate the migration behind a change-approval workflow",
			Description:              "Require sign-off from database administration and the owning team before the plan may execute in production.",
			Category:                 CategoryProcessImprovements,
			Priority:                 PriorityHigh,
			Complexity:               ComplexityEnterprise,
			RiskCategories:           []risk.Category{risk.CategoryDataLoss, risk.CategoryRollbackability},
			RiskReductionPotential:   40,
			ImplementationComplexity: 50,
			SuccessProbability:       95,
			EstimatedEffortHours:     16,
		},
		enterprise: true,
	},
}
