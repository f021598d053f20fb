package rename

import "github.com/safemigrate/safemigrate/database"

// StepType names one phase of a rename workflow.
type StepType string

const (
	StepDropFKConstraints     StepType = "DROP_FK_CONSTRAINTS"
	StepRenameTable           StepType = "RENAME_TABLE"
	StepRewriteViews          StepType = "REWRITE_VIEWS"
	StepRewriteTriggers       StepType = "REWRITE_TRIGGERS"
	StepRecreateFKConstraints StepType = "RECREATE_FK_CONSTRAINTS"
)

// stepOrder fixes the topological position of each step type: FK drops
// strictly before the rename, rewrites after it, FK recreation last.
var stepOrder = map[StepType]int{
	StepDropFKConstraints:     0,
	StepRenameTable:           1,
	StepRewriteViews:          2,
	StepRewriteTriggers:       3,
	StepRecreateFKConstraints: 4,
}

// WorkflowStep is one DDL statement in a rename workflow.
type WorkflowStep struct {
	StepType    StepType `json:"step_type"`
	Description string   `json:"description"`
	SQLCommand  string   `json:"sql_command"`
	RollbackSQL string   `json:"rollback_sql,omitempty"`
}

// Workflow is the ordered step list coordinating a multi-object table
// rename.
type Workflow struct {
	OldName string         `json:"old_name"`
	NewName string         `json:"new_name"`
	Steps   []WorkflowStep `json:"steps"`
}

// TableRenameReport captures everything the rename touches: foreign keys
// referencing the table, views and triggers whose SQL names it, and the
// table-reference graph used for cycle detection. ReferenceGraph is an
// adjacency map from table name to the tables its foreign keys point at.
type TableRenameReport struct {
	OldName        string                          `json:"old_name"`
	NewName        string                          `json:"new_name"`
	IncomingFKs    []database.ForeignKeyConstraint `json:"incoming_fks"`
	Views          []database.ViewDefinition       `json:"views"`
	Triggers       []database.TriggerDefinition    `json:"triggers"`
	ReferenceGraph map[string][]string             `json:"reference_graph"`
}

// WorkflowResult reports a workflow execution: which steps completed, which
// failed, and what rollback actions were taken.
type WorkflowResult struct {
	Success         bool     `json:"success"`
	CompletedSteps  int      `json:"completed_steps"`
	FailedStep      string   `json:"failed_step,omitempty"`
	RollbackActions []string `json:"rollback_actions,omitempty"`
	ErrorMessage    string   `json:"error_message,omitempty"`
}
