package orchestrator

// MigrationType enumerates every supported schema change.
type MigrationType string

const (
	TypeCreateTable    MigrationType = "CREATE_TABLE"
	TypeDropTable      MigrationType = "DROP_TABLE"
	TypeAddColumn      MigrationType = "ADD_COLUMN"
	TypeDropColumn     MigrationType = "DROP_COLUMN"
	TypeModifyColumn   MigrationType = "MODIFY_COLUMN"
	TypeRenameColumn   MigrationType = "RENAME_COLUMN"
	TypeAddIndex       MigrationType = "ADD_INDEX"
	TypeDropIndex      MigrationType = "DROP_INDEX"
	TypeAddConstraint  MigrationType = "ADD_CONSTRAINT"
	TypeDropConstraint MigrationType = "DROP_CONSTRAINT"
	TypeRenameTable    MigrationType = "RENAME_TABLE"
)

// riskyTypes get a checkpoint created before they execute.
var riskyTypes = map[MigrationType]bool{
	TypeAddColumn:      true,
	TypeDropColumn:     true,
	TypeModifyColumn:   true,
	TypeDropTable:      true,
	TypeDropConstraint: true,
	TypeRenameTable:    true,
}

// State is the migration lifecycle state.
type State string

const (
	StatePending    State = "PENDING"
	StateValidating State = "VALIDATING"
	StatePlanning   State = "PLANNING"
	StateExecuting  State = "EXECUTING"
	StateCommitted  State = "COMMITTED"
	StateRolledBack State = "ROLLED_BACK"
	StateFailed     State = "FAILED"
)

// MigrationOperation is one schema change inside a migration. RollbackSQL
// is optional; operations without it make their migration only partially
// reversible.
type MigrationOperation struct {
	OperationType MigrationType     `json:"operation_type"`
	TableName     string            `json:"table_name"`
	ColumnName    string            `json:"column_name,omitempty"`
	SQLCommand    string            `json:"sql_command"`
	RollbackSQL   string            `json:"rollback_sql,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Migration is an ordered, versioned batch of operations. Dependencies
// lists version identifiers that must already be applied. Migrations are
// never mutated after construction.
type Migration struct {
	Version      string               `json:"version"`
	SchemaName   string               `json:"schema_name"`
	Description  string               `json:"description,omitempty"`
	Operations   []MigrationOperation `json:"operations"`
	Dependencies []string             `json:"dependencies,omitempty"`
	RiskLevel    string               `json:"risk_level,omitempty"`
}

// ValidationResult is the structured outcome of safety validation.
// Ordinary validation failures populate Errors; they are never returned as
// Go errors.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Checkpoint marks a safe rollback point before a risky operation.
type Checkpoint struct {
	CheckpointID   string `json:"checkpoint_id"`
	OperationIndex int    `json:"operation_index"`
	Description    string `json:"description"`
}

// RollbackStrategy describes how much of a plan can be undone.
type RollbackStrategy string

const (
	RollbackFull    RollbackStrategy = "full"
	RollbackPartial RollbackStrategy = "partial"
	RollbackNone    RollbackStrategy = "none"
)

// ExecutionPlan pairs a migration with its checkpoints and rollback
// capability.
type ExecutionPlan struct {
	Migration           *Migration       `json:"migration"`
	Checkpoints         []Checkpoint     `json:"checkpoints"`
	EstimatedDurationMS int64            `json:"estimated_duration_ms"`
	RollbackStrategy    RollbackStrategy `json:"rollback_strategy"`
}

// MigrationResult is the outcome record for one execution. Callers depend
// on this exact shape.
type MigrationResult struct {
	Success            bool   `json:"success"`
	MigrationVersion   string `json:"migration_version"`
	ExecutedOperations int    `json:"executed_operations"`
	ExecutionTimeMS    int64  `json:"execution_time_ms"`
	CheckpointsCreated int    `json:"checkpoints_created"`
	ErrorMessage       string `json:"error_message,omitempty"`
}

// VersionLog records which migration versions have been applied. The state
// package provides the durable implementation.
type VersionLog interface {
	IsApplied(version string) bool
	MarkApplied(version string) error
}

// MemoryVersionLog is an in-process VersionLog for tests and dry runs.
type MemoryVersionLog struct {
	applied map[string]bool
}

// NewMemoryVersionLog creates an empty version log.
func NewMemoryVersionLog(applied ...string) *MemoryVersionLog {
	log := &MemoryVersionLog{applied: make(map[string]bool)}
	for _, v := range applied {
		log.applied[v] = true
	}
	return log
}

// IsApplied implements VersionLog.
func (l *MemoryVersionLog) IsApplied(version string) bool { return l.applied[version] }

// MarkApplied implements VersionLog.
func (l *MemoryVersionLog) MarkApplied(version string) error {
	l.applied[version] = true
	return nil
}
