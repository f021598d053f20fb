// Package orchestrator coordinates migration execution: safety validation,
// checkpointed execution plans, schema-locked execution, and reverse-order
// rollback on failure.
//
// Lifecycle per migration: PENDING -> VALIDATING -> PLANNING -> EXECUTING
// -> COMMITTED, ROLLED_BACK or FAILED.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/safemigrate/safemigrate/database"
	"github.com/safemigrate/safemigrate/internal/concurrent"
	"github.com/safemigrate/safemigrate/internal/errdefs"
	"github.com/safemigrate/safemigrate/internal/identifier"
)

// perOperationEstimateMS is the planning-time duration guess per operation.
const perOperationEstimateMS = 500

// Engine is the top-level migration coordinator.
type Engine struct {
	conn        database.ConnectionManager
	locks       *concurrent.LockManager
	versions    VersionLog
	lockTimeout time.Duration
	log         zerolog.Logger

	mu     sync.Mutex
	states map[string]State
}

// NewEngine creates an orchestration engine. Nil collaborators are API
// misuse.
func NewEngine(conn database.ConnectionManager, locks *concurrent.LockManager, versions VersionLog, lockTimeout time.Duration, log zerolog.Logger) *Engine {
	if conn == nil || locks == nil || versions == nil {
		panic("orchestrator: connection manager, lock manager and version log are required")
	}
	return &Engine{
		conn:        conn,
		locks:       locks,
		versions:    versions,
		lockTimeout: lockTimeout,
		log:         log.With().Str("component", "orchestrator").Logger(),
		states:      make(map[string]State),
	}
}

// StateOf reports the lifecycle state of a migration version, PENDING for
// versions the engine has not seen.
func (e *Engine) StateOf(version string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if state, ok := e.states[version]; ok {
		return state
	}
	return StatePending
}

func (e *Engine) setState(version string, state State) {
	e.mu.Lock()
	e.states[version] = state
	e.mu.Unlock()
}

// ValidateMigrationSafety checks a migration before planning. Ordinary
// violations come back as IsValid=false with explicit error strings; this
// method never fails with a Go error for them.
func (e *Engine) ValidateMigrationSafety(m *Migration) ValidationResult {
	result := ValidationResult{IsValid: true}
	if m == nil {
		return ValidationResult{IsValid: false, Errors: []string{"migration is required"}}
	}
	e.setState(m.Version, StateValidating)

	if m.Version == "" {
		result.addError("migration version is required")
	}
	if err := identifier.Validate("schema", m.SchemaName); err != nil {
		result.addError(err.Error())
	}
	if len(m.Operations) == 0 {
		result.addError("migration has no operations")
	}

	for _, dep := range m.Dependencies {
		if !e.versions.IsApplied(dep) {
			result.addError(fmt.Sprintf("unmet dependencies: version %q has not been applied", dep))
		}
	}

	for i, op := range m.Operations {
		if err := identifier.Validate("table", op.TableName); err != nil {
			result.addError(fmt.Sprintf("operation %d: %v", i+1, err))
			continue
		}
		if op.ColumnName != "" {
			if err := identifier.Validate("column", op.ColumnName); err != nil {
				result.addError(fmt.Sprintf("operation %d: %v", i+1, err))
			}
		}
		if op.OperationType == TypeDropTable {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("operation %d drops table %q: data loss is permanent", i+1, op.TableName))
		}
	}

	switch m.RiskLevel {
	case "HIGH", "CRITICAL":
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("migration is rated %s risk; review the mitigation plan before applying", m.RiskLevel))
	}

	if !result.IsValid {
		e.setState(m.Version, StateFailed)
	}
	return result
}

func (r *ValidationResult) addError(message string) {
	r.IsValid = false
	r.Errors = append(r.Errors, message)
}

// CreateExecutionPlan inserts a checkpoint before every risky operation and
// grades the plan's rollback capability: full when every operation carries
// rollback SQL, partial when some do, none when none do.
func (e *Engine) CreateExecutionPlan(m *Migration) (*ExecutionPlan, error) {
	if m == nil || len(m.Operations) == 0 {
		return nil, errdefs.ValidationError.New("migration with at least one operation is required")
	}
	e.setState(m.Version, StatePlanning)

	plan := &ExecutionPlan{
		Migration:           m,
		EstimatedDurationMS: int64(len(m.Operations)) * perOperationEstimateMS,
	}

	withRollback := 0
	for i, op := range m.Operations {
		if riskyTypes[op.OperationType] {
			plan.Checkpoints = append(plan.Checkpoints, Checkpoint{
				CheckpointID:   uuid.NewString(),
				OperationIndex: i,
				Description:    fmt.Sprintf("before %s on %s", op.OperationType, op.TableName),
			})
		}
		if op.RollbackSQL != "" {
			withRollback++
		}
	}

	switch {
	case withRollback == len(m.Operations):
		plan.RollbackStrategy = RollbackFull
	case withRollback > 0:
		plan.RollbackStrategy = RollbackPartial
	default:
		plan.RollbackStrategy = RollbackNone
	}
	return plan, nil
}

// ExecuteMigration validates, locks the schema, and runs the migration's
// operations strictly in order, checkpointing before each risky one. Any
// failure stops execution, rolls back completed operations in reverse
// order, and is reported in the result rather than raised. The schema lock
// is released on every path.
func (e *Engine) ExecuteMigration(ctx context.Context, m *Migration) *MigrationResult {
	started := time.Now()
	result := &MigrationResult{}
	if m != nil {
		result.MigrationVersion = m.Version
	}
	finish := func() *MigrationResult {
		result.ExecutionTimeMS = time.Since(started).Milliseconds()
		return result
	}

	validation := e.ValidateMigrationSafety(m)
	if !validation.IsValid {
		result.ErrorMessage = fmt.Sprintf("validation failed: %v", validation.Errors)
		return finish()
	}

	if !e.locks.AcquireMigrationLock(ctx, m.SchemaName, e.lockTimeout) {
		result.ErrorMessage = fmt.Sprintf("concurrent migration in progress for schema %q", m.SchemaName)
		return finish()
	}
	defer e.locks.ReleaseMigrationLock(ctx, m.SchemaName)

	e.setState(m.Version, StateExecuting)
	if err := e.runOperations(ctx, m, result, 0); err != nil {
		return finish()
	}

	if err := e.versions.MarkApplied(m.Version); err != nil {
		e.log.Warn().Err(err).Str("version", m.Version).Msg("failed to record applied version")
	}
	e.setState(m.Version, StateCommitted)
	result.Success = true
	return finish()
}

// runOperations executes operations in order, rolling back to floorIndex on
// failure. It fills in the result's counters and error message and returns
// a non-nil error only to signal that execution stopped early.
func (e *Engine) runOperations(ctx context.Context, m *Migration, result *MigrationResult, floorIndex int) error {
	for i, op := range m.Operations {
		if riskyTypes[op.OperationType] {
			result.CheckpointsCreated++
			e.log.Debug().
				Str("version", m.Version).
				Int("operation", i+1).
				Str("type", string(op.OperationType)).
				Msg("checkpoint created")
		}

		if err := e.conn.ExecuteQuery(ctx, op.SQLCommand); err != nil {
			result.ErrorMessage = fmt.Sprintf("operation %d (%s on %s) failed: %v",
				i+1, op.OperationType, op.TableName, err)
			e.log.Error().
				Str("version", m.Version).
				Int("executed", result.ExecutedOperations).
				Msg("migration failed; rolling back completed operations")
			e.rollbackRange(ctx, m, i-1, floorIndex)
			e.setState(m.Version, StateRolledBack)
			return errdefs.ExecutionError.Wrap(err, "migration %s stopped at operation %d", m.Version, i+1)
		}
		result.ExecutedOperations++
	}
	return nil
}

// rollbackRange undoes operations [floor..from] in reverse order using
// their rollback SQL. Rollback failures are logged, not raised: there is no
// safer state to move to from here.
func (e *Engine) rollbackRange(ctx context.Context, m *Migration, from, floor int) {
	for i := from; i >= floor; i-- {
		op := m.Operations[i]
		if op.RollbackSQL == "" {
			e.log.Warn().
				Str("version", m.Version).
				Int("operation", i+1).
				Msg("no rollback SQL; skipping")
			continue
		}
		if err := e.conn.ExecuteQuery(ctx, op.RollbackSQL); err != nil {
			e.log.Error().Err(err).
				Str("version", m.Version).
				Int("operation", i+1).
				Msg("rollback statement failed")
		}
	}
}

// ExecuteWithRollback runs a prepared plan; on failure it rolls back to the
// last checkpoint preceding the failed operation and surfaces the original
// error message unchanged.
func (e *Engine) ExecuteWithRollback(ctx context.Context, plan *ExecutionPlan) *MigrationResult {
	started := time.Now()
	result := &MigrationResult{}
	if plan == nil || plan.Migration == nil {
		result.ErrorMessage = "execution plan with a migration is required"
		return result
	}
	m := plan.Migration
	result.MigrationVersion = m.Version
	finish := func() *MigrationResult {
		result.ExecutionTimeMS = time.Since(started).Milliseconds()
		return result
	}

	if !e.locks.AcquireMigrationLock(ctx, m.SchemaName, e.lockTimeout) {
		result.ErrorMessage = fmt.Sprintf("concurrent migration in progress for schema %q", m.SchemaName)
		return finish()
	}
	defer e.locks.ReleaseMigrationLock(ctx, m.SchemaName)

	e.setState(m.Version, StateExecuting)
	for i, op := range m.Operations {
		if riskyTypes[op.OperationType] {
			result.CheckpointsCreated++
		}
		if err := e.conn.ExecuteQuery(ctx, op.SQLCommand); err != nil {
			originalError := fmt.Sprintf("operation %d (%s on %s) failed: %v",
				i+1, op.OperationType, op.TableName, err)
			floor := lastCheckpointBefore(plan, i)
			e.rollbackRange(ctx, m, i-1, floor)
			e.setState(m.Version, StateRolledBack)
			result.ErrorMessage = originalError
			return finish()
		}
		result.ExecutedOperations++
	}

	if err := e.versions.MarkApplied(m.Version); err != nil {
		e.log.Warn().Err(err).Str("version", m.Version).Msg("failed to record applied version")
	}
	e.setState(m.Version, StateCommitted)
	result.Success = true
	return finish()
}

// lastCheckpointBefore returns the operation index of the last checkpoint
// at or before the failed operation, or 0 when none exists.
func lastCheckpointBefore(plan *ExecutionPlan, failedIndex int) int {
	floor := 0
	for _, cp := range plan.Checkpoints {
		if cp.OperationIndex <= failedIndex && cp.OperationIndex > floor {
			floor = cp.OperationIndex
		}
	}
	return floor
}
