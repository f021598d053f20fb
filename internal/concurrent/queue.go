package concurrent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/safemigrate/safemigrate/internal/errdefs"
	"github.com/safemigrate/safemigrate/internal/identifier"
)

// QueueStatus is the lifecycle state of a queued migration.
type QueueStatus string

const (
	StatusPending   QueueStatus = "PENDING"
	StatusCompleted QueueStatus = "COMPLETED"
	StatusFailed    QueueStatus = "FAILED"
	StatusNotFound  QueueStatus = "NOT_FOUND"
)

// MigrationRequest is one queued unit of work. Lower Priority numbers run
// first.
type MigrationRequest struct {
	SchemaName string      `json:"schema_name"`
	Operations []Operation `json:"operations"`
	Priority   int         `json:"priority"`
}

// QueueOutcome pairs a processed queue entry with its execution result.
type QueueOutcome struct {
	QueueID string        `json:"queue_id"`
	Schema  string        `json:"schema"`
	Result  *AtomicResult `json:"result"`
}

type queueItem struct {
	id      string
	request MigrationRequest
	status  QueueStatus
	seq     int
}

// Queue serializes migrations across schemas by priority. Processing takes
// the schema lock for each item so queued work and direct orchestrator runs
// never interleave on one schema.
type Queue struct {
	mu          sync.Mutex
	items       []*queueItem
	byID        map[string]*queueItem
	nextSeq     int
	locks       *LockManager
	exec        *AtomicExecutor
	lockTimeout time.Duration
	log         zerolog.Logger
}

// NewQueue creates a queue bound to a lock manager and an atomic executor.
func NewQueue(locks *LockManager, exec *AtomicExecutor, lockTimeout time.Duration, log zerolog.Logger) *Queue {
	if locks == nil || exec == nil {
		panic("concurrent: queue requires a lock manager and an executor")
	}
	return &Queue{
		byID:        make(map[string]*queueItem),
		locks:       locks,
		exec:        exec,
		lockTimeout: lockTimeout,
		log:         log.With().Str("component", "queue").Logger(),
	}
}

// EnqueueMigration adds a request and returns its queue id.
func (q *Queue) EnqueueMigration(request MigrationRequest) (string, error) {
	if err := identifier.Validate("schema", request.SchemaName); err != nil {
		return "", err
	}
	if len(request.Operations) == 0 {
		return "", errdefs.ValidationError.New("migration request has no operations")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	item := &queueItem{
		id:      uuid.NewString(),
		request: request,
		status:  StatusPending,
		seq:     q.nextSeq,
	}
	q.nextSeq++
	q.items = append(q.items, item)
	q.byID[item.id] = item

	q.log.Info().
		Str("queue_id", item.id).
		Str("schema", request.SchemaName).
		Int("priority", request.Priority).
		Msg("migration enqueued")
	return item.id, nil
}

// ProcessMigrationQueue drains all pending items strictly in priority order
// (ties broken by enqueue order) and returns one outcome per item.
func (q *Queue) ProcessMigrationQueue(ctx context.Context) []QueueOutcome {
	q.mu.Lock()
	pending := make([]*queueItem, 0, len(q.items))
	for _, item := range q.items {
		if item.status == StatusPending {
			pending = append(pending, item)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].request.Priority != pending[j].request.Priority {
			return pending[i].request.Priority < pending[j].request.Priority
		}
		return pending[i].seq < pending[j].seq
	})
	q.mu.Unlock()

	outcomes := make([]QueueOutcome, 0, len(pending))
	for _, item := range pending {
		outcomes = append(outcomes, q.processOne(ctx, item))
	}
	return outcomes
}

func (q *Queue) processOne(ctx context.Context, item *queueItem) QueueOutcome {
	schema := item.request.SchemaName

	var result *AtomicResult
	if q.locks.AcquireMigrationLock(ctx, schema, q.lockTimeout) {
		// Release via defer so a panicking executor cannot leak the lock row.
		func() {
			defer q.locks.ReleaseMigrationLock(ctx, schema)
			result = q.exec.ExecuteAtomicMigration(ctx, item.request.Operations)
		}()
	} else {
		result = &AtomicResult{
			ErrorMessage: "concurrent migration holds the lock for schema " + schema,
		}
	}

	q.mu.Lock()
	if result.Success {
		item.status = StatusCompleted
	} else {
		item.status = StatusFailed
	}
	q.mu.Unlock()

	return QueueOutcome{QueueID: item.id, Schema: schema, Result: result}
}

// GetQueueStatus reports the status of a queue entry, NOT_FOUND for unknown
// ids.
func (q *Queue) GetQueueStatus(id string) QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.byID[id]
	if !ok {
		return StatusNotFound
	}
	return item.status
}

// CancelQueuedMigration removes a still-pending entry. It returns false if
// the entry is unknown or already processed.
func (q *Queue) CancelQueuedMigration(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byID[id]
	if !ok || item.status != StatusPending {
		return false
	}
	delete(q.byID, id)
	for i, candidate := range q.items {
		if candidate.id == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	return true
}
