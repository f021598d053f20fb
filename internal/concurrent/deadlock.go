package concurrent

import (
	"sort"
	"strings"
)

// DeadlockScenario captures one detected lock-wait cycle. Schemas lists the
// cycle members in traversal order starting from the lexicographically
// smallest schema; Processes holds the corresponding lock holders.
type DeadlockScenario struct {
	Schemas   []string   `json:"schemas"`
	Processes []string   `json:"processes"`
	Locks     []LockInfo `json:"locks"`
}

// ResolutionStrategy names how a detected deadlock should be broken.
type ResolutionStrategy string

const (
	ResolveAbortYoungest ResolutionStrategy = "ABORT_YOUNGEST"
	ResolveTimeoutBased  ResolutionStrategy = "TIMEOUT_BASED"
	ResolvePriorityBased ResolutionStrategy = "PRIORITY_BASED"
)

// Resolution pairs a strategy with the schema chosen as the victim.
type Resolution struct {
	Strategy     ResolutionStrategy `json:"strategy"`
	VictimSchema string             `json:"victim_schema"`
}

// DeadlockDetector finds cycles in the wait-for graph built from held locks.
type DeadlockDetector struct{}

// NewDeadlockDetector creates a detector.
func NewDeadlockDetector() *DeadlockDetector {
	return &DeadlockDetector{}
}

// DetectPotentialDeadlock builds the wait-for graph from each LockInfo's
// dependency list and reports every simple cycle exactly once. The graph is
// an adjacency map keyed by schema name; detection is DFS with a recursion
// stack.
func (d *DeadlockDetector) DetectPotentialDeadlock(currentLocks map[string]LockInfo) []DeadlockScenario {
	adjacency := make(map[string][]string, len(currentLocks))
	schemas := make([]string, 0, len(currentLocks))
	for schema, info := range currentLocks {
		schemas = append(schemas, schema)
		for _, dep := range info.Dependencies {
			if _, held := currentLocks[dep]; held {
				adjacency[schema] = append(adjacency[schema], dep)
			}
		}
	}
	sort.Strings(schemas)
	for _, deps := range adjacency {
		sort.Strings(deps)
	}

	seen := make(map[string]bool)
	var scenarios []DeadlockScenario

	var stack []string
	onStack := make(map[string]int)

	var visit func(schema string)
	visit = func(schema string) {
		if pos, ok := onStack[schema]; ok {
			cycle := append([]string(nil), stack[pos:]...)
			key := canonicalCycleKey(cycle)
			if !seen[key] {
				seen[key] = true
				scenarios = append(scenarios, buildScenario(cycle, currentLocks))
			}
			return
		}
		onStack[schema] = len(stack)
		stack = append(stack, schema)
		for _, next := range adjacency[schema] {
			visit(next)
		}
		stack = stack[:len(stack)-1]
		delete(onStack, schema)
	}

	for _, schema := range schemas {
		visit(schema)
	}
	return scenarios
}

// canonicalCycleKey rotates the cycle so it starts at its smallest member,
// making the same cycle discovered from different entry points compare
// equal.
func canonicalCycleKey(cycle []string) string {
	rotated := rotateToSmallest(cycle)
	return strings.Join(rotated, "\x00")
}

func rotateToSmallest(cycle []string) []string {
	if len(cycle) == 0 {
		return cycle
	}
	min := 0
	for i, s := range cycle {
		if s < cycle[min] {
			min = i
		}
	}
	rotated := make([]string, 0, len(cycle))
	rotated = append(rotated, cycle[min:]...)
	rotated = append(rotated, cycle[:min]...)
	return rotated
}

func buildScenario(cycle []string, locks map[string]LockInfo) DeadlockScenario {
	ordered := rotateToSmallest(cycle)
	scenario := DeadlockScenario{Schemas: ordered}
	for _, schema := range ordered {
		info := locks[schema]
		scenario.Processes = append(scenario.Processes, info.HolderProcessID)
		scenario.Locks = append(scenario.Locks, info)
	}
	return scenario
}

// ResolveDeadlock picks a victim. Two-party cycles abort the youngest lock;
// longer chains fall back to timeout-based resolution, victimizing the
// oldest waiter so the rest of the chain can drain.
func (d *DeadlockDetector) ResolveDeadlock(scenario DeadlockScenario) Resolution {
	if len(scenario.Locks) == 0 {
		return Resolution{Strategy: ResolveTimeoutBased}
	}

	if len(scenario.Schemas) == 2 {
		youngest := scenario.Locks[0]
		for _, info := range scenario.Locks[1:] {
			if info.AcquiredAt.After(youngest.AcquiredAt) {
				youngest = info
			}
		}
		return Resolution{Strategy: ResolveAbortYoungest, VictimSchema: youngest.SchemaName}
	}

	oldest := scenario.Locks[0]
	for _, info := range scenario.Locks[1:] {
		if info.AcquiredAt.Before(oldest.AcquiredAt) {
			oldest = info
		}
	}
	return Resolution{Strategy: ResolveTimeoutBased, VictimSchema: oldest.SchemaName}
}
