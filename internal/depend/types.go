package depend

// DependencyType classifies a database object that depends on a column.
type DependencyType string

const (
	DependencyForeignKey DependencyType = "FOREIGN_KEY"
	DependencyView       DependencyType = "VIEW"
	DependencyIndex      DependencyType = "INDEX"
	DependencyConstraint DependencyType = "CONSTRAINT"
	DependencyTrigger    DependencyType = "TRIGGER"
)

// ImpactLevel grades how badly a dependent object breaks if the analyzed
// column changes or disappears.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "LOW"
	ImpactMedium   ImpactLevel = "MEDIUM"
	ImpactHigh     ImpactLevel = "HIGH"
	ImpactCritical ImpactLevel = "CRITICAL"
)

// RemovalRecommendation summarizes whether removing the column is safe.
type RemovalRecommendation string

const (
	RemovalSafe      RemovalRecommendation = "SAFE"
	RemovalCaution   RemovalRecommendation = "CAUTION"
	RemovalDangerous RemovalRecommendation = "DANGEROUS"
)

// Dependency is one dependent database object.
type Dependency struct {
	ObjectName string         `json:"object_name"`
	Type       DependencyType `json:"type"`
	// Definition holds the dependent object's defining SQL or expression.
	Definition string      `json:"definition,omitempty"`
	Impact     ImpactLevel `json:"impact"`
	// SourceTable is the table the dependent object lives on, where that
	// differs from the analyzed table (FK source tables, trigger tables).
	SourceTable string `json:"source_table,omitempty"`
}

// DependencyReport is the result of analyzing one (table, column) pair.
// It is constructed fresh per analysis call and never mutated afterward.
type DependencyReport struct {
	Table        string                          `json:"table"`
	Column       string                          `json:"column"`
	Dependencies map[DependencyType][]Dependency `json:"dependencies"`
}

// HasDependencies reports whether any dependent object was found.
func (r *DependencyReport) HasDependencies() bool {
	for _, deps := range r.Dependencies {
		if len(deps) > 0 {
			return true
		}
	}
	return false
}

// CriticalDependencies returns every dependency graded CRITICAL.
func (r *DependencyReport) CriticalDependencies() []Dependency {
	var critical []Dependency
	for _, depType := range orderedTypes {
		for _, dep := range r.Dependencies[depType] {
			if dep.Impact == ImpactCritical {
				critical = append(critical, dep)
			}
		}
	}
	return critical
}

// TotalDependencyCount returns the number of dependent objects across all
// dependency types.
func (r *DependencyReport) TotalDependencyCount() int {
	total := 0
	for _, deps := range r.Dependencies {
		total += len(deps)
	}
	return total
}

// ByType returns the dependencies of one type, in discovery order.
func (r *DependencyReport) ByType(t DependencyType) []Dependency {
	return r.Dependencies[t]
}

// RemovalRecommendation grades removing the column: DANGEROUS when any
// CRITICAL dependency exists, CAUTION when any HIGH dependency exists,
// SAFE otherwise.
func (r *DependencyReport) RemovalRecommendation() RemovalRecommendation {
	hasHigh := false
	for _, deps := range r.Dependencies {
		for _, dep := range deps {
			switch dep.Impact {
			case ImpactCritical:
				return RemovalDangerous
			case ImpactHigh:
				hasHigh = true
			}
		}
	}
	if hasHigh {
		return RemovalCaution
	}
	return RemovalSafe
}

// orderedTypes fixes iteration order for report consumers.
var orderedTypes = []DependencyType{
	DependencyForeignKey,
	DependencyView,
	DependencyIndex,
	DependencyConstraint,
	DependencyTrigger,
}
