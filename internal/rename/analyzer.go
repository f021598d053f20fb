// Package rename coordinates multi-object table renames: it analyzes what
// a rename touches, builds a topologically ordered workflow (FK drops,
// rename, view/trigger rewrites, FK recreation), and executes it with a
// savepoint per step.
package rename

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/safemigrate/safemigrate/database"
	"github.com/safemigrate/safemigrate/internal/errdefs"
	"github.com/safemigrate/safemigrate/internal/identifier"
)

// Analyzer builds TableRenameReports from catalog metadata.
type Analyzer struct {
	catalog database.CatalogProvider
	log     zerolog.Logger
}

// NewAnalyzer creates a rename analyzer. A nil catalog is API misuse.
func NewAnalyzer(catalog database.CatalogProvider, log zerolog.Logger) *Analyzer {
	if catalog == nil {
		panic("rename: catalog provider is required")
	}
	return &Analyzer{catalog: catalog, log: log.With().Str("component", "rename").Logger()}
}

// AnalyzeTableRename collects every object a rename of oldName to newName
// touches and the table-reference graph around it. Identifiers are
// validated before any catalog query is issued.
func (a *Analyzer) AnalyzeTableRename(ctx context.Context, oldName, newName string) (*TableRenameReport, error) {
	if err := identifier.ValidateAll(map[string]string{
		"current table": oldName,
		"new table":     newName,
	}); err != nil {
		return nil, err
	}

	exists, err := a.catalog.TableExists(ctx, oldName)
	if err != nil {
		return nil, errdefs.ValidationError.Wrap(err, "failed to check table %q", oldName)
	}
	if !exists {
		return nil, errdefs.ValidationError.New("table %q does not exist", oldName)
	}
	taken, err := a.catalog.TableExists(ctx, newName)
	if err != nil {
		return nil, errdefs.ValidationError.Wrap(err, "failed to check table %q", newName)
	}
	if taken {
		return nil, errdefs.ValidationError.New("table %q already exists", newName)
	}

	report := &TableRenameReport{
		OldName:        oldName,
		NewName:        newName,
		ReferenceGraph: make(map[string][]string),
	}

	incoming, err := a.catalog.ForeignKeysReferencing(ctx, oldName, "")
	if err != nil {
		return nil, errdefs.ValidationError.Wrap(err, "failed to load foreign keys referencing %q", oldName)
	}
	sort.Slice(incoming, func(i, j int) bool { return incoming[i].Name < incoming[j].Name })
	report.IncomingFKs = incoming

	views, err := a.catalog.ViewsReferencing(ctx, oldName, "")
	if err != nil {
		return nil, errdefs.ValidationError.Wrap(err, "failed to load views referencing %q", oldName)
	}
	report.Views = views

	triggers, err := a.catalog.TriggersOn(ctx, oldName)
	if err != nil {
		return nil, errdefs.ValidationError.Wrap(err, "failed to load triggers on %q", oldName)
	}
	report.Triggers = triggers

	if err := a.buildReferenceGraph(ctx, oldName, report.ReferenceGraph); err != nil {
		return nil, err
	}

	a.log.Debug().
		Str("old", oldName).
		Str("new", newName).
		Int("incoming_fks", len(report.IncomingFKs)).
		Int("views", len(report.Views)).
		Int("triggers", len(report.Triggers)).
		Msg("table rename analyzed")
	return report, nil
}

// buildReferenceGraph walks FK edges outward from the renamed table in both
// directions so the workflow builder can detect reference cycles.
func (a *Analyzer) buildReferenceGraph(ctx context.Context, start string, graph map[string][]string) error {
	visited := make(map[string]bool)
	queue := []string{start}

	for len(queue) > 0 {
		table := queue[0]
		queue = queue[1:]
		if visited[table] {
			continue
		}
		visited[table] = true

		outgoing, err := a.catalog.ForeignKeysOn(ctx, table)
		if err != nil {
			return errdefs.ValidationError.Wrap(err, "failed to load foreign keys on %q", table)
		}
		for _, fk := range outgoing {
			graph[table] = appendUnique(graph[table], fk.ReferencedTable)
			if !visited[fk.ReferencedTable] {
				queue = append(queue, fk.ReferencedTable)
			}
		}

		incoming, err := a.catalog.ForeignKeysReferencing(ctx, table, "")
		if err != nil {
			return errdefs.ValidationError.Wrap(err, "failed to load foreign keys referencing %q", table)
		}
		for _, fk := range incoming {
			graph[fk.Table] = appendUnique(graph[fk.Table], table)
			if !visited[fk.Table] {
				queue = append(queue, fk.Table)
			}
		}
	}

	for table := range graph {
		sort.Strings(graph[table])
	}
	return nil
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
