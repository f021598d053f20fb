// Package errdefs defines the typed error taxonomy shared by the
// migration-safety engines.
//
// Validation and planning errors are normally converted into structured
// results at the public entry points; these types raise only at true
// API-misuse boundaries (nil configuration, nil connection manager) and at
// pre-flight failures where no DDL has been issued yet.
package errdefs

import "github.com/joomcode/errorx"

var (
	ErrNamespace = errorx.NewNamespace("safemigrate")

	// ValidationError covers malformed identifiers, empty operation lists
	// and unregistered dependency versions.
	ValidationError = ErrNamespace.NewType("validation")

	// ExecutionError covers a DDL statement failing mid-migration.
	ExecutionError = ErrNamespace.NewType("execution")

	// RenameCoordinationError covers rename workflow failures detected
	// before any DDL is issued.
	RenameCoordinationError = ErrNamespace.NewType("rename_coordination")

	// CircularDependencyError covers cycles in the table reference graph;
	// it is a subtype of rename coordination failure callers can match on.
	CircularDependencyError = ErrNamespace.NewType("circular_dependency")

	// ConfigError covers malformed safemigrate.toml content and references
	// to environments no config source defines.
	ConfigError = ErrNamespace.NewType("config")
)
