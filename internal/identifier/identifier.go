// Package identifier validates table and column names before they are
// embedded in DDL. Names arriving from callers are never trusted: anything
// outside the allow-list pattern is rejected before query construction, so
// injection attempts fail validation instead of reaching the database.
package identifier

import (
	"regexp"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/safemigrate/safemigrate/internal/errdefs"
)

// MaxLength matches the PostgreSQL identifier limit (NAMEDATALEN - 1).
const MaxLength = 63

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Valid reports whether the name is a safe unquoted SQL identifier.
func Valid(name string) bool {
	if name == "" || len(name) > MaxLength {
		return false
	}
	return identifierRe.MatchString(name)
}

// Validate returns a typed validation error for unsafe identifiers. The
// kind argument names the identifier's role in the error message ("table",
// "column", "schema").
func Validate(kind, name string) error {
	if !Valid(name) {
		return errdefs.ValidationError.New("invalid %s identifier: %q", kind, name)
	}
	return nil
}

// ValidateAll validates a set of role/name pairs and returns the first
// failure.
func ValidateAll(pairs map[string]string) error {
	for kind, name := range pairs {
		if err := Validate(kind, name); err != nil {
			return err
		}
	}
	return nil
}

// ValidSQL reports whether the statement parses as PostgreSQL SQL. It is
// used to reject malformed view and trigger definitions before any rewrite
// is attempted.
func ValidSQL(sql string) bool {
	_, err := pg_query.Parse(sql)
	return err == nil
}
