package docschema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validDocument = `{
  "version": "20260815_add_status",
  "schema_name": "public",
  "description": "Add a status column to users",
  "operations": [
    {
      "operation_type": "ADD_COLUMN",
      "table_name": "users",
      "column_name": "status",
      "sql_command": "ALTER TABLE users ADD COLUMN status text",
      "rollback_sql": "ALTER TABLE users DROP COLUMN status"
    }
  ],
  "dependencies": ["20260801_create_users"],
  "risk_level": "MEDIUM"
}`

func TestValidateMigrationDocument_Valid(t *testing.T) {
	if err := ValidateMigrationDocument([]byte(validDocument)); err != nil {
		t.Fatalf("Expected the document to validate, got: %v", err)
	}
}

func TestValidateMigrationDocument_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		document string
		want     string
	}{
		{
			name:     "missing version",
			document: `{"schema_name": "public", "operations": [{"operation_type": "DROP_TABLE", "table_name": "t", "sql_command": "DROP TABLE t"}]}`,
			want:     "version",
		},
		{
			name:     "empty operations",
			document: `{"version": "v1", "schema_name": "public", "operations": []}`,
			want:     "operations",
		},
		{
			name:     "unknown operation type",
			document: `{"version": "v1", "schema_name": "public", "operations": [{"operation_type": "TRUNCATE_TABLE", "table_name": "t", "sql_command": "TRUNCATE t"}]}`,
			want:     "operation_type",
		},
		{
			name:     "extra top-level field",
			document: `{"version": "v1", "schema_name": "public", "operationz": [], "operations": [{"operation_type": "DROP_TABLE", "table_name": "t", "sql_command": "DROP TABLE t"}]}`,
			want:     "operationz",
		},
		{
			name:     "bad risk level",
			document: `{"version": "v1", "schema_name": "public", "risk_level": "SEVERE", "operations": [{"operation_type": "DROP_TABLE", "table_name": "t", "sql_command": "DROP TABLE t"}]}`,
			want:     "risk_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMigrationDocument([]byte(tt.document))
			if err == nil {
				t.Fatal("Expected the document to be rejected")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected the error to mention %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestParseMigration(t *testing.T) {
	migration, err := ParseMigration([]byte(validDocument))
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if migration.Version != "20260815_add_status" {
		t.Errorf("Expected version carried through, got %q", migration.Version)
	}
	if len(migration.Operations) != 1 {
		t.Fatalf("Expected 1 operation, got %d", len(migration.Operations))
	}
	op := migration.Operations[0]
	if string(op.OperationType) != "ADD_COLUMN" || op.TableName != "users" {
		t.Errorf("Expected the ADD_COLUMN operation decoded, got %+v", op)
	}
	if len(migration.Dependencies) != 1 || migration.Dependencies[0] != "20260801_create_users" {
		t.Errorf("Expected dependencies decoded, got %v", migration.Dependencies)
	}
}

func TestParseMigration_MalformedJSON(t *testing.T) {
	if _, err := ParseMigration([]byte(`{not json`)); err == nil {
		t.Error("Expected malformed JSON to be rejected")
	}
}

func TestLoadMigration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "migration.json")
	if err := os.WriteFile(path, []byte(validDocument), 0o644); err != nil {
		t.Fatalf("Failed to write document: %v", err)
	}

	migration, err := LoadMigration(path)
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if migration.SchemaName != "public" {
		t.Errorf("Expected schema name decoded, got %q", migration.SchemaName)
	}

	if _, err := LoadMigration(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}
