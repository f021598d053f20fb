// Package docschema validates migration documents against the embedded JSON
// Schema before they are decoded. Validation catches typos (extra fields,
// wrong types, unknown operation types) with pointed messages instead of
// silently dropping fields during unmarshalling.
package docschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/safemigrate/safemigrate/internal/errdefs"
	"github.com/safemigrate/safemigrate/internal/orchestrator"
)

//go:embed migration.schema.json
var migrationSchema string

// ValidateMigrationDocument checks raw JSON against the migration document
// schema. It returns a single error listing every violation.
func ValidateMigrationDocument(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(migrationSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return errdefs.ValidationError.Wrap(err, "failed to run schema validation")
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return errdefs.ValidationError.New("migration document is invalid:\n  - %s",
		strings.Join(problems, "\n  - "))
}

// ParseMigration validates and decodes a migration document. Unknown fields
// are rejected so a misspelled key never silently disappears.
func ParseMigration(data []byte) (*orchestrator.Migration, error) {
	if err := ValidateMigrationDocument(data); err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	var migration orchestrator.Migration
	if err := decoder.Decode(&migration); err != nil {
		return nil, errdefs.ValidationError.Wrap(err, "failed to decode migration document")
	}
	return &migration, nil
}

// LoadMigration reads and parses a migration document from disk.
func LoadMigration(path string) (*orchestrator.Migration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.ValidationError.Wrap(err, "failed to read migration document %s", path)
	}
	return ParseMigration(data)
}
