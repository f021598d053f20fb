package identifier

import (
	"strings"
	"testing"
)

func TestValid_AcceptsOrdinaryIdentifiers(t *testing.T) {
	for _, name := range []string{"users", "user_accounts", "_internal", "t1", "Orders"} {
		if !Valid(name) {
			t.Errorf("Expected %q to be valid", name)
		}
	}
}

func TestValid_RejectsInjectionAttempts(t *testing.T) {
	attempts := []string{
		"'; DROP TABLE users; --",
		"users; DROP TABLE users",
		"users--",
		`users"`,
		"users table",
		"1users",
		"",
	}
	for _, name := range attempts {
		if Valid(name) {
			t.Errorf("Expected %q to be rejected", name)
		}
	}
}

func TestValid_RejectsOverlongIdentifiers(t *testing.T) {
	name := strings.Repeat("a", MaxLength+1)
	if Valid(name) {
		t.Errorf("Expected %d-char identifier to be rejected", len(name))
	}
	if !Valid(strings.Repeat("a", MaxLength)) {
		t.Errorf("Expected %d-char identifier to be accepted", MaxLength)
	}
}

func TestValidate_ErrorNamesTheRole(t *testing.T) {
	err := Validate("table", "bad name")
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if !strings.Contains(err.Error(), "table") {
		t.Errorf("Expected error to mention the role, got: %v", err)
	}
}

func TestValidSQL(t *testing.T) {
	if !ValidSQL("SELECT id, email FROM users") {
		t.Error("Expected valid SQL to parse")
	}
	if ValidSQL("SELEC id FROM users WHERE") {
		t.Error("Expected malformed SQL to be rejected")
	}
}
