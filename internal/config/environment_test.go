package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joomcode/errorx"

	"github.com/safemigrate/safemigrate/internal/errdefs"
)

func TestResolveEnvironment_Defaults(t *testing.T) {
	env, err := ResolveEnvironment(&Config{}, "")
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if env.Name != defaultEnvironmentName {
		t.Errorf("Expected default environment %q, got %q", defaultEnvironmentName, env.Name)
	}
	if env.DatabaseURL != defaultDatabaseURL {
		t.Errorf("Expected default database URL, got %q", env.DatabaseURL)
	}
	if env.Production {
		t.Error("Expected the default environment to be non-production")
	}
}

func TestResolveEnvironment_FromConfig(t *testing.T) {
	cfg := &Config{
		Environments: map[string]EnvironmentConfig{
			"prod": {PostgresURL: "postgres://prod/db", Production: true},
		},
	}

	env, err := ResolveEnvironment(cfg, "prod")
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if !env.FromConfig {
		t.Error("Expected FromConfig set")
	}
	if env.DatabaseURL != "postgres://prod/db" {
		t.Errorf("Expected the configured URL, got %q", env.DatabaseURL)
	}
	if !env.Production {
		t.Error("Expected the production flag carried through")
	}
}

func TestResolveEnvironment_UnknownNameRejected(t *testing.T) {
	cfg := &Config{
		Environments: map[string]EnvironmentConfig{
			"prod": {PostgresURL: "postgres://prod/db"},
		},
	}
	_, err := ResolveEnvironment(cfg, "nope")
	if err == nil {
		t.Fatal("Expected an error for an environment missing from config and dotenv")
	}
	if !errorx.IsOfType(err, errdefs.ConfigError) {
		t.Errorf("Expected a config error type, got %v", err)
	}
}

func TestResolveEnvironment_DotenvOverridesConfig(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env.staging")
	contents := "DATABASE_URL=postgres://dotenv/db\nSAFEMIGRATE_PRODUCTION=true\n"
	if err := os.WriteFile(dotenv, []byte(contents), 0o644); err != nil {
		t.Fatalf("Failed to write dotenv: %v", err)
	}

	cfg := &Config{
		ConfigFilePath: filepath.Join(dir, ConfigFile),
		Environments: map[string]EnvironmentConfig{
			"staging": {PostgresURL: "postgres://config/db"},
		},
	}

	env, err := ResolveEnvironment(cfg, "staging")
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if !env.FromDotenv {
		t.Error("Expected FromDotenv set")
	}
	if env.DatabaseURL != "postgres://dotenv/db" {
		t.Errorf("Expected the dotenv URL to win, got %q", env.DatabaseURL)
	}
	if !env.Production {
		t.Error("Expected SAFEMIGRATE_PRODUCTION=true honored")
	}
}

func TestResolveEnvironment_LibsqlAuthToken(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env.edge")
	contents := "LIBSQL_URL=libsql://db.example.turso.io\nLIBSQL_AUTH_TOKEN=tok123\n"
	if err := os.WriteFile(dotenv, []byte(contents), 0o644); err != nil {
		t.Fatalf("Failed to write dotenv: %v", err)
	}

	cfg := &Config{ConfigFilePath: filepath.Join(dir, ConfigFile)}
	env, err := ResolveEnvironment(cfg, "edge")
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	want := "libsql://db.example.turso.io?authToken=tok123"
	if env.DatabaseURL != want {
		t.Errorf("Expected %q, got %q", want, env.DatabaseURL)
	}
}
