package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/dbfixture/logger"
	"github.com/kbukum/dbfixture/session"
)

type gadget struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadWithYAML(t *testing.T) {
	path := writeFile(t, "dbfixture.yml", `
name: fixtures
logging:
  level: debug
  format: json
database:
  dsn: file:test.db
  max_open_conns: 4
  journal_mode: WAL
  foreign_keys: true
session:
  autocommit: true
  autoflush: false
`)

	var cfg Config
	err := Load("dbfixture", &cfg, WithConfigFile(path), WithEnvPrefix("DBFIXTURE_YAML_TEST"), WithLogger(logger.NewNop()))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Name != "fixtures" {
		t.Errorf("expected name 'fixtures', got %q", cfg.Name)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.Database.DSN != "file:test.db" || cfg.Database.MaxOpenConns != 4 || !cfg.Database.ForeignKeys {
		t.Errorf("unexpected database config: %+v", cfg.Database)
	}
	if !cfg.Session.Autocommit {
		t.Error("expected session.autocommit=true")
	}
	if cfg.Session.Autoflush == nil || *cfg.Session.Autoflush {
		t.Error("expected session.autoflush=false")
	}
}

func TestLoadMissingFile(t *testing.T) {
	var cfg Config
	err := Load("nonexistent", &cfg, WithConfigFile("/nonexistent/path.yml"), WithLogger(logger.NewNop()))
	if err != nil {
		t.Fatalf("expected Load to succeed with missing file, got %v", err)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "dbfixture.yml", "database:\n  dsn: file:from-yaml.db\n")
	t.Setenv("DBFIXTURE_DATABASE_DSN", "file:from-env.db")
	t.Setenv("DBFIXTURE_SESSION_AUTOCOMMIT", "true")

	var cfg Config
	err := Load("dbfixture", &cfg, WithConfigFile(path), WithEnvPrefix("DBFIXTURE"), WithLogger(logger.NewNop()))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.DSN != "file:from-env.db" {
		t.Errorf("expected env DSN, got %q", cfg.Database.DSN)
	}
	if !cfg.Session.Autocommit {
		t.Error("expected session.autocommit from env")
	}
}

func TestLoadEnvFile(t *testing.T) {
	const key = "DBFIXTURE_TEST_ENVFILE_LOGGING_LEVEL"
	envPath := writeFile(t, ".env", key+"=error\n")
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	var cfg Config
	err := Load("dbfixture", &cfg,
		WithConfigFile("/nonexistent/path.yml"),
		WithEnvFile(envPath),
		WithEnvPrefix("DBFIXTURE_TEST_ENVFILE"),
		WithLogger(logger.NewNop()),
	)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("expected level from .env, got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaultsAndValidate(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Name != "dbfixture" {
		t.Errorf("expected default name, got %q", cfg.Name)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected default level warn, got %q", cfg.Logging.Level)
	}
	if cfg.Session.Autoflush == nil || !*cfg.Session.Autoflush {
		t.Error("expected autoflush on by default")
	}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "config.database") {
		t.Fatalf("expected database validation error, got %v", err)
	}

	cfg.Database.DSN = "file:test.db"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.Logging.Level = "loud"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "config.logging") {
		t.Errorf("expected logging validation error, got %v", err)
	}
}

func TestOpenAndNewSession(t *testing.T) {
	cfg := Config{}
	cfg.Database.DSN = "file:" + filepath.Join(t.TempDir(), "test.db")
	cfg.Database.LogLevel = "silent"
	cfg.Session.Autocommit = true
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	log := logger.NewNop()
	db, err := cfg.Open(context.Background(), log)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := cfg.NewSession(db.GormDB, log)
	if !s.Autocommit() {
		t.Error("expected autocommit session")
	}
	if !s.Autoflush() {
		t.Error("expected autoflush session")
	}
	if cfg.Logger() == nil {
		t.Error("expected a logger")
	}
}

func TestResolverWithMockFS(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./testdata/dbfixture.yml": true,
		"../config.yml":            true,
		"../.env":                  true,
	}}
	resolver := &Resolver{FileSystem: fs}
	files := resolver.ResolveFiles("dbfixture", LoaderConfig{})
	if files.ConfigFile != "./testdata/dbfixture.yml" {
		t.Errorf("expected ./testdata/dbfixture.yml, got %q", files.ConfigFile)
	}
	if files.EnvFile != "../.env" {
		t.Errorf("expected ../.env, got %q", files.EnvFile)
	}

	files = resolver.ResolveFiles("dbfixture", LoaderConfig{ConfigFile: "explicit.yml"})
	if files.ConfigFile != "explicit.yml" {
		t.Errorf("expected explicit path, got %q", files.ConfigFile)
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool  { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error { return nil }

func TestGenerateEnvKeyVariants(t *testing.T) {
	variants := generateEnvKeyVariants("DATABASE_MAX_OPEN_CONNS")
	for _, want := range []string{"database.max_open_conns", "database_max_open_conns"} {
		found := false
		for _, v := range variants {
			if v == want {
				found = true
			}
		}
		if !found {
			t.Errorf("expected variant %q in %v", want, variants)
		}
	}
	if got := generateEnvKeyVariants("NAME"); len(got) != 1 || got[0] != "name" {
		t.Errorf("unexpected variants for single word: %v", got)
	}
}

func TestLoaderOptions(t *testing.T) {
	var lc LoaderConfig
	WithFileSystem(&mockFS{})(&lc)
	WithConfigFile("/path/to/config.yml")(&lc)
	WithEnvFile("/path/to/.env")(&lc)
	WithEnvPrefix("APP_")(&lc)

	if lc.FileSystem == nil {
		t.Error("expected FileSystem to be set")
	}
	if lc.ConfigFile != "/path/to/config.yml" || lc.EnvFile != "/path/to/.env" {
		t.Errorf("unexpected paths: %+v", lc)
	}
	if lc.EnvPrefix != "APP" {
		t.Errorf("expected prefix without underscore, got %q", lc.EnvPrefix)
	}
}

func TestTracingSection(t *testing.T) {
	cfg := Config{Name: "fixtures"}
	cfg.Database.DSN = "file:" + filepath.Join(t.TempDir(), "test.db")
	cfg.Database.LogLevel = "silent"
	cfg.Session.Autocommit = true
	cfg.Tracing.Synchronous = true
	cfg.ApplyDefaults()

	if cfg.Tracing.ServiceName != "fixtures" {
		t.Errorf("expected tracing service name from config name, got %q", cfg.Tracing.ServiceName)
	}

	log := logger.NewNop()
	db, err := cfg.Open(context.Background(), log)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.GormDB.AutoMigrate(&gadget{}); err != nil {
		t.Fatalf("AutoMigrate failed: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp, err := cfg.TracerProvider(exp, log)
	if err != nil {
		t.Fatalf("TracerProvider failed: %v", err)
	}
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	s := cfg.NewSession(db.GormDB, log, session.WithTracer(tp.Tracer(cfg.Session.TracerName)))
	s.Add(&gadget{Name: "widget"})
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	names := map[string]bool{}
	for _, span := range exp.GetSpans() {
		names[span.Name] = true
	}
	if !names["session.flush"] || !names["session.commit"] {
		t.Errorf("expected flush and commit spans, got %v", names)
	}
}

func TestTracingSectionValidate(t *testing.T) {
	cfg := Config{}
	cfg.Database.DSN = "file:test.db"
	rate := 2.0
	cfg.Tracing.SampleRate = &rate
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "config.tracing") {
		t.Errorf("expected tracing validation error, got %v", err)
	}
}
