package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniql-engine/x8ql/engine/translator"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, Memory, cfg.Backend)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, translator.Options{KeyColumn: "id", ValueColumn: "value"}, cfg.TranslatorOptions())
}

func TestParse(t *testing.T) {
	data := []byte(`
backend: postgres
dsn: ${X8QL_DSN:-postgres://localhost/x8ql}
table_prefix: ${PREFIX}
pluralize: true
log:
  level: debug
  format: json
`)
	cfg, err := Parse(data, env(map[string]string{"PREFIX": "app_"}))
	require.NoError(t, err)
	assert.Equal(t, "PostgreSQL", cfg.Backend)
	assert.Equal(t, "postgres://localhost/x8ql", cfg.DSN)
	assert.Equal(t, "app_", cfg.TablePrefix)
	assert.True(t, cfg.Pluralize)
	assert.Equal(t, Log{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, "id", cfg.KeyColumn, "unset fields keep their defaults")

	cfg, err = Parse(data, env(map[string]string{"X8QL_DSN": "postgres://db/prod"}))
	require.NoError(t, err)
	assert.Equal(t, "postgres://db/prod", cfg.DSN)
	assert.Empty(t, cfg.TablePrefix)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown backend", "backend: oracle", `invalid backend "oracle"`},
		{"sql without dsn", "backend: sqlite", "backend SQLite needs a dsn"},
		{"mongo without database", "backend: mongodb\ndsn: mongodb://localhost\ndatabase: ''", "backend MongoDB needs a database"},
		{"bad log format", "log:\n  format: xml", `invalid log format "xml"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), env(nil))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Parse([]byte("backend: [1"), env(nil))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidateNormalizesBackend(t *testing.T) {
	cfg := &Config{Backend: " Redis ", DSN: "redis://localhost:6379/0"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "Redis", cfg.Backend)

	cfg = &Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, Memory, cfg.Backend)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x8ql.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: mysql\ndsn: root@/x8ql\nkey_column: k\n"), 0o600))

	cfg, err := Load(path, env(nil))
	require.NoError(t, err)
	assert.Equal(t, "MySQL", cfg.Backend)
	assert.Equal(t, "k", cfg.TranslatorOptions().KeyColumn)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), env(nil))
	assert.ErrorContains(t, err, "failed to read config")
}
