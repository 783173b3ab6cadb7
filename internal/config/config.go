// Package config loads the YAML file shared by the CLI commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/omniql-engine/x8ql/engine/translator"
	"github.com/omniql-engine/x8ql/mapping"
)

// Memory selects the in-process backend.
const Memory = "memory"

// Config is the file layout:
//
//	backend: sqlite
//	dsn: ${X8QL_DSN:-file:x8ql.db}
//	table_prefix: app_
//	pluralize: true
//	log:
//	  level: debug
//	  format: console
type Config struct {
	Backend     string `yaml:"backend"`
	DSN         string `yaml:"dsn"`
	Database    string `yaml:"database"` // MongoDB database name
	TablePrefix string `yaml:"table_prefix"`
	Pluralize   bool   `yaml:"pluralize"`
	KeyColumn   string `yaml:"key_column"`
	ValueColumn string `yaml:"value_column"`
	Log         Log    `yaml:"log"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
}

// Defaults returns the configuration used without a file.
func Defaults() *Config {
	return &Config{
		Backend:     Memory,
		Database:    "x8ql",
		KeyColumn:   "id",
		ValueColumn: "value",
		Log:         Log{Level: "info", Format: "console"},
	}
}

// Load reads path and overlays it on Defaults. ${VAR} and ${VAR:-default}
// are replaced using getenv before parsing.
func Load(path string, getenv func(string) string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data, getenv)
}

// Parse is Load for in-memory data.
func Parse(data []byte, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(interpolateEnv(data, getenv), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		value := getenv(string(parts[1]))
		if value == "" && len(parts[2]) > 0 {
			value = string(parts[2])
		}
		return []byte(value)
	})
}

// Validate normalizes the backend name and checks the fields it needs.
func (c *Config) Validate() error {
	var errs []error

	backend := strings.ToLower(strings.TrimSpace(c.Backend))
	if backend == "" || backend == Memory {
		c.Backend = Memory
	} else if name, ok := mapping.NormalizeDatabase(backend); ok {
		c.Backend = name
	} else {
		errs = append(errs, fmt.Errorf("invalid backend %q: must be %s or one of %v", c.Backend, Memory, mapping.SupportedDatabases))
	}

	if c.Backend != Memory && c.DSN == "" {
		errs = append(errs, fmt.Errorf("backend %s needs a dsn", c.Backend))
	}
	if c.Backend == "MongoDB" && c.Database == "" {
		errs = append(errs, errors.New("backend MongoDB needs a database"))
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q: must be console or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// TranslatorOptions maps the naming fields onto translator options.
func (c *Config) TranslatorOptions() translator.Options {
	return translator.Options{
		TablePrefix: c.TablePrefix,
		Pluralize:   c.Pluralize,
		KeyColumn:   c.KeyColumn,
		ValueColumn: c.ValueColumn,
	}
}
