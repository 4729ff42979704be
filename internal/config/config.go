// Package config provides YAML-based configuration loading for kpiyard.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration, loaded from kpi.yaml.
type Config struct {
	Database DatabaseConfig  `yaml:"database"`
	Server   ServerConfig    `yaml:"server"`
	Retry    RetryConfig     `yaml:"retry"`
	Notify   NotifyConfig    `yaml:"notify"`
	KpiTypes []KpiTypeConfig `yaml:"kpi_types"`
	Cycles   []CycleConfig   `yaml:"cycles"`
}

// DatabaseConfig selects the gorm dialector and its connection settings.
// DSN, when set, is used verbatim.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite, mysql, postgres
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

// RetryConfig bounds write-conflict retries. The backoff grows linearly per retry.
type RetryConfig struct {
	MaxRetries int `yaml:"max_retries"`
	BackoffMS  int `yaml:"backoff_ms"`
}

// Backoff returns the base backoff as a duration.
func (r RetryConfig) Backoff() time.Duration {
	return time.Duration(r.BackoffMS) * time.Millisecond
}

// NotifyConfig enables notification sinks. Every enabled sink receives every event.
type NotifyConfig struct {
	Store   bool          `yaml:"store"`
	Slack   ChannelConfig `yaml:"slack"`
	Discord ChannelConfig `yaml:"discord"`
}

// ChannelConfig is a bot token plus target channel.
type ChannelConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// Enabled reports whether both token and channel are set.
func (c ChannelConfig) Enabled() bool {
	return c.Token != "" && c.Channel != ""
}

// KpiTypeConfig seeds a rubric.
type KpiTypeConfig struct {
	ID        string                `yaml:"id"`
	Name      string                `yaml:"name"`
	Kind      string                `yaml:"kind"`
	Checklist []ChecklistItemConfig `yaml:"checklist"`
}

// ChecklistItemConfig seeds one weighted criterion.
type ChecklistItemConfig struct {
	ID     string  `yaml:"id"`
	Title  string  `yaml:"title"`
	Weight float64 `yaml:"weight"`
}

// CycleConfig seeds a cycle with its activities and assignments.
type CycleConfig struct {
	ID          string                    `yaml:"id"`
	Name        string                    `yaml:"name"`
	DefineMode  string                    `yaml:"define_mode"`
	Recurrence  string                    `yaml:"recurrence"`
	Activities  map[string]ActivityConfig `yaml:"activities"` // keyed by define, evaluate, summary
	Assignments []AssignmentConfig        `yaml:"assignments"`
}

// ActivityConfig is one gate window.
type ActivityConfig struct {
	Enabled bool       `yaml:"enabled"`
	Start   *time.Time `yaml:"start"`
	End     *time.Time `yaml:"end"`
}

// AssignmentConfig seeds an evaluator/evaluatee pair.
type AssignmentConfig struct {
	ID        string `yaml:"id"`
	Evaluator string `yaml:"evaluator"`
	Evaluatee string `yaml:"evaluatee"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets secrets come from the environment (or a .env file loaded by the CLI).
func (c *Config) applyEnv() {
	if v := os.Getenv("KPI_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("KPI_JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv("KPI_SLACK_TOKEN"); v != "" {
		c.Notify.Slack.Token = v
	}
	if v := os.Getenv("KPI_DISCORD_TOKEN"); v != "" {
		c.Notify.Discord.Token = v
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.DSN == "" {
			c.Database.DSN = "kpiyard.db"
		}
	case "mysql":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	case "postgres":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.User == "" {
			c.Database.User = "postgres"
		}
	}
	if c.Database.Name == "" {
		c.Database.Name = "kpiyard"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.BackoffMS == 0 {
		c.Retry.BackoffMS = 50
	}
	for i := range c.Cycles {
		if c.Cycles[i].DefineMode == "" {
			c.Cycles[i].DefineMode = "EVALUATEE_DEFINES"
		}
	}
}

var (
	validDrivers     = map[string]bool{"sqlite": true, "mysql": true, "postgres": true}
	validKinds       = map[string]bool{"QUALITATIVE_CHECKLIST": true, "QUANTITATIVE": true, "CUSTOM": true}
	validDefineModes = map[string]bool{"EVALUATEE_DEFINES": true, "EVALUATOR_DEFINES": true}
	validActivities  = map[string]bool{"define": true, "evaluate": true, "summary": true}
)

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if !validDrivers[c.Database.Driver] {
		errs = append(errs, fmt.Sprintf("database.driver %q is not one of sqlite, mysql, postgres", c.Database.Driver))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, "retry.max_retries must be non-negative")
	}
	if c.Retry.BackoffMS < 0 {
		errs = append(errs, "retry.backoff_ms must be non-negative")
	}

	typeIDs := make(map[string]bool)
	for i, kt := range c.KpiTypes {
		if kt.ID == "" {
			errs = append(errs, fmt.Sprintf("kpi_types[%d].id is required", i))
		} else if typeIDs[kt.ID] {
			errs = append(errs, fmt.Sprintf("kpi_types[%d].id %q is duplicated", i, kt.ID))
		}
		typeIDs[kt.ID] = true
		if kt.Name == "" {
			errs = append(errs, fmt.Sprintf("kpi_types[%d].name is required", i))
		}
		if !validKinds[kt.Kind] {
			errs = append(errs, fmt.Sprintf("kpi_types[%d].kind %q is invalid", i, kt.Kind))
		}
		if kt.Kind == "QUALITATIVE_CHECKLIST" {
			if len(kt.Checklist) == 0 {
				errs = append(errs, fmt.Sprintf("kpi_types[%d] checklist rubric needs at least one item", i))
			}
			var total float64
			for j, item := range kt.Checklist {
				if item.ID == "" {
					errs = append(errs, fmt.Sprintf("kpi_types[%d].checklist[%d].id is required", i, j))
				}
				total += item.Weight
			}
			if len(kt.Checklist) > 0 && (total < 99.995 || total > 100.005) {
				errs = append(errs, fmt.Sprintf("kpi_types[%d] checklist weights sum to %.2f, want 100", i, total))
			}
		}
	}

	for i, cy := range c.Cycles {
		if cy.ID == "" {
			errs = append(errs, fmt.Sprintf("cycles[%d].id is required", i))
		}
		if cy.Name == "" {
			errs = append(errs, fmt.Sprintf("cycles[%d].name is required", i))
		}
		if !validDefineModes[cy.DefineMode] {
			errs = append(errs, fmt.Sprintf("cycles[%d].define_mode %q is invalid", i, cy.DefineMode))
		}
		for name, act := range cy.Activities {
			if !validActivities[strings.ToLower(name)] {
				errs = append(errs, fmt.Sprintf("cycles[%d].activities.%s is not define, evaluate or summary", i, name))
			}
			if act.Start != nil && act.End != nil && act.End.Before(*act.Start) {
				errs = append(errs, fmt.Sprintf("cycles[%d].activities.%s ends before it starts", i, name))
			}
		}
		for j, a := range cy.Assignments {
			if a.Evaluator == "" || a.Evaluatee == "" {
				errs = append(errs, fmt.Sprintf("cycles[%d].assignments[%d] needs evaluator and evaluatee", i, j))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
