// Package config provides YAML-based configuration loading for NitroPlanner.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level NitroPlanner configuration, loaded from nitroplanner.yaml.
type Config struct {
	Company    string           `yaml:"company"`
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	Simulation SimulationConfig `yaml:"simulation"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Templates  []TemplateConfig `yaml:"templates"`
}

// DatabaseConfig holds connection settings for the relational store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql or sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Path     string `yaml:"path"` // sqlite file path
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// SimulationConfig bounds the Monte Carlo engine.
type SimulationConfig struct {
	DefaultIterations  int           `yaml:"default_iterations"`
	MinIterations      int           `yaml:"min_iterations"`
	MaxIterations      int           `yaml:"max_iterations"`
	DefaultVariability float64       `yaml:"default_variability"`
	Workers            int           `yaml:"workers"`
	Timeout            time.Duration `yaml:"timeout"`
}

// JobsConfig controls the background simulation job runner.
type JobsConfig struct {
	Workers       int           `yaml:"workers"`
	QueueSize     int           `yaml:"queue_size"`
	Retention     time.Duration `yaml:"retention"`
	PruneSchedule string        `yaml:"prune_schedule"`
}

// AlertsConfig holds chat platform credentials for schedule risk alerts.
type AlertsConfig struct {
	Slack   ChatConfig `yaml:"slack"`
	Discord ChatConfig `yaml:"discord"`
}

// ChatConfig is a bot token plus the channel alerts are posted to.
type ChatConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Enabled reports whether both token and channel are set.
func (c ChatConfig) Enabled() bool {
	return c.BotToken != "" && c.ChannelID != ""
}

// TemplateConfig is a process template declared in the config file and
// seeded into the database on init.
type TemplateConfig struct {
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description"`
	WorkUnitType string            `yaml:"work_unit_type"`
	RoleType     string            `yaml:"role_type"`
	WorkUnits    []BlueprintConfig `yaml:"work_units"`
}

// BlueprintConfig describes one work unit of a template.
type BlueprintConfig struct {
	Name           string             `yaml:"name"`
	Description    string             `yaml:"description"`
	WorkUnitType   string             `yaml:"work_unit_type"`
	RoleType       string             `yaml:"role_type"`
	Priority       string             `yaml:"priority"`
	EstimatedHours *float64           `yaml:"estimated_hours"`
	DependsOn      []int              `yaml:"depends_on"`
	Checkpoints    []CheckpointConfig `yaml:"checkpoints"`
}

// CheckpointConfig describes one checkpoint of a template work unit.
type CheckpointConfig struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	CheckpointType string `yaml:"checkpoint_type"`
	RequiredRole   string `yaml:"required_role"`
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
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Name == "" {
		c.Database.Name = "nitroplanner"
	}
	if c.Database.Path == "" {
		c.Database.Path = "nitroplanner.db"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	s := &c.Simulation
	if s.MinIterations == 0 {
		s.MinIterations = 1000
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = 50000
	}
	if s.DefaultIterations == 0 {
		s.DefaultIterations = 10000
	}
	if s.DefaultVariability == 0 {
		s.DefaultVariability = 0.2
	}
	if s.Workers == 0 {
		s.Workers = 4
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}

	j := &c.Jobs
	if j.Workers == 0 {
		j.Workers = 2
	}
	if j.QueueSize == 0 {
		j.QueueSize = 64
	}
	if j.Retention == 0 {
		j.Retention = 24 * time.Hour
	}
	if j.PruneSchedule == "" {
		j.PruneSchedule = "0 * * * *"
	}

	for i := range c.Templates {
		for k := range c.Templates[i].WorkUnits {
			if c.Templates[i].WorkUnits[k].Priority == "" {
				c.Templates[i].WorkUnits[k].Priority = "medium"
			}
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Company == "" {
		errs = append(errs, "company is required")
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (mysql, sqlite)", c.Database.Driver))
	}
	s := c.Simulation
	if s.MinIterations < 1 {
		errs = append(errs, "simulation.min_iterations must be positive")
	}
	if s.MaxIterations < s.MinIterations {
		errs = append(errs, "simulation.max_iterations must be >= min_iterations")
	}
	if s.DefaultIterations < s.MinIterations || s.DefaultIterations > s.MaxIterations {
		errs = append(errs, "simulation.default_iterations must be within [min_iterations, max_iterations]")
	}
	if s.DefaultVariability <= 0 || s.DefaultVariability >= 1 {
		errs = append(errs, "simulation.default_variability must be in (0, 1)")
	}
	if s.Workers < 1 {
		errs = append(errs, "simulation.workers must be positive")
	}
	if c.Jobs.Workers < 1 {
		errs = append(errs, "jobs.workers must be positive")
	}
	if c.Jobs.QueueSize < 1 {
		errs = append(errs, "jobs.queue_size must be positive")
	}
	for i, t := range c.Templates {
		if t.Name == "" {
			errs = append(errs, fmt.Sprintf("templates[%d].name is required", i))
		}
		for k, wu := range t.WorkUnits {
			if wu.Name == "" {
				errs = append(errs, fmt.Sprintf("templates[%d].work_units[%d].name is required", i, k))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
