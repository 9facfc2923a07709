package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Dir is the per-project directory holding config.json.
const Dir = ".harness"

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendBeads  = "beads"
)

// Executor modes.
const (
	ModeHeavyweight = "heavyweight"
	ModeLightweight = "lightweight"
)

// Duration is a time.Duration written as a Go duration string ("10m").
type Duration time.Duration

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents .harness/config.json
type Config struct {
	Version   string         `json:"version"`
	HarnessID string         `json:"harness_id"`
	Store     StoreConfig    `json:"store"`
	Queue     QueueConfig    `json:"queue"`
	Workers   int            `json:"workers"`
	Executor  ExecutorConfig `json:"executor"`
	Schedule  ScheduleConfig `json:"schedule"`
	Convoy    ConvoyConfig   `json:"convoy"`
	StateDir  string         `json:"state_dir,omitempty"` // checkpoints and locks; ~/.harness/state when empty
}

// StoreConfig selects and configures the issue store.
type StoreConfig struct {
	Backend     string `json:"backend"`                // "sqlite" or "beads"
	DBPath      string `json:"db_path,omitempty"`      // sqlite only; HARNESS_DB overrides
	IDPrefix    string `json:"id_prefix,omitempty"`    // sqlite issue id prefix
	BeadsBinary string `json:"beads_binary,omitempty"` // beads only
	BeadsDir    string `json:"beads_dir,omitempty"`    // beads only
}

// QueueConfig tunes the hook queue.
type QueueConfig struct {
	ClaimTimeout      Duration `json:"claim_timeout"`
	HeartbeatInterval Duration `json:"heartbeat_interval"`
	MaxRetries        int      `json:"max_retries"`
	Labels            []string `json:"labels,omitempty"`       // claim filter for `harness run`
	MaxPriority       *int     `json:"max_priority,omitempty"` // claim filter for `harness run`
}

// ExecutorConfig configures how workers run issues.
type ExecutorConfig struct {
	Mode      string   `json:"mode"`
	Command   string   `json:"command"`
	Args      []string `json:"args,omitempty"`
	Model     string   `json:"model,omitempty"`
	SkillPath string   `json:"skill_path,omitempty"` // lightweight only
	WorkDir   string   `json:"work_dir,omitempty"`
	LogDir    string   `json:"log_dir,omitempty"`
	Timeout   Duration `json:"timeout,omitempty"` // zero means no limit
}

// ScheduleConfig holds the coordinator's cron specs.
type ScheduleConfig struct {
	Poll          string `json:"poll"`
	StaleSweep    string `json:"stale_sweep"`
	RedirectCheck string `json:"redirect_check"`
}

// ConvoyConfig maps issue id prefixes to repository names.
type ConvoyConfig struct {
	RepoAliases map[string]string `json:"repo_aliases,omitempty"`
}

// Default returns the configuration `harness init` writes.
func Default() *Config {
	return &Config{
		Version:   "1",
		HarnessID: "main",
		Store: StoreConfig{
			Backend:     BackendSQLite,
			IDPrefix:    "hs",
			BeadsBinary: "bd",
		},
		Queue: QueueConfig{
			ClaimTimeout:      Duration(10 * time.Minute),
			HeartbeatInterval: Duration(time.Minute),
			MaxRetries:        2,
		},
		Workers: 1,
		Executor: ExecutorConfig{
			Mode:    ModeHeavyweight,
			Command: "claude",
			Args:    []string{"-p"},
		},
		Schedule: ScheduleConfig{
			Poll:          "@every 15s",
			StaleSweep:    "@every 1m",
			RedirectCheck: "@every 2m",
		},
	}
}

// LoadConfig reads .harness/config.json from the specified directory.
// Fields absent from the file keep their defaults.
// Resolution order: dir only (no home fallback).
func LoadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, Dir, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is LoadConfig, falling back to Default when no file exists.
func LoadOrDefault(dir string) (*Config, error) {
	cfg, err := LoadConfig(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// SaveConfig writes config.json to directory
func SaveConfig(dir string, cfg *Config) error {
	harnessDir := filepath.Join(dir, Dir)
	if err := os.MkdirAll(harnessDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s dir: %w", Dir, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(harnessDir, "config.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks field values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Backend {
	case BackendSQLite, BackendBeads:
	default:
		problems = append(problems, fmt.Sprintf("store.backend %q must be sqlite or beads", c.Store.Backend))
	}
	switch c.Executor.Mode {
	case ModeHeavyweight, ModeLightweight:
	default:
		problems = append(problems, fmt.Sprintf("executor.mode %q must be heavyweight or lightweight", c.Executor.Mode))
	}
	if c.Executor.Mode == ModeLightweight && c.Executor.SkillPath == "" {
		problems = append(problems, "executor.skill_path is required in lightweight mode")
	}
	if c.Executor.Command == "" {
		problems = append(problems, "executor.command is required")
	}
	if c.Queue.ClaimTimeout <= 0 {
		problems = append(problems, "queue.claim_timeout must be positive")
	}
	if c.Queue.HeartbeatInterval <= 0 || c.Queue.HeartbeatInterval >= c.Queue.ClaimTimeout {
		problems = append(problems, "queue.heartbeat_interval must be positive and shorter than claim_timeout")
	}
	if c.Queue.MaxRetries < 0 {
		problems = append(problems, "queue.max_retries must not be negative")
	}
	if c.Workers < 1 {
		problems = append(problems, "workers must be at least 1")
	}
	if c.HarnessID == "" {
		problems = append(problems, "harness_id is required")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// DefaultStateDir returns ~/.harness/state.
func DefaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".harness", "state"), nil
}

// ResolveStateDir returns the configured state dir or the default.
func (c *Config) ResolveStateDir() (string, error) {
	if c.StateDir != "" {
		return c.StateDir, nil
	}
	return DefaultStateDir()
}

// ResolveLogDir returns the configured executor log dir, or
// <state dir>/logs/<harness id>.
func (c *Config) ResolveLogDir() (string, error) {
	if c.Executor.LogDir != "" {
		return c.Executor.LogDir, nil
	}
	stateDir, err := c.ResolveStateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(stateDir, "logs", c.HarnessID), nil
}
