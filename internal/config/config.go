package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete questline configuration
type Config struct {
	Orchestration OrchestrationConfig `mapstructure:"orchestration" yaml:"orchestration"`
	Agent         AgentConfig         `mapstructure:"agent" yaml:"agent"`
	Prompts       PromptsConfig       `mapstructure:"prompts" yaml:"prompts"`
	Paths         PathsConfig         `mapstructure:"paths" yaml:"paths"`
	Journal       JournalConfig       `mapstructure:"journal" yaml:"journal"`
	Broadcast     BroadcastConfig     `mapstructure:"broadcast" yaml:"broadcast"`
	Logging       LoggingConfig       `mapstructure:"logging" yaml:"logging"`
}

// OrchestrationConfig controls the scheduling loop
type OrchestrationConfig struct {
	// SlotCount is the number of workers allowed to run at once (default: 3)
	SlotCount int `mapstructure:"slot_count" yaml:"slot_count"`
	// WorkerTimeout is the wall-clock limit for one worker, as a Go duration
	// string (default: "30m")
	WorkerTimeout string `mapstructure:"worker_timeout" yaml:"worker_timeout"`
	// MaxCrashRetries caps consecutive crash or timeout respawns of one step.
	// 0 retries forever.
	MaxCrashRetries int `mapstructure:"max_crash_retries" yaml:"max_crash_retries"`
	// DefaultFollowupRole is spawned for needs-role-followup signals that
	// name no target role (default: "pathseeker")
	DefaultFollowupRole string `mapstructure:"default_followup_role" yaml:"default_followup_role"`
	// ContinuationTailLines is how many trailing output lines are handed to a
	// resumed worker (default: 50)
	ContinuationTailLines int `mapstructure:"continuation_tail_lines" yaml:"continuation_tail_lines"`
}

// AgentConfig controls how worker processes are launched
type AgentConfig struct {
	// Command is the Claude CLI executable (default: "claude")
	Command string `mapstructure:"command" yaml:"command"`
	// Model is passed as --model when set
	Model string `mapstructure:"model" yaml:"model"`
	// SignalTool is the tool_use name that carries worker signals
	SignalTool string `mapstructure:"signal_tool" yaml:"signal_tool"`
	// ExtraArgs are appended to every invocation
	ExtraArgs []string `mapstructure:"extra_args" yaml:"extra_args"`
}

// PromptsConfig controls role prompt templates
type PromptsConfig struct {
	// OverridesFile is a YAML map of role name to template. Templates use
	// $ARGUMENTS where the work unit is inserted.
	OverridesFile string `mapstructure:"overrides_file" yaml:"overrides_file"`
}

// PathsConfig controls where files are read and written
type PathsConfig struct {
	// ClaudeProjectsDir is where the Claude CLI keeps session history
	// (default: "~/.claude/projects")
	ClaudeProjectsDir string `mapstructure:"claude_projects_dir" yaml:"claude_projects_dir"`
	// StateDir holds run logs and the journal. Empty means ConfigDir().
	StateDir string `mapstructure:"state_dir" yaml:"state_dir"`
}

// JournalConfig controls the SQLite run journal
type JournalConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Path of the database. Empty means {state_dir}/journal.db.
	Path string `mapstructure:"path" yaml:"path"`
}

// BroadcastConfig controls the websocket event feed
type BroadcastConfig struct {
	// Listen is a host:port to serve on. Empty disables the feed.
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// LoggingConfig controls debug logging
type LoggingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is one of debug, info, warn, error (default: "info")
	Level      string `mapstructure:"level" yaml:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Orchestration: OrchestrationConfig{
			SlotCount:             3,
			WorkerTimeout:         "30m",
			MaxCrashRetries:       0,
			DefaultFollowupRole:   "pathseeker",
			ContinuationTailLines: 50,
		},
		Agent: AgentConfig{
			Command:    "claude",
			SignalTool: "mcp__questline__signal-back",
			ExtraArgs:  []string{},
		},
		Paths: PathsConfig{
			ClaudeProjectsDir: "~/.claude/projects",
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	d := Default()

	viper.SetDefault("orchestration.slot_count", d.Orchestration.SlotCount)
	viper.SetDefault("orchestration.worker_timeout", d.Orchestration.WorkerTimeout)
	viper.SetDefault("orchestration.max_crash_retries", d.Orchestration.MaxCrashRetries)
	viper.SetDefault("orchestration.default_followup_role", d.Orchestration.DefaultFollowupRole)
	viper.SetDefault("orchestration.continuation_tail_lines", d.Orchestration.ContinuationTailLines)

	viper.SetDefault("agent.command", d.Agent.Command)
	viper.SetDefault("agent.model", d.Agent.Model)
	viper.SetDefault("agent.signal_tool", d.Agent.SignalTool)
	viper.SetDefault("agent.extra_args", d.Agent.ExtraArgs)

	viper.SetDefault("prompts.overrides_file", d.Prompts.OverridesFile)

	viper.SetDefault("paths.claude_projects_dir", d.Paths.ClaudeProjectsDir)
	viper.SetDefault("paths.state_dir", d.Paths.StateDir)

	viper.SetDefault("journal.enabled", d.Journal.Enabled)
	viper.SetDefault("journal.path", d.Journal.Path)

	viper.SetDefault("broadcast.listen", d.Broadcast.Listen)

	viper.SetDefault("logging.enabled", d.Logging.Enabled)
	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", d.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load on an explicit viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when the
// loaded configuration is invalid.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// WorkerTimeoutDuration parses WorkerTimeout. Invalid or empty values yield 0,
// which disables the timeout.
func (c *OrchestrationConfig) WorkerTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.WorkerTimeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// ResolveStateDir returns StateDir with ~ expanded, or ConfigDir() when unset.
func (p *PathsConfig) ResolveStateDir() string {
	if p.StateDir == "" {
		return ConfigDir()
	}
	return ExpandHome(p.StateDir)
}

// ResolveClaudeProjectsDir returns ClaudeProjectsDir with ~ expanded.
func (p *PathsConfig) ResolveClaudeProjectsDir() string {
	if p.ClaudeProjectsDir == "" {
		return ExpandHome(Default().Paths.ClaudeProjectsDir)
	}
	return ExpandHome(p.ClaudeProjectsDir)
}

// ResolvePath returns the journal database path.
func (j *JournalConfig) ResolvePath(stateDir string) string {
	if j.Path == "" {
		return filepath.Join(stateDir, "journal.db")
	}
	return ExpandHome(j.Path)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "questline")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".questline"
	}
	return filepath.Join(home, ".config", "questline")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
