package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "orchestration.slot_count")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// roleNameRegex matches role names usable in prompt overrides
var roleNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// signalToolRegex matches MCP tool names such as mcp__questline__signal-back
var signalToolRegex = regexp.MustCompile(`^mcp__[A-Za-z0-9_-]+__[A-Za-z0-9_-]+$`)

const maxSlotCount = 64

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateOrchestration()...)
	errs = append(errs, c.validateAgent()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validatePaths()...)
	return errs
}

func (c *Config) validateOrchestration() []ValidationError {
	var errs []ValidationError
	o := c.Orchestration

	if o.SlotCount < 1 || o.SlotCount > maxSlotCount {
		errs = append(errs, ValidationError{
			Field:   "orchestration.slot_count",
			Value:   o.SlotCount,
			Message: fmt.Sprintf("must be between 1 and %d", maxSlotCount),
		})
	}
	if o.WorkerTimeout != "" {
		if d, err := time.ParseDuration(o.WorkerTimeout); err != nil {
			errs = append(errs, ValidationError{
				Field:   "orchestration.worker_timeout",
				Value:   o.WorkerTimeout,
				Message: "must be a duration such as 30m or 1h30m",
			})
		} else if d < 0 {
			errs = append(errs, ValidationError{
				Field:   "orchestration.worker_timeout",
				Value:   o.WorkerTimeout,
				Message: "must not be negative",
			})
		}
	}
	if o.MaxCrashRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   "orchestration.max_crash_retries",
			Value:   o.MaxCrashRetries,
			Message: "must be non-negative (0 = unlimited)",
		})
	}
	if !roleNameRegex.MatchString(o.DefaultFollowupRole) {
		errs = append(errs, ValidationError{
			Field:   "orchestration.default_followup_role",
			Value:   o.DefaultFollowupRole,
			Message: "must be a lowercase role name",
		})
	}
	if o.ContinuationTailLines < 1 {
		errs = append(errs, ValidationError{
			Field:   "orchestration.continuation_tail_lines",
			Value:   o.ContinuationTailLines,
			Message: "must be positive",
		})
	}
	return errs
}

func (c *Config) validateAgent() []ValidationError {
	var errs []ValidationError
	if strings.TrimSpace(c.Agent.Command) == "" {
		errs = append(errs, ValidationError{
			Field:   "agent.command",
			Value:   c.Agent.Command,
			Message: "must not be empty",
		})
	}
	if !signalToolRegex.MatchString(c.Agent.SignalTool) {
		errs = append(errs, ValidationError{
			Field:   "agent.signal_tool",
			Value:   c.Agent.SignalTool,
			Message: "must look like mcp__<server>__<tool>",
		})
	}
	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB <= 0 || c.Logging.MaxSizeMB > maxLogSizeMB {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("must be between 1 and %d", maxLogSizeMB),
		})
	}
	if c.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}
	return errs
}

func (c *Config) validatePaths() []ValidationError {
	var errs []ValidationError
	check := func(field, path string) {
		if strings.ContainsRune(path, '\x00') {
			errs = append(errs, ValidationError{
				Field:   field,
				Value:   path,
				Message: "path contains invalid null character",
			})
		}
	}
	check("paths.claude_projects_dir", c.Paths.ClaudeProjectsDir)
	check("paths.state_dir", c.Paths.StateDir)
	check("journal.path", c.Journal.Path)
	check("prompts.overrides_file", c.Prompts.OverridesFile)
	return errs
}
