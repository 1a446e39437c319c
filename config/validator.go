package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Swind/go-fiber-scheduler/core"
)

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string // key path, e.g. "fibers.small"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid setting found.
type ValidationErrors []ValidationError

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

// ValidLogLevels returns the accepted logging.level values.
func ValidLogLevels() []string {
	return []string{"trace", "debug", "info", "warn", "error", "disabled"}
}

// ValidThreadPriorities returns the accepted scheduler.thread_priority values.
func ValidThreadPriorities() []string {
	return []string{"default", "low", "high"}
}

// Validate returns all invalid settings. A nil result means c is usable.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	errs = append(errs, c.validateScheduler()...)
	errs = append(errs, c.validateFibers()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateMetrics()...)
	if c.Trace.Limit < 0 {
		errs = append(errs, ValidationError{"trace.limit", c.Trace.Limit, "must be non-negative"})
	}
	return errs
}

func (c *Config) validateScheduler() ValidationErrors {
	var errs ValidationErrors
	s := c.Scheduler

	if s.Workers < 0 || s.Workers > core.MaxWorkerCount {
		errs = append(errs, ValidationError{"scheduler.workers", s.Workers, fmt.Sprintf("must be between 0 and %d", core.MaxWorkerCount)})
	}
	if _, err := ParseAffinityMask(s.AffinityMask); err != nil {
		errs = append(errs, ValidationError{"scheduler.affinity_mask", s.AffinityMask, "must be a decimal, 0x or 0b number"})
	}
	if s.ThreadPriority != "" && !slices.Contains(ValidThreadPriorities(), s.ThreadPriority) {
		errs = append(errs, ValidationError{"scheduler.thread_priority", s.ThreadPriority, "must be one of " + strings.Join(ValidThreadPriorities(), ", ")})
	}
	if s.SpinCount < 0 {
		errs = append(errs, ValidationError{"scheduler.spin_count", s.SpinCount, "must be non-negative"})
	}
	if s.MaxParkTime < 0 {
		errs = append(errs, ValidationError{"scheduler.max_park_time", s.MaxParkTime, "must be non-negative"})
	}
	if s.HistoryCapacity < 0 {
		errs = append(errs, ValidationError{"scheduler.history_capacity", s.HistoryCapacity, "must be non-negative"})
	}
	return errs
}

func (c *Config) validateFibers() ValidationErrors {
	var errs ValidationErrors
	f := c.Fibers

	for _, tier := range []struct {
		key string
		n   int
	}{
		{"fibers.small", f.Small},
		{"fibers.standard", f.Standard},
		{"fibers.extended", f.Extended},
	} {
		if tier.n < 0 {
			errs = append(errs, ValidationError{tier.key, tier.n, "must be non-negative"})
		}
	}
	if f.Small+f.Standard+f.Extended <= 0 {
		errs = append(errs, ValidationError{"fibers", f, "at least one fiber is required"})
	}
	return errs
}

func (c *Config) validateLogging() ValidationErrors {
	var errs ValidationErrors
	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{"logging.level", c.Logging.Level, "must be one of " + strings.Join(ValidLogLevels(), ", ")})
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = append(errs, ValidationError{"logging.format", c.Logging.Format, "must be console or json"})
	}
	return errs
}

func (c *Config) validateMetrics() ValidationErrors {
	var errs ValidationErrors
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, ValidationError{"metrics.addr", c.Metrics.Addr, "required when metrics are enabled"})
	}
	if c.Metrics.PollInterval < 0 {
		errs = append(errs, ValidationError{"metrics.poll_interval", c.Metrics.PollInterval, "must be non-negative"})
	}
	return errs
}
