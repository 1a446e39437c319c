// Package config loads scheduler settings from files and the environment.
//
// Files may be YAML, TOML or JSON. Every key can be overridden by an
// environment variable named FIBERSCHED_ plus the upper-cased key path with
// dots replaced by underscores, e.g. FIBERSCHED_SCHEDULER_WORKERS=4.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/Swind/go-fiber-scheduler/core"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FIBERSCHED"

// Config is the root configuration.
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Fibers    FiberConfig     `mapstructure:"fibers"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Trace     TraceConfig     `mapstructure:"trace"`
}

// SchedulerConfig holds worker settings.
type SchedulerConfig struct {
	Name string `mapstructure:"name"`
	// Workers of 0 means one less than the CPU count.
	Workers int `mapstructure:"workers"`
	// AffinityMask is a bit mask of allowed cores, decimal or 0x-prefixed.
	AffinityMask     string        `mapstructure:"affinity_mask"`
	PinThreads       bool          `mapstructure:"pin_threads"`
	ThreadPriority   string        `mapstructure:"thread_priority"`
	ThreadNamePrefix string        `mapstructure:"thread_name_prefix"`
	SpinCount        int           `mapstructure:"spin_count"`
	MaxParkTime      time.Duration `mapstructure:"max_park_time"`
	HistoryCapacity  int           `mapstructure:"history_capacity"`
}

// FiberConfig sizes each stack tier of the fiber pool.
type FiberConfig struct {
	Small    int `mapstructure:"small"`
	Standard int `mapstructure:"standard"`
	Extended int `mapstructure:"extended"`
}

// LoggingConfig controls the zerolog logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Namespace    string        `mapstructure:"namespace"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// TraceConfig controls event recording.
type TraceConfig struct {
	Output string `mapstructure:"output"` // Chrome trace file, empty disables
	Limit  int    `mapstructure:"limit"`  // max events kept, 0 is unbounded
}

// Default returns the built-in configuration.
func Default() *Config {
	def := core.DefaultSchedulerConfig()
	return &Config{
		Scheduler: SchedulerConfig{
			Name:             def.Name,
			ThreadPriority:   "default",
			ThreadNamePrefix: def.ThreadNamePrefix,
			SpinCount:        def.SpinCount,
			MaxParkTime:      def.MaxParkTime,
			HistoryCapacity:  def.HistoryCapacity,
		},
		Fibers: FiberConfig{
			Small:    def.FiberCounts.Small,
			Standard: def.FiberCounts.Standard,
			Extended: def.FiberCounts.Extended,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Addr:         ":9090",
			Namespace:    "fiberscheduler",
			PollInterval: time.Second,
		},
		Trace: TraceConfig{
			Limit: 1 << 20,
		},
	}
}

// SetDefaults registers Default() on v so every key is known to viper,
// which environment overrides require.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("scheduler.name", defaults.Scheduler.Name)
	v.SetDefault("scheduler.workers", defaults.Scheduler.Workers)
	v.SetDefault("scheduler.affinity_mask", defaults.Scheduler.AffinityMask)
	v.SetDefault("scheduler.pin_threads", defaults.Scheduler.PinThreads)
	v.SetDefault("scheduler.thread_priority", defaults.Scheduler.ThreadPriority)
	v.SetDefault("scheduler.thread_name_prefix", defaults.Scheduler.ThreadNamePrefix)
	v.SetDefault("scheduler.spin_count", defaults.Scheduler.SpinCount)
	v.SetDefault("scheduler.max_park_time", defaults.Scheduler.MaxParkTime)
	v.SetDefault("scheduler.history_capacity", defaults.Scheduler.HistoryCapacity)

	v.SetDefault("fibers.small", defaults.Fibers.Small)
	v.SetDefault("fibers.standard", defaults.Fibers.Standard)
	v.SetDefault("fibers.extended", defaults.Fibers.Extended)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)

	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	v.SetDefault("metrics.addr", defaults.Metrics.Addr)
	v.SetDefault("metrics.namespace", defaults.Metrics.Namespace)
	v.SetDefault("metrics.poll_interval", defaults.Metrics.PollInterval)

	v.SetDefault("trace.output", defaults.Trace.Output)
	v.SetDefault("trace.limit", defaults.Trace.Limit)
}

// New returns a viper instance with defaults and environment overrides
// wired. Callers may bind flags on it before calling Decode.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, if not empty, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return Decode(v)
}

// Decode unmarshals and validates the settings held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

// ParseAffinityMask parses a decimal, 0x hex or 0b binary mask. The empty
// string is 0.
func ParseAffinityMask(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 0, 64)
}

// SchedulerConfig converts c into a core config. The logger also backs the
// default panic and rejection handlers.
func (c *Config) SchedulerConfig(logger core.Logger) (*core.SchedulerConfig, error) {
	mask, err := ParseAffinityMask(c.Scheduler.AffinityMask)
	if err != nil {
		return nil, fmt.Errorf("scheduler.affinity_mask: %w", err)
	}
	prio, err := core.ParseThreadPriority(c.Scheduler.ThreadPriority)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = core.NewNoOpLogger()
	}

	out := core.DefaultSchedulerConfig()
	out.Name = c.Scheduler.Name
	out.WorkerCount = c.Scheduler.Workers
	out.AffinityMask = mask
	out.PinWorkerThreads = c.Scheduler.PinThreads
	out.ThreadPriority = prio
	out.ThreadNamePrefix = c.Scheduler.ThreadNamePrefix
	out.SpinCount = c.Scheduler.SpinCount
	out.MaxParkTime = c.Scheduler.MaxParkTime
	out.HistoryCapacity = c.Scheduler.HistoryCapacity
	out.FiberCounts = core.FiberCounts{
		Small:    c.Fibers.Small,
		Standard: c.Fibers.Standard,
		Extended: c.Fibers.Extended,
	}
	out.Logger = logger
	out.PanicHandler = &core.DefaultPanicHandler{Logger: logger}
	out.RejectedTaskHandler = &core.DefaultRejectedTaskHandler{Logger: logger}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// Zerolog builds the logger described by c.Logging. A nil w means stderr.
func (c *Config) Zerolog(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("logging.level: %w", err)
	}
	if w == nil {
		w = os.Stderr
	}

	switch c.Logging.Format {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), errors.New("logging.format: must be console or json")
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
