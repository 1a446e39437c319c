package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-fiber-scheduler/core"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestDefault verifies defaults mirror the core defaults
func TestDefault(t *testing.T) {
	cfg := Default()
	def := core.DefaultSchedulerConfig()

	assert.Equal(t, def.Name, cfg.Scheduler.Name)
	assert.Equal(t, 0, cfg.Scheduler.Workers)
	assert.Equal(t, def.SpinCount, cfg.Scheduler.SpinCount)
	assert.Equal(t, def.MaxParkTime, cfg.Scheduler.MaxParkTime)
	assert.Equal(t, FiberConfig{Small: 64, Standard: 256, Extended: 8}, cfg.Fibers)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.Validate())
}

// TestLoad_NoFile verifies Load without a path yields the defaults
func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

// TestLoad_FileFormats verifies YAML, TOML and JSON files decode the same
// settings
func TestLoad_FileFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "fibersched.yaml",
			content: `
scheduler:
  name: engine
  workers: 3
  affinity_mask: "0x7"
  thread_priority: high
  max_park_time: 5ms
fibers:
  small: 4
  standard: 16
  extended: 1
logging:
  level: debug
  format: json
`,
		},
		{
			name: "toml",
			file: "fibersched.toml",
			content: `
[scheduler]
name = "engine"
workers = 3
affinity_mask = "0x7"
thread_priority = "high"
max_park_time = "5ms"

[fibers]
small = 4
standard = 16
extended = 1

[logging]
level = "debug"
format = "json"
`,
		},
		{
			name: "json",
			file: "fibersched.json",
			content: `{
  "scheduler": {"name": "engine", "workers": 3, "affinity_mask": "0x7", "thread_priority": "high", "max_park_time": "5ms"},
  "fibers": {"small": 4, "standard": 16, "extended": 1},
  "logging": {"level": "debug", "format": "json"}
}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			path := writeFile(t, tt.file, tt.content)

			// Act
			cfg, err := Load(path)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, "engine", cfg.Scheduler.Name)
			assert.Equal(t, 3, cfg.Scheduler.Workers)
			assert.Equal(t, "0x7", cfg.Scheduler.AffinityMask)
			assert.Equal(t, "high", cfg.Scheduler.ThreadPriority)
			assert.Equal(t, 5*time.Millisecond, cfg.Scheduler.MaxParkTime)
			assert.Equal(t, FiberConfig{Small: 4, Standard: 16, Extended: 1}, cfg.Fibers)
			assert.Equal(t, LoggingConfig{Level: "debug", Format: "json"}, cfg.Logging)
			// untouched keys keep their defaults
			assert.Equal(t, Default().Scheduler.SpinCount, cfg.Scheduler.SpinCount)
			assert.Equal(t, Default().Metrics, cfg.Metrics)
		})
	}
}

// TestLoad_EnvOverrides verifies FIBERSCHED_* variables win over the file
func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "fibersched.yaml", "scheduler:\n  workers: 2\nfibers:\n  small: 8\n")
	t.Setenv("FIBERSCHED_SCHEDULER_WORKERS", "5")
	t.Setenv("FIBERSCHED_METRICS_ENABLED", "true")
	t.Setenv("FIBERSCHED_METRICS_POLL_INTERVAL", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Scheduler.Workers)
	assert.Equal(t, 8, cfg.Fibers.Small)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Metrics.PollInterval)
}

// TestLoad_Errors verifies unreadable files and invalid values are reported
func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeFile(t, "bad.yaml", "scheduler:\n  workers: -1\n  thread_priority: realtime\nfibers:\n  small: 0\n  standard: 0\n  extended: 0\n")
	_, err = Load(path)
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	var fields []string
	for _, e := range verrs {
		fields = append(fields, e.Field)
	}
	want := []string{"scheduler.workers", "scheduler.thread_priority", "fibers"}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("invalid fields mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, err.Error(), "3 validation errors")
}

// TestValidate verifies each rule in isolation
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"too many workers", func(c *Config) { c.Scheduler.Workers = core.MaxWorkerCount + 1 }, "scheduler.workers"},
		{"bad mask", func(c *Config) { c.Scheduler.AffinityMask = "cores" }, "scheduler.affinity_mask"},
		{"negative spin", func(c *Config) { c.Scheduler.SpinCount = -1 }, "scheduler.spin_count"},
		{"negative park", func(c *Config) { c.Scheduler.MaxParkTime = -time.Second }, "scheduler.max_park_time"},
		{"negative history", func(c *Config) { c.Scheduler.HistoryCapacity = -3 }, "scheduler.history_capacity"},
		{"negative tier", func(c *Config) { c.Fibers.Extended = -1 }, "fibers.extended"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"metrics without addr", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = ""
		}, "metrics.addr"},
		{"negative trace limit", func(c *Config) { c.Trace.Limit = -1 }, "trace.limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()

			require.Len(t, errs, 1)
			assert.Equal(t, tt.field, errs[0].Field)
		})
	}
}

// TestParseAffinityMask verifies the accepted number bases
func TestParseAffinityMask(t *testing.T) {
	for in, want := range map[string]uint64{"": 0, "5": 5, "0x3": 3, "0b101": 5, " 0xF ": 15} {
		got, err := ParseAffinityMask(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseAffinityMask("-1")
	assert.Error(t, err)
}

// TestSchedulerConfig_Conversion verifies the core config built from a file
// config
func TestSchedulerConfig_Conversion(t *testing.T) {
	cfg := Default()
	cfg.Scheduler.Name = "engine"
	cfg.Scheduler.Workers = 2
	cfg.Scheduler.AffinityMask = "0x1"
	cfg.Scheduler.ThreadPriority = "low"
	cfg.Fibers = FiberConfig{Small: 1, Standard: 2}

	logger := core.NewNoOpLogger()
	out, err := cfg.SchedulerConfig(logger)
	require.NoError(t, err)

	assert.Equal(t, "engine", out.Name)
	assert.Equal(t, 2, out.WorkerCount)
	assert.Equal(t, uint64(1), out.AffinityMask)
	assert.Equal(t, core.ThreadPriorityLow, out.ThreadPriority)
	assert.Equal(t, core.FiberCounts{Small: 1, Standard: 2}, out.FiberCounts)
	assert.Same(t, logger, out.Logger)
	handler, ok := out.PanicHandler.(*core.DefaultPanicHandler)
	require.True(t, ok)
	assert.Same(t, logger, handler.Logger)

	cfg.Fibers = FiberConfig{}
	_, err = cfg.SchedulerConfig(logger)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	cfg.Fibers = FiberConfig{Standard: 1}
	cfg.Scheduler.ThreadPriority = "realtime"
	_, err = cfg.SchedulerConfig(logger)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

// TestSchedulerConfig_Runs verifies a loaded config starts a working
// scheduler
func TestSchedulerConfig_Runs(t *testing.T) {
	path := writeFile(t, "fibersched.yaml", "scheduler:\n  workers: 2\nfibers:\n  small: 0\n  standard: 4\n  extended: 0\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	sc, err := cfg.SchedulerConfig(nil)
	require.NoError(t, err)
	s, err := core.NewTaskSchedulerWithConfig(sc)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 2, s.WorkerCount())
	assert.Equal(t, 4, s.FiberCount())
	require.NoError(t, s.RunAsync(nil, core.Func(func(ctx *core.FiberContext) {})))
	assert.True(t, s.WaitAll(nil, 5*time.Second))
}

// TestZerolog verifies level and format settings
func TestZerolog(t *testing.T) {
	cfg := Default()
	cfg.Logging = LoggingConfig{Level: "warn", Format: "json"}

	var buf bytes.Buffer
	zl, err := cfg.Zerolog(&buf)
	require.NoError(t, err)

	zl.Info().Msg("hidden")
	zl.Warn().Str("worker", "worker-1").Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"worker":"worker-1"`)
	assert.Contains(t, buf.String(), `"level":"warn"`)

	cfg.Logging.Format = "xml"
	_, err = cfg.Zerolog(&buf)
	assert.Error(t, err)

	cfg.Logging = LoggingConfig{Level: "loud"}
	_, err = cfg.Zerolog(&buf)
	assert.Error(t, err)
}
