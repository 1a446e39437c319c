package prometheus

import (
	"strings"
	"testing"
	"time"

	"github.com/Swind/go-fiber-scheduler/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("fiberscheduler", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration("worker-0", core.TaskPriorityHigh, 250*time.Millisecond)
	exporter.RecordTaskPanic("worker-0", "panic")
	exporter.RecordQueueDepth("worker-0", 7)
	exporter.RecordTaskRejected("engine", "scheduler closed")

	panicTotal := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("worker-0"))
	if panicTotal != 1 {
		t.Fatalf("panic total = %v, want 1", panicTotal)
	}

	queueDepth := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("worker-0"))
	if queueDepth != 7 {
		t.Fatalf("queue depth = %v, want 7", queueDepth)
	}

	rejected := testutil.ToFloat64(exporter.taskRejectedTotal.WithLabelValues("engine", "scheduler closed"))
	if rejected != 1 {
		t.Fatalf("rejected total = %v, want 1", rejected)
	}

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("worker-0", "high"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("fiberscheduler", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("fiberscheduler", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskPanic("worker-1", nil)
	second.RecordTaskPanic("worker-1", nil)

	got := testutil.ToFloat64(first.taskPanicTotal.WithLabelValues("worker-1"))
	if got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

func TestMetricsExporter_LabelFallbacks(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{DurationBuckets: []float64{0.001, 0.01}})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration("", core.TaskPriority(9), time.Millisecond)
	exporter.RecordTaskRejected("", "")

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("unknown", "unknown"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("fallback duration sample count = %d, want 1", histCount)
	}
	if got := testutil.ToFloat64(exporter.taskRejectedTotal.WithLabelValues("unknown", "unknown")); got != 1 {
		t.Fatalf("fallback rejected total = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "fiberscheduler_") {
			t.Fatalf("metric %q lacks default namespace", mf.GetName())
		}
	}
}

func TestMetricsExporter_NilReceiver(t *testing.T) {
	var exporter *MetricsExporter
	exporter.RecordTaskDuration("worker-0", core.TaskPriorityLow, time.Second)
	exporter.RecordTaskPanic("worker-0", nil)
	exporter.RecordQueueDepth("worker-0", 1)
	exporter.RecordTaskRejected("engine", "closed")
}

// TestMetricsExporter_SchedulerIntegration verifies a running scheduler
// reports durations, panics and rejections through the exporter
func TestMetricsExporter_SchedulerIntegration(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("fiberscheduler", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	cfg := core.DefaultSchedulerConfig()
	cfg.Name = "integration"
	cfg.WorkerCount = 1
	cfg.FiberCounts = core.FiberCounts{Standard: 4}
	cfg.Logger = core.NewNoOpLogger()
	cfg.PanicHandler = &core.DefaultPanicHandler{Logger: core.NewNoOpLogger()}
	cfg.RejectedTaskHandler = &core.DefaultRejectedTaskHandler{Logger: core.NewNoOpLogger()}
	cfg.Metrics = exporter
	s, err := core.NewTaskSchedulerWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewTaskSchedulerWithConfig failed: %v", err)
	}

	ok := core.NewTask(func(ctx *core.FiberContext) {}, core.TraitsHigh())
	bad := core.NewTask(func(ctx *core.FiberContext) { panic("boom") }, core.TraitsHigh())
	if err := s.RunAsync(nil, ok, ok, bad); err != nil {
		t.Fatalf("RunAsync failed: %v", err)
	}
	if !s.WaitAll(nil, 5*time.Second) {
		t.Fatal("tasks did not finish")
	}
	s.Close()
	if err := s.RunAsync(nil, ok); err == nil {
		t.Fatal("RunAsync after Close succeeded")
	}

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("worker-0", "high"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 3 {
		t.Fatalf("duration sample count = %d, want 3", histCount)
	}
	if got := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("worker-0")); got != 1 {
		t.Fatalf("panic total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.taskRejectedTotal.WithLabelValues("integration", "scheduler closed")); got != 1 {
		t.Fatalf("rejected total = %v, want 1", got)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
