package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Swind/go-fiber-scheduler/core"
	obs "github.com/Swind/go-fiber-scheduler/observability/prometheus"
	"github.com/Swind/go-fiber-scheduler/trace"
)

func (a *app) runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run the frame workload: root tasks with yielding children plus a high priority batch",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "frames", Value: 60, Usage: "frames to run, 0 runs until interrupted"},
			&cli.IntFlag{Name: "roots", Value: 1, Usage: "root tasks per frame"},
			&cli.IntFlag{Name: "children", Value: 16, Usage: "children per root task"},
			&cli.IntFlag{Name: "priority-tasks", Value: 128, Usage: "high priority tasks per frame"},
			&cli.IntFlag{Name: "work", Value: 8192, Usage: "compute iterations per task slice"},
			&cli.DurationFlag{Name: "frame-timeout", Value: 100 * time.Second, Usage: "maximum wait per frame"},
			&cli.StringFlag{Name: "trace-out", Usage: "write a Chrome trace-event file"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address"},
		},
		Action: a.runAction,
	}
}

func (a *app) runAction(c *cli.Context) error {
	w := frameWorkload{
		Roots:         c.Int("roots"),
		Children:      c.Int("children"),
		PriorityTasks: c.Int("priority-tasks"),
		Work:          c.Int("work"),
		FrameTimeout:  c.Duration("frame-timeout"),
	}
	if err := w.validate(); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	traceOut := a.cfg.Trace.Output
	if c.IsSet("trace-out") {
		traceOut = c.String("trace-out")
	}
	metricsAddr := ""
	if a.cfg.Metrics.Enabled {
		metricsAddr = a.cfg.Metrics.Addr
	}
	if c.IsSet("metrics-addr") {
		metricsAddr = c.String("metrics-addr")
	}

	var (
		listeners []core.Listener
		metrics   core.Metrics
		recorder  *trace.Recorder
		reg       *prom.Registry
		poller    *obs.SnapshotPoller
	)
	if traceOut != "" {
		recorder = trace.NewRecorder(a.cfg.Trace.Limit)
		listeners = append(listeners, recorder)
	}
	if metricsAddr != "" {
		reg = prom.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		exporter, err := obs.NewMetricsExporter(a.cfg.Metrics.Namespace, reg, obs.ExporterOptions{})
		if err != nil {
			return err
		}
		lexp, err := obs.NewListenerExporter(a.cfg.Metrics.Namespace, a.cfg.Scheduler.Name, reg)
		if err != nil {
			return err
		}
		if poller, err = obs.NewSnapshotPoller(reg, a.cfg.Metrics.PollInterval); err != nil {
			return err
		}
		metrics = exporter
		listeners = append(listeners, lexp)
	}

	s, err := a.newScheduler(core.Listeners(listeners...), metrics)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer s.Close()
	if w.Children > 0 && w.Roots >= s.FiberCount() {
		return cli.Exit(fmt.Sprintf("roots (%d) must be fewer than fibers (%d): suspended roots hold their fiber", w.Roots, s.FiberCount()), 2)
	}

	g, ctx := errgroup.WithContext(c.Context)
	workloadDone := make(chan struct{})

	if reg != nil {
		poller.AddScheduler(s.Name(), s)
		poller.Start(ctx)
		defer poller.Stop()

		ln, err := net.Listen("tcp", metricsAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", metricsAddr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		a.zl.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")

		g.Go(func() error {
			if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-ctx.Done():
			case <-workloadDone:
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	var frames int
	var tasks int64
	var busy time.Duration
	g.Go(func() error {
		defer close(workloadDone)
		return runFrames(ctx, s, w, c.Int("frames"), func(r frameResult) {
			frames++
			tasks += r.Tasks
			busy += r.Duration
			a.zl.Debug().
				Int("frame", r.Frame).
				Int64("tasks", r.Tasks).
				Dur("duration", r.Duration).
				Msg("frame done")
		})
	})
	if err := g.Wait(); err != nil {
		return err
	}

	stats := s.Stats()
	fmt.Fprintf(c.App.Writer, "frames: %d\n", frames)
	fmt.Fprintf(c.App.Writer, "tasks: %d\n", tasks)
	if frames > 0 {
		fmt.Fprintf(c.App.Writer, "avg frame: %v\n", (busy / time.Duration(frames)).Round(time.Microsecond))
	}
	fmt.Fprintf(c.App.Writer, "workers: %d fibers: %d peak bound: %d panicked: %d\n",
		stats.Workers, stats.Fibers, stats.FibersHighWater, stats.Panicked)

	if recorder != nil {
		s.Close()
		if err := recorder.WriteChromeFile(traceOut); err != nil {
			return fmt.Errorf("write trace: %w", err)
		}
		a.zl.Info().
			Str("path", traceOut).
			Int("events", len(recorder.Events())).
			Uint64("dropped", recorder.Dropped()).
			Msg("trace written")
	}
	return nil
}
