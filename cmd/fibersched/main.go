// Command fibersched runs workloads on the fiber scheduler.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/Swind/go-fiber-scheduler/config"
	"github.com/Swind/go-fiber-scheduler/core"
)

// app holds state shared by the commands after Before has run.
type app struct {
	cfg    *config.Config
	zl     zerolog.Logger
	logger core.Logger
}

func newApp() *cli.App {
	a := &app{}
	return &cli.App{
		Name:  "fibersched",
		Usage: "run workloads on the fiber task scheduler",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML, TOML or JSON config file",
				EnvVars: []string{config.EnvPrefix + "_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override logging.level",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "override logging.format (console or json)",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "override scheduler.workers",
			},
		},
		Before: a.before,
		Commands: []*cli.Command{
			a.runCommand(),
			a.benchCommand(),
		},
	}
}

func (a *app) before(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}
	if c.IsSet("workers") {
		cfg.Scheduler.Workers = c.Int("workers")
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return cli.Exit(errs.Error(), 2)
	}

	zl, err := cfg.Zerolog(c.App.ErrWriter)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	a.cfg = cfg
	a.zl = zl
	a.logger = core.NewZerologLogger(zl)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		zl.Debug().Msgf(format, args...)
	})); err != nil {
		zl.Warn().Err(err).Msg("automaxprocs failed")
	}
	return nil
}

// newScheduler builds a scheduler from the loaded config plus the given
// listeners and metrics sink.
func (a *app) newScheduler(listener core.Listener, metrics core.Metrics) (*core.TaskScheduler, error) {
	sc, err := a.cfg.SchedulerConfig(a.logger)
	if err != nil {
		return nil, err
	}
	if listener != nil {
		sc.Listener = listener
	}
	if metrics != nil {
		sc.Metrics = metrics
	}
	return core.NewTaskSchedulerWithConfig(sc)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
