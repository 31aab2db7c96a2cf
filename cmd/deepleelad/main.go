// Command deepleelad serves GTP engines to WebSocket clients. The root
// command supervises worker processes; the hidden worker subcommand is what
// each of them runs.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"deepleelad/internal/config"
	"deepleelad/internal/logging"
	"deepleelad/internal/proctitle"
	"deepleelad/internal/supervisor"
	"deepleelad/internal/worker"
)

// exitUsage is returned for command line errors.
const exitUsage = 2

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

type flags struct {
	config  string
	workers int
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	code := worker.ExitOK
	root := newRootCmd(ctx, stderr, &code)
	root.SetArgs(args)
	root.SetOut(stderr)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "deepleelad:", err)
		return exitUsage
	}
	return code
}

func newRootCmd(ctx context.Context, stderr io.Writer, code *int) *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:           "deepleelad",
		Short:         "Go engine pool and WebSocket gateway",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			*code = runMaster(ctx, f, stderr)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&f.config, "config", "c", config.DefaultPath, "Configuration file (.json, .yaml, .toml)")
	root.PersistentFlags().IntVarP(&f.workers, "workers", "w", 0, "Worker processes (0 uses the configuration)")

	workerCmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run one gateway worker in the foreground",
		Args:   cobra.NoArgs,
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			*code = worker.Run(ctx, worker.Options{ConfigPath: f.config, Workers: f.workers, Stderr: stderr})
			return nil
		},
	}
	root.AddCommand(workerCmd)
	return root
}

// runMaster validates the configuration, then keeps the configured number of
// workers alive until ctx is canceled.
func runMaster(ctx context.Context, f flags, stderr io.Writer) int {
	boot := logging.Bootstrap(proctitle.Master, stderr)
	cfg, err := worker.LoadConfig(f.config, f.workers)
	if err != nil {
		boot.WithLevel(zerolog.FatalLevel).Err(err).Str("path", f.config).Msg("cannot start without a valid configuration")
		return worker.ExitConfig
	}
	logger, closer, err := logging.New(cfg.Log, proctitle.Master, stderr)
	if err != nil {
		boot.WithLevel(zerolog.FatalLevel).Err(err).Str("path", f.config).Msg("cannot start without a valid configuration")
		return worker.ExitConfig
	}
	defer closer.Close()
	if err := proctitle.Set(proctitle.Master); err != nil {
		logger.Debug().Err(err).Msg("set thread name")
	}

	path, err := filepath.Abs(f.config)
	if err != nil {
		path = f.config
	}
	args := []string{"worker", "--config", path}
	if f.workers > 0 {
		args = append(args, "--workers", fmt.Sprint(f.workers))
	}

	sup := supervisor.New(supervisor.Config{
		Workers: cfg.Workers,
		Spawner: supervisor.ExecSpawner{Args: args, Label: proctitle.Worker, Stderr: stderr},
		Policy: supervisor.Policy{
			Burst:     cfg.Restart.Burst,
			Window:    cfg.Restart.WindowDuration(),
			BaseDelay: cfg.Restart.BaseDelayDuration(),
			MaxDelay:  cfg.Restart.MaxDelayDuration(),
		},
		Logger: &logger,
	})
	logger.Info().Str("config", path).Msg("configuration loaded")
	_ = sup.Run(ctx)
	return worker.ExitOK
}
