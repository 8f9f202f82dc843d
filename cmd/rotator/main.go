package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/belgiumluv/docker-cont/internal/config"
	rerrors "github.com/belgiumluv/docker-cont/internal/errors"
	"github.com/belgiumluv/docker-cont/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(rerrors.ExitCode(err))
	}
}

// app carries the state shared by every subcommand
type app struct {
	configFile string
	logLevel   string

	cfg *config.Config
	log *logger.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "rotator",
		Short: "Rotate decoy domains, endpoint paths and secrets for the proxy container",
		Long: `rotator keeps the proxy server and its HAProxy front end in step.

The mutate stage picks new decoy domains, rewrites the server document and
writes a change-set. The patch stage applies that change-set and the recorded
decoys to the HAProxy configuration. rotate runs both.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}

	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", os.Getenv("CONFIG_FILE"),
		"path to a YAML config file (env CONFIG_FILE)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		a.mutateCommand(),
		a.patchCommand(),
		a.rotateCommand(),
		a.serveCommand(),
		a.showCommand(),
		a.tokenCommand(),
		a.configCommand(),
	)
	return root
}

// load builds the configuration and logger once per invocation
func (a *app) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.cfg = cfg
	a.log = log.WithField("command", cmd.Name())
	return nil
}
