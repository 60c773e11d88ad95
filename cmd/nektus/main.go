// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexweingart/nektus-sub006/config"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

// env holds what every command needs once flags are parsed.
type env struct {
	configPath string

	cfg *config.Config
	log *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "nektus",
		Short:         "Proximity contact exchange matching engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return e.load()
		},
	}
	root.PersistentFlags().StringVar(
		&e.configPath,
		"config",
		os.Getenv(config.EnvPrefix+"CONFIG"),
		"path to a TOML configuration file",
	)

	root.AddCommand(newSimulateCmd(e))
	root.AddCommand(newRelayCmd(e))
	root.AddCommand(newHashCmd())
	root.AddCommand(newElectCmd())
	return root
}

func (e *env) load() error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.log = slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:   level,
		NoColor: cfg.Logging.NoColor,
	}))
	return nil
}
