// Command authgate runs the authentication gateway in front of the
// application: it resolves session cookies and bearer tokens, guards
// routes by role, and serves the password and LinkedIn sign-in flows.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/flokana/authgate/auth/server"
	"github.com/flokana/authgate/lib/logger"
	"github.com/flokana/authgate/lib/logger/klog"
)

func newLogger(config *server.Config) (logger.Logger, error) {
	mods := []logger.LogrusModifier{logger.WithLevel(config.LogLevel)}
	if config.LogFormat == "json" {
		mods = append(mods, logger.WithJSONOutput())
	}
	log := logger.NewLogrus(mods...)

	if config.LogFile == "" {
		return log, nil
	}

	file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, err
	}
	audit := logger.NewLogrus(logger.WithLevel(config.LogLevel), logger.WithJSONOutput())
	audit.SetOutput(file)
	return klog.NewTee(log, audit), nil
}

func run(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return err
		}
	} else {
		// Best effort: a missing .env just means the environment is
		// already populated.
		godotenv.Load()
	}

	config, err := server.LoadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, config, server.WithServerLogger(log))
	if err != nil {
		return err
	}
	defer srv.Close()

	return srv.ListenAndServe(ctx)
}

func main() {
	var envFile string

	root := &cobra.Command{
		Use:           "authgate",
		Short:         "Authentication and session resolution gateway",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(envFile)
		},
	}
	root.Flags().StringVar(&envFile, "env-file", "", "Load environment variables from this file before reading the configuration")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
