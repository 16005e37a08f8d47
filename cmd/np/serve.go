package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nitroplanner/nitroplanner/internal/alert"
	"github.com/nitroplanner/nitroplanner/internal/alert/discord"
	"github.com/nitroplanner/nitroplanner/internal/alert/slack"
	"github.com/nitroplanner/nitroplanner/internal/api"
	"github.com/nitroplanner/nitroplanner/internal/config"
	"github.com/nitroplanner/nitroplanner/internal/jobs"
	"github.com/nitroplanner/nitroplanner/internal/planner"
	"github.com/nitroplanner/nitroplanner/internal/simulation"
	"github.com/nitroplanner/nitroplanner/internal/template"
	"github.com/nitroplanner/nitroplanner/internal/workunit"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the workflow engine HTTP API",
		Long:  "Serves the workflow, simulation, template and work unit API, runs background simulation jobs and posts schedule risk alerts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to NitroPlanner config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default: server.port from config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// buildNotifier fans alerts out to every configured chat platform.
func buildNotifier(cfg config.AlertsConfig) (alert.Notifier, error) {
	var multi alert.Multi
	if cfg.Slack.Enabled() {
		n, err := slack.New(slack.Opts{BotToken: cfg.Slack.BotToken, ChannelID: cfg.Slack.ChannelID})
		if err != nil {
			return nil, err
		}
		multi = append(multi, n)
	}
	if cfg.Discord.Enabled() {
		n, err := discord.New(discord.Opts{BotToken: cfg.Discord.BotToken, ChannelID: cfg.Discord.ChannelID})
		if err != nil {
			return nil, err
		}
		multi = append(multi, n)
	}
	if len(multi) == 0 {
		return alert.Nop{}, nil
	}
	return multi, nil
}

func runServe(cmd *cobra.Command, configPath string, port int, logLevel string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	company, err := defaultCompany(cfg, gormDB)
	if err != nil {
		return err
	}
	notifier, err := buildNotifier(cfg.Alerts)
	if err != nil {
		return err
	}

	limits := simulation.LimitsFromConfig(cfg.Simulation)
	units := workunit.NewStore(gormDB)
	templates := template.NewStore(gormDB)
	svc := planner.New(planner.Deps{
		Units:     units,
		Templates: templates,
		Runs:      planner.NewRunStore(gormDB),
		Simulator: simulation.New(limits, logger.Named("simulation")),
		Notifier:  notifier,
		Logger:    logger.Named("planner"),
		Timeout:   cfg.Simulation.Timeout,
	})

	runner, err := jobs.New(gormDB, svc, jobs.OptsFromConfig(cfg.Jobs, cfg.Simulation, logger.Named("jobs")))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	if err := runner.Start(ctx); err != nil {
		return err
	}
	defer func() {
		cancel()
		runner.Stop()
	}()

	if port <= 0 {
		port = cfg.Server.Port
	}
	return api.Start(ctx, api.StartOpts{
		Opts: api.Opts{
			Planner:   svc,
			Units:     units,
			Templates: templates,
			Jobs:      runner,
			Limits:    limits,
			CompanyID: company.ID,
			Logger:    logger.Named("api"),
			Registry:  prometheus.NewRegistry(),
		},
		Port: port,
		Out:  cmd.OutOrStdout(),
	})
}
