package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kerbaras/mdbulk/pkg/config"
	"github.com/kerbaras/mdbulk/pkg/logging"
	"github.com/kerbaras/mdbulk/pkg/metrics"
	"github.com/kerbaras/mdbulk/pkg/services"
	"github.com/kerbaras/mdbulk/pkg/sources"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	useTUI  bool
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:          "mdbulk",
	Short:        "Bulk chapter tool for MangaDex",
	Long:         "Upload, edit, delete and restore MangaDex chapters in bulk",
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/mdbulk/config.yaml)")
	flags.BoolVar(&useTUI, "tui", false, "show job progress in a terminal UI")

	flags.String("api-url", config.DefaultAPIURL, "API base URL")
	flags.String("auth-url", config.DefaultAuthURL, "OpenID Connect base URL")
	flags.String("client-id", "", "API client id")
	flags.String("client-secret", "", "API client secret")
	flags.String("username", "", "account username")
	flags.String("data-dir", "", "directory for the database and edit snapshots")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("debug", false, "development logging")
	flags.Float64("rate-limit", 4, "requests per second, 0 disables pacing")
	flags.Duration("timeout", 0, "HTTP request timeout")
	flags.String("snapshot-store", config.SnapshotStoreFile, "where edit snapshots go (file or duckdb)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")

	for _, name := range []string{
		"api-url", "auth-url", "client-id", "client-secret", "username", "data-dir",
		"log-level", "debug", "rate-limit", "timeout", "snapshot-store", "metrics-addr",
	} {
		cobra.CheckErr(v.BindPFlag(configKey(name), flags.Lookup(name)))
	}

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(deactivateCmd)
	rootCmd.AddCommand(reactivateCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(revertCmd)
	rootCmd.AddCommand(snapshotsCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env is everything a command needs for one run.
type env struct {
	ctx        context.Context
	cfg        *config.Config
	logger     *zap.Logger
	controller *services.Controller
	stop       context.CancelFunc
}

func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Debug)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	controller, err := services.NewController(cfg, logger, m)
	if err != nil {
		stop()
		return nil, err
	}
	return &env{ctx: ctx, cfg: cfg, logger: logger, controller: controller, stop: stop}, nil
}

func (e *env) Close() {
	if err := e.controller.Close(); err != nil {
		e.logger.Warn("failed to close controller", zap.Error(err))
	}
	e.stop()
	e.logger.Sync()
}

// login signs in with configured credentials or resumes the remembered
// login. An existing session is kept.
func (e *env) login() error {
	if e.controller.LoggedIn() {
		return nil
	}
	if e.cfg.Username != "" && e.cfg.Password != "" {
		return e.controller.Login(e.ctx, e.credentials(), false)
	}
	err := e.controller.Resume(e.ctx)
	if errors.Is(err, sources.ErrNotLoggedIn) {
		return errors.New("not logged in, run 'mdbulk login --remember' or set MDBULK_USERNAME and MDBULK_PASSWORD")
	}
	return err
}

func (e *env) credentials() sources.Credentials {
	return sources.Credentials{
		Username:     e.cfg.Username,
		Password:     e.cfg.Password,
		ClientID:     e.cfg.ClientID,
		ClientSecret: e.cfg.ClientSecret,
	}
}

// withEnv runs fn with a ready env and closes it afterwards.
func withEnv(fn func(cmd *cobra.Command, args []string, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()
		return fn(cmd, args, e)
	}
}
