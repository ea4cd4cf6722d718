package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kevinmaint/maint-api/cmd/maintctl/commands"
	"github.com/kevinmaint/maint-api/internal/bootstrap"
	"github.com/kevinmaint/maint-api/internal/config"
	"github.com/kevinmaint/maint-api/internal/database"
	"github.com/kevinmaint/maint-api/internal/location"
	"github.com/kevinmaint/maint-api/internal/logger"
	"github.com/kevinmaint/maint-api/internal/services/oidc"
	"github.com/kevinmaint/maint-api/internal/services/thread"
)

func main() {
	var verbose bool
	rootCmd := &cobra.Command{
		Use:           "maintctl",
		Short:         "Operator tool for the maintenance API",
		Long:          "CLI tool for inspecting the fingerprint cache, summaries, bug reports, location detection and OIDC settings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr while running")

	env := &environment{verbose: &verbose}
	rootCmd.AddCommand(commands.NewCacheCmd(env.cache))
	rootCmd.AddCommand(commands.NewSummaryCmd(env.summaries))
	rootCmd.AddCommand(commands.NewBugReportsCmd(env.bugReports))
	rootCmd.AddCommand(commands.NewDetectCmd(env.detector, nil))
	rootCmd.AddCommand(commands.NewOIDCCmd(env.oidcSettings))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// environment opens real backends for commands from the service configuration
type environment struct {
	verbose *bool
}

func (e *environment) config() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !*e.verbose {
		return cfg, zap.NewNop(), nil
	}
	l, err := logger.New(logger.Options{Service: "maintctl", Debug: true, Development: true})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, l, nil
}

func (e *environment) database() (*database.DB, func(), error) {
	cfg, _, err := e.config()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}, nil
}

// cache opens the shared Redis cache; the in-memory cache lives inside each API process
func (e *environment) cache(ctx context.Context) (location.FingerprintCache, func(), error) {
	cfg, _, err := e.config()
	if err != nil {
		return nil, nil, err
	}
	if cfg.RedisURL == "" {
		return nil, nil, fmt.Errorf("REDIS_URL is not set; the fingerprint cache is per process")
	}
	client, err := bootstrap.Redis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return bootstrap.FingerprintCache(client, cfg.Location), func() { _ = client.Close() }, nil
}

func (e *environment) summaries(ctx context.Context) (commands.SummaryRecomputer, func(), error) {
	_, log, err := e.config()
	if err != nil {
		return nil, nil, err
	}
	db, release, err := e.database()
	if err != nil {
		return nil, nil, err
	}
	// Recomputing reads accepted proposals only, so no engine is needed
	svc := thread.NewService(
		database.NewIssueRepository(db),
		database.NewThreadRepository(db),
		database.NewSummaryRepository(db),
		nil,
		nil,
		log,
	)
	return svc, release, nil
}

func (e *environment) bugReports(ctx context.Context) (commands.BugReportLister, func(), error) {
	db, release, err := e.database()
	if err != nil {
		return nil, nil, err
	}
	return database.NewBugReportRepository(db), release, nil
}

func (e *environment) detector(ctx context.Context) (commands.Detector, func(), error) {
	cfg, log, err := e.config()
	if err != nil {
		return nil, nil, err
	}
	if cfg.RedisURL == "" {
		return bootstrap.Detector(cfg, bootstrap.FingerprintCache(nil, cfg.Location), log), nil, nil
	}
	client, err := bootstrap.Redis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	detector := bootstrap.Detector(cfg, bootstrap.FingerprintCache(client, cfg.Location), log)
	return detector, func() { _ = client.Close() }, nil
}

func (e *environment) oidcSettings() (oidc.Settings, error) {
	cfg, _, err := e.config()
	if err != nil {
		return oidc.Settings{}, err
	}
	return oidc.Settings{
		Issuer:       cfg.OIDCIssuer,
		JWKSURL:      cfg.OIDCJWKSURL,
		Audience:     cfg.OIDCAudience,
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURI:  cfg.OIDCRedirectURI,
	}, nil
}
