package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/warp/commission-engine/api"
	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/config"
	"github.com/warp/commission-engine/logs"
	"github.com/warp/commission-engine/store/redislock"
	"github.com/warp/commission-engine/store/sqlite"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "commissiond",
	Short: "Commission calculation engine for field sales organisations.",
	Long: `commissiond rebuilds the commission set of a deal from the organisation
as it stood on the deal's effective date: who set and closed it, their
managers and recruiters, and the office leadership above them.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newRecalcCommand())
	rootCmd.AddCommand(newSeedCommand())
}

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app is the dependency graph shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *sqlite.Store
	redis   *goredis.Client
	calc    *commission.Calculator
	batch   *commission.BatchRecalculator
	handler *api.Handler
}

// loadConfig reads --config and installs the configured logger as default.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Read(path)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logs.New(cfg))
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := slog.Default()

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, store: store}

	locker, err := a.newLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.calc = commission.NewCalculator(store, commission.CalculatorConfig{
		Logger:            logger,
		Locker:            locker,
		LockTimeout:       cfg.Engine.LockTimeout,
		MaxManagerDepth:   cfg.Engine.MaxManagerDepth,
		MaxRecruiterDepth: cfg.Engine.MaxRecruiterDepth,
	})
	a.batch = &commission.BatchRecalculator{
		Calc:        a.calc,
		Concurrency: cfg.Engine.BatchConcurrency,
		Logger:      logger,
	}
	a.handler = api.NewHandler(store, a.calc, a.batch, logger)
	return a, nil
}

func (a *app) newLocker(ctx context.Context) (commission.DealLocker, error) {
	switch a.cfg.Lock.Backend {
	case "redis":
		client, err := redislock.NewClient(ctx, a.cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.redis = client
		locker := redislock.New(client, a.cfg.Redis.KeyPrefix, a.cfg.Redis.LockTTL)
		locker.Logger = a.logger
		a.logger.Info("using redis deal lock", slog.String("addr", a.cfg.Redis.Addr))
		return locker, nil
	default:
		return commission.NewKeyedLocker(), nil
	}
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis", slog.String("error", err.Error()))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}
