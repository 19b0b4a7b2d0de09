package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devplan/internal/api"
	"devplan/internal/config"
	"devplan/internal/pkg/logger"
	"devplan/internal/preflight"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	configPath string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "preflight",
	Short:         "Verify configuration and backends before deploying the API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Check required variables and insecure defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return finish(cmd, preflight.CheckEnv(cfg))
	},
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Probe every table, the storage bucket and Redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		report, err := probeGateway(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		return finish(cmd, report)
	},
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Run env and gateway checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		report := preflight.CheckEnv(cfg)
		if report.Failed() {
			// 配置不完整时不再连接后端
			return finish(cmd, report)
		}
		gw, err := probeGateway(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		report.Merge(gw)
		return finish(cmd, report)
	},
}

func probeGateway(ctx context.Context, cfg *config.Config) (preflight.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	deps, err := api.OpenBackend(ctx, cfg, logger.New(os.Stderr, cfg.App.Env, "warn"))
	if err != nil {
		return preflight.Report{}, err
	}
	defer func() {
		for _, c := range deps.Closers {
			_ = c.Close()
		}
	}()
	report := preflight.CheckGateway(ctx, deps.Gateway, deps.Storage)

	var rdb redis.UniversalClient
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer client.Close()
		rdb = client
	}
	report.Merge(preflight.CheckRedis(ctx, rdb))
	return report, nil
}

func finish(cmd *cobra.Command, report preflight.Report) error {
	report.Print(cmd.OutOrStdout())
	if report.Failed() {
		return fmt.Errorf("preflight failed")
	}
	return nil
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to config.json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "timeout for backend probes")
	rootCmd.AddCommand(envCmd, gatewayCmd, allCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
