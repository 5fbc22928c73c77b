package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"autotrader/apps/autotrader/internal/api"
	"autotrader/apps/autotrader/internal/config"
	"autotrader/apps/autotrader/internal/copytrade"
	"autotrader/apps/autotrader/internal/notifier"
	"autotrader/apps/autotrader/internal/repository"
)

const shutdownTimeout = 30 * time.Second

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "autotrader",
		Short:         "Autonomous execution engine for snipe, limit, DCA and copy-trade intents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml)")

	rootCmd.AddCommand(serveCmd(), migrateCmd(), tickCmd(), sweepCmd(), tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, API, notification publisher and copy-trade consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), serve)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := repository.InitMigration(ctx, a.db); err != nil {
					return err
				}
				a.logger.Info("Database schema is up to date")
				return nil
			})
		},
	}
}

func tickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				report, err := a.scheduler.Tick(ctx)
				if err != nil {
					return err
				}
				a.logger.Info("Tick completed",
					zap.Int("reclaimed", report.Reclaimed),
					zap.Int("claimed", report.Claimed),
					zap.Int("fired", report.Fired),
					zap.Int("committed", report.Committed))
				return nil
			})
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Return stale processing intents to pending and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				n, err := a.scheduler.Sweep(ctx)
				if err != nil {
					return err
				}
				a.logger.Info("Sweep completed", zap.Int("reclaimed", n))
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var subject, role string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwt_secret is not set")
			}
			token, err := api.NewAuthenticator([]byte(cfg.Server.JWTSecret)).IssueToken(subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "frontend", "token subject")
	cmd.Flags().StringVar(&role, "role", api.RoleService, "token role (service or admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := repository.InitMigration(ctx, a.db); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	publisher, err := notifier.NewPublisher(a.cfg.Kafka.Broker, a.cfg.Kafka.NotificationTopic, a.outbox, a.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()
	go publisher.Start(ctx)

	consumer, err := copytrade.NewConsumer(a.cfg.Kafka.Broker, a.cfg.Kafka.TradeTopic, a.cfg.Kafka.GroupID, a.intents, a.metrics, a.logger)
	if err != nil {
		return err
	}
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil {
			a.logger.Fatal("Copy-trade consumer failed", zap.Error(err))
		}
	}()

	apiServer := api.NewServer(a.cfg.Server.Port, a.cfg.Server.JWTSecret, api.Deps{
		Users:     a.users,
		Wallets:   a.users,
		Intents:   a.intents,
		Scheduler: a.scheduler,
		Metrics:   a.metrics,
	}, a.logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			a.logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	go a.scheduler.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	a.logger.Info("Received shutdown signal, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Error("Error stopping scheduler", zap.Error(err))
	}
	if err := apiServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("Error shutting down API server", zap.Error(err))
	}
	cancel()
	<-consumerDone
	if err := consumer.Close(); err != nil {
		a.logger.Error("Error closing copy-trade consumer", zap.Error(err))
	}

	// flush what the last tick queued
	if _, err := publisher.PublishPending(shutdownCtx); err != nil {
		a.logger.Error("Error flushing notifications", zap.Error(err))
	}

	a.logger.Info("Application shutdown complete")
	return nil
}
