package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/chanbot/internal/backup"
	"github.com/alfredjeanlab/chanbot/internal/config"
	"github.com/alfredjeanlab/chanbot/internal/events"
	"github.com/alfredjeanlab/chanbot/internal/lifecycle"
	"github.com/alfredjeanlab/chanbot/internal/platform"
	"github.com/alfredjeanlab/chanbot/internal/provision"
	"github.com/alfredjeanlab/chanbot/internal/server"
	"github.com/alfredjeanlab/chanbot/internal/store"
	"github.com/alfredjeanlab/chanbot/internal/store/filestore"
	"github.com/alfredjeanlab/chanbot/internal/store/mongo"
	"github.com/alfredjeanlab/chanbot/internal/store/postgres"
)

const healthInterval = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the bot: webhooks, admin API and the expiry sweep",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create an admin client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		sweepOnStart, _ := cmd.Flags().GetBool("sweep-on-start")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		logger.Info("store opened", "backend", cfg.Store)

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (CHANBOT_NATS_URL not set)")
		}

		slackClient := platform.NewSlackClient(cfg.SlackUserToken, cfg.SlackBotToken)
		manager := lifecycle.NewManager(st, slackClient, publisher, logger,
			lifecycle.WithDefaultDays(cfg.DefaultExpireDays))
		provisioner := provision.New(slackClient, st, publisher, logger,
			provision.WithLeaveAfterCreate(cfg.LeaveAfterCreate))

		opts := []server.Option{
			server.WithLogger(logger),
			server.WithAuthChannel(cfg.AuthChannel),
			server.WithDefaultDays(cfg.DefaultExpireDays),
			server.WithSigningSecret(cfg.SlackSigningSecret),
		}
		if cfg.SlackClientID != "" && cfg.SlackClientSecret != "" {
			opts = append(opts, server.WithOAuth(func(ctx context.Context, code string) (*slack.OAuthV2Response, error) {
				return platform.ExchangeOAuthCode(ctx, cfg.SlackClientID, cfg.SlackClientSecret, code)
			}))
		}
		srv := server.New(st, slackClient, manager, provisioner, opts...)

		sweeper, err := lifecycle.NewScheduler(manager, cfg.SweepSchedule, sweepOnStart, logger)
		if err != nil {
			publisher.Close()
			st.Close()
			return fmt.Errorf("CHANBOT_SWEEP_SCHEDULE: %w", err)
		}
		sweeper.Start()
		logger.Info("sweep scheduler started", "schedule", cfg.SweepSchedule)

		backups := startBackups(cmd.Context(), cfg, st, logger)

		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: srv.NewHTTPHandler(cfg.AuthToken),
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		healthCtx, healthCancel := context.WithCancel(context.Background())
		defer healthCancel()
		grpcServer, hs := server.NewGRPCServer()
		if cfg.GRPCAddr != "" {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				logger.Error("gRPC listen failed", "addr", cfg.GRPCAddr, "err", err)
			} else {
				go server.WatchHealth(healthCtx, hs, st, healthInterval, logger)
				go func() {
					logger.Info("gRPC health server listening", "addr", cfg.GRPCAddr)
					if err := grpcServer.Serve(lis); err != nil {
						logger.Error("gRPC server error", "err", err)
					}
				}()
			}
		}

		logger.Info("chanbot started", "http_addr", cfg.HTTPAddr, "grpc_addr", cfg.GRPCAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		sweeper.Stop()
		logger.Info("sweep scheduler stopped")
		if backups != nil {
			backups.Stop()
			logger.Info("backup scheduler stopped")
		}

		healthCancel()
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		srv.Wait()
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		return postgres.New(cfg.DatabaseURL)
	case config.StoreMongo:
		return mongo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return filestore.New(cfg.DBPath)
	}
}

// startBackups returns nil when no interval or destination is configured.
func startBackups(ctx context.Context, cfg *config.Config, st store.Store, logger *slog.Logger) *backup.Scheduler {
	if cfg.BackupInterval.Duration <= 0 {
		return nil
	}

	var dests []backup.Destination
	if cfg.BackupS3Bucket != "" {
		s3Dest, err := backup.NewS3Destination(ctx, backup.S3Options{
			Bucket:   cfg.BackupS3Bucket,
			Key:      cfg.BackupS3Key,
			Region:   cfg.BackupS3Region,
			Endpoint: cfg.BackupS3Endpoint,
		})
		if err != nil {
			logger.Error("failed to create S3 backup destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("backup S3 destination enabled", "bucket", cfg.BackupS3Bucket, "key", cfg.BackupS3Key)
		}
	}
	if cfg.BackupGitRepo != "" {
		dests = append(dests, backup.NewGitDestination(cfg.BackupGitRepo, cfg.BackupGitFile, cfg.BackupGitBranch))
		logger.Info("backup git destination enabled", "repo", cfg.BackupGitRepo, "file", cfg.BackupGitFile)
	}
	if len(dests) == 0 {
		return nil
	}

	s := backup.NewScheduler(st, dests, cfg.BackupInterval.Duration, logger)
	s.Start()
	logger.Info("backup scheduler started", "interval", cfg.BackupInterval.Duration)
	return s
}

func init() {
	serveCmd.Flags().Bool("sweep-on-start", true, "run one sweep immediately at startup")
}
