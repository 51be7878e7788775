package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nilltadios/gemini-qa-webapp/internal/attachments"
	"github.com/nilltadios/gemini-qa-webapp/internal/metrics"
	"github.com/nilltadios/gemini-qa-webapp/internal/repository"
	"github.com/nilltadios/gemini-qa-webapp/internal/repository/postgres"
	"github.com/nilltadios/gemini-qa-webapp/internal/telegram"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	Long: `Run the Telegram bot until SIGINT/SIGTERM.

With DATABASE_URL set every quality run is journaled to Postgres and /stats
becomes available. Prometheus metrics are served on METRICS_ADDR.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateBot(); err != nil {
			return err
		}
		debug, _ := cmd.Flags().GetBool("debug")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m := metrics.New()

		p, err := newProvider(ctx, cfg, logger)
		if err != nil {
			return err
		}

		var runs repository.RunRepository
		if cfg.Database.URL != "" {
			db, err := postgres.New(ctx, cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()
			if err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
			runs = postgres.NewRunRepo(db)
			logger.Info("run journal enabled")
		}

		srv := serveMetrics(cfg.Metrics.Addr, logger)
		if srv != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		bot, err := telegram.New(telegram.BotConfig{
			Token:             cfg.Telegram.Token,
			Debug:             debug,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			CodeBlocked:       cfg.CodeExecutionBlocked(),
			MaxRefinements:    cfg.Quality.MaxRefinements,
			SessionTTL:        cfg.SessionTTL(),
			Attachments: attachments.Config{
				Extensions: cfg.Attachments.Extensions,
				MaxBytes:   cfg.Attachments.MaxBytes,
			},
		}, newAssistant(cfg, p, runs, logger, m), p.files, runs, logger, m)
		if err != nil {
			return err
		}

		capable, fast := cfg.Models()
		logger.Info("starting bot",
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", capable),
			zap.String("fast_model", fast),
			zap.Bool("code_blocked", cfg.CodeExecutionBlocked()),
		)

		if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("bot stopped")
		return nil
	},
}

func init() {
	botCmd.Flags().Bool("debug", false, "Log raw Telegram API traffic")
	rootCmd.AddCommand(botCmd)
}

// serveMetrics поднимает /metrics в фоне, пустой addr - выключено
func serveMetrics(addr string, logger *zap.Logger) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
