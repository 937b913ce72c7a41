package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/schoolbooks/cmd/schoolbooks/cli"
	"github.com/odyssey-erp/schoolbooks/internal/app"
	"github.com/odyssey-erp/schoolbooks/internal/invoicing"
	"github.com/odyssey-erp/schoolbooks/internal/observability"
	"github.com/odyssey-erp/schoolbooks/internal/platform/cache"
	"github.com/odyssey-erp/schoolbooks/internal/platform/db"
	"github.com/odyssey-erp/schoolbooks/internal/receipts"
	"github.com/odyssey-erp/schoolbooks/internal/reports"
	"github.com/odyssey-erp/schoolbooks/internal/shared"
	"github.com/odyssey-erp/schoolbooks/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobs(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, PoolSize: cfg.RedisPoolSize, Timeout: cfg.RedisTimeout})
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	reportsService := reports.NewService(reports.NewRepository(dbpool), reports.NewCache(redisClient, cfg.ReportCacheTTL), metrics)
	reportsHandler := reports.NewHandler(logger, reportsService)

	invoicingService := invoicing.NewService(invoicing.NewRepository(dbpool), invoicing.Deps{
		Audit:       auditLogger,
		Idempotency: idempotencyStore,
		Metrics:     metrics,
		Notifier:    jobClient,
		Logger:      logger,
		DefaultMode: cfg.GroupMode(),
	})
	invoicingHandler := invoicing.NewHandler(logger, invoicingService)

	receiptsService := receipts.NewService(receipts.NewRepository(dbpool), auditLogger, idempotencyStore, metrics, reportsService, logger)
	receiptsHandler := receipts.NewHandler(logger, receiptsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		InvoicingHandler: invoicingHandler,
		ReceiptsHandler:  receiptsHandler,
		ReportsHandler:   reportsHandler,
		JobHandler:       jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runJobs handles "jobs trigger <name> [arg]" and "jobs stats".
func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer jobsCLI.Close()

	if len(args) == 0 {
		return errors.New("usage: schoolbooks jobs trigger <name> [arg] | stats")
	}
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("usage: schoolbooks jobs trigger <name> [arg]")
		}
		arg := ""
		if len(args) > 2 {
			arg = args[2]
		}
		info, err := jobsCLI.Trigger(ctx, args[1], arg)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s as %s\n", info.Type, info.ID)
	case "stats":
		queues, err := jobsCLI.InspectQueues(ctx)
		if err != nil {
			return err
		}
		for _, stats := range queues {
			fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		}
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
	return nil
}
