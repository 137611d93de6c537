package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/exam-grader/internal/analytics"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/export"
	"github.com/joseph-ayodele/exam-grader/internal/llm/gemini"
	"github.com/joseph-ayodele/exam-grader/internal/pipeline"
	repo "github.com/joseph-ayodele/exam-grader/internal/repository"
	"github.com/joseph-ayodele/exam-grader/internal/review"
	"github.com/joseph-ayodele/exam-grader/internal/server"
	"github.com/joseph-ayodele/exam-grader/internal/services/grading"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file (overrides CONFIG_FILE)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfigFile(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("exam-grader stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *common.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(ctx, repo.ConfigFrom(cfg.Database), logger)
	if err != nil {
		return fmt.Errorf("open database (%s): %w", cfg.Database.Driver, err)
	}
	defer db.Close()

	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	client, err := gemini.New(ctx, gemini.ConfigFrom(cfg.Gemini), logger)
	if err != nil {
		return fmt.Errorf("create gemini client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("closing gemini client", "error", err)
		}
	}()

	results := repo.NewResultRepository(db, logger)
	processor := pipeline.NewProcessor(client, client, logger, pipeline.OptionsFrom(cfg.Batch)...)
	svc := grading.NewService(
		processor,
		results,
		analytics.NewEngine(results, logger),
		export.NewService(logger),
		review.NewStore(),
		logger,
	)

	httpServer := server.NewHTTPServer(svc, func(ctx context.Context) error {
		return db.HealthCheck(ctx, 2*time.Second)
	}, cfg.Server, logger)

	// gRPC health only
	var grpcServer *grpc.Server
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.Server.GRPCAddr, err)
		}
		grpcServer = grpc.NewServer()
		healthServer := health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

		logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
		go func() {
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				logger.Error("gRPC serve error", "error", err)
				stop()
			}
		}()
	}

	go func() {
		if err := httpServer.Listen(cfg.Server.HTTPAddr); err != nil {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	return nil
}
