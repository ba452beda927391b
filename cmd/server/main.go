package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-ip-review/internal/api"
	"github.com/pesio-ai/be-ip-review/internal/catalog"
	"github.com/pesio-ai/be-ip-review/internal/client"
	"github.com/pesio-ai/be-ip-review/internal/handler"
	"github.com/pesio-ai/be-ip-review/internal/platform/clock"
	"github.com/pesio-ai/be-ip-review/internal/platform/config"
	"github.com/pesio-ai/be-ip-review/internal/platform/database"
	"github.com/pesio-ai/be-ip-review/internal/platform/logger"
	"github.com/pesio-ai/be-ip-review/internal/platform/middleware"
	"github.com/pesio-ai/be-ip-review/internal/repository"
	"github.com/pesio-ai/be-ip-review/internal/service"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Str("store", cfg.Store.Driver).
		Str("notify", cfg.Notify.Driver).
		Msg("Starting IP Review Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	var store repository.Store
	switch cfg.Store.Driver {
	case "memory":
		store = repository.NewMemoryStore()
		log.Warn().Msg("Using in-memory store; data is lost on restart")
	default:
		db, err := database.New(ctx, database.Config{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			Database:    cfg.Database.Database,
			SSLMode:     cfg.Database.SSLMode,
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			MaxConnTime: cfg.Database.MaxConnTime,
			MaxIdleTime: cfg.Database.MaxIdleTime,
			HealthCheck: cfg.Database.HealthCheck,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("Database connection established")

		pg := repository.NewPostgresStore(db)
		if cfg.Database.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				log.Fatal().Err(err).Msg("Failed to apply schema")
			}
			log.Info().Msg("Database schema applied")
		}
		store = pg
	}

	// Initialize services
	clk := clock.Real()
	registry := workflow.NewDetailRegistry()
	opts := service.Options{MinNotesLength: cfg.Workflow.MinNotesLength}
	svc := handler.Services{
		Workflow:    service.NewWorkflowService(store, clk, opts, log.Component("workflow")),
		Review:      service.NewReviewService(store, clk, opts, log.Component("review")),
		Catalog:     service.NewCatalogService(store, registry, clk, log.Component("catalog")),
		Submissions: service.NewSubmissionService(store, registry, clk, log.Component("submissions")),
	}

	if cfg.Workflow.CatalogSeedFile != "" {
		seed, err := catalog.ParseFile(cfg.Workflow.CatalogSeedFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Workflow.CatalogSeedFile).Msg("Failed to read catalog seed")
		}
		res, err := catalog.Apply(ctx, svc.Catalog, seed, log.Component("catalog"))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to apply catalog seed")
		}
		log.Info().Strs("created", res.Created).Strs("skipped", res.Skipped).Msg("Catalog seed applied")
	}

	// Initialize notification delivery
	var pub client.Publisher
	switch cfg.Notify.Driver {
	case "nats":
		np, nc, err := client.ConnectNATS(ctx, cfg.NATS.URL, cfg.NATS.SubjectPrefix, log)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
		}
		defer nc.Drain()
		pub = np
		log.Info().Str("url", cfg.NATS.URL).Str("stream", client.NotificationStream).Msg("NATS publisher ready")
	case "smtp":
		pub = client.NewMailer(cfg.SMTP)
		log.Info().Str("host", cfg.SMTP.Host).Int("port", cfg.SMTP.Port).Msg("SMTP mailer ready")
	default:
		pub = client.NewLogPublisher(log)
	}

	dispatcher := client.NewDispatcher(store, pub, clk, client.DispatcherConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		ClaimLease:   cfg.Outbox.ClaimLease,
	}, log)
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(ctx)
	}()

	// Setup HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	handler.NewHTTPHandler(svc, log).Routes(mux)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcLog := log.Component("grpc")
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.UnaryRecovery(&grpcLog.Logger),
		handler.UnaryLogging(&grpcLog.Logger),
	))
	handler.RegisterReviewServer(grpcServer, handler.NewGRPCHandler(svc, log))

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer) // Enable reflection for debugging

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop gRPC server gracefully
	grpcServer.GracefulStop()

	// Let the dispatcher finish its current batch
	cancel()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Outbox dispatcher did not stop in time")
	}

	log.Info().Msg("Server stopped")
}
