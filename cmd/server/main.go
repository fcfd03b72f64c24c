package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"product-pricing-service/internal/api"
	"product-pricing-service/internal/automation"
	"product-pricing-service/internal/config"
	"product-pricing-service/internal/pricing"
	"product-pricing-service/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/cors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	appName         = "ProductPricingService"
	shutdownTimeout = 30 * time.Second
	requestTimeout  = 60 * time.Second
)

// service owns everything started by main and torn down on shutdown.
type service struct {
	logger    *log.Logger
	db        *sql.DB
	store     *store.PostgresStore
	scheduler *automation.Scheduler
	health    *health.Server
	http      *http.Server
	grpc      *grpc.Server
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("INFO: .env not loaded, using the process environment only")
	}
	logger := log.New(os.Stdout, "["+appName+"] ", log.LstdFlags|log.Lshortfile|log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("FATAL: Configuration error: %v", err)
	}
	logger.Printf("INFO: Booting %s (APP_ENV=%s, LOG_LEVEL=%s)", appName, cfg.AppEnv, cfg.LogLevel)

	svc, err := newService(cfg, logger)
	if err != nil {
		logger.Fatalf("FATAL: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.serve(ctx, cfg); err != nil {
		logger.Printf("ERROR: %v", err)
	}
	svc.shutdown()
	logger.Println("INFO: Bye.")
}

func newService(cfg *config.Config, logger *log.Logger) (*service, error) {
	if cfg.Postgres.AutoMigrate {
		if err := store.Migrate(cfg.Postgres.DSN()); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	db, err := sql.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Printf("INFO: Connected to PostgreSQL at %s:%s/%s", cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.DBName)

	svc := &service{
		logger: logger,
		db:     db,
		store:  store.NewPostgresStore(db),
		health: health.NewServer(),
	}

	onStateChange := api.AutomationHealthListener(svc.health)
	onStateChange(false)
	svc.scheduler, err = automation.New(svc.store, cfg.Automation.Interval,
		pricing.Band{MinFactor: cfg.Automation.MinFactor, MaxFactor: cfg.Automation.MaxFactor},
		automation.WithLogger(logger),
		automation.WithCycleTimeout(cfg.Automation.CycleTimeout),
		automation.WithDebug(cfg.Debug()),
		automation.WithStateListener(onStateChange),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("price scheduler: %w", err)
	}

	svc.http = &http.Server{
		Addr:         ":" + cfg.HttpServer.Port,
		Handler:      svc.router(cfg.HttpServer.CORSAllowedOrigins),
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}
	svc.grpc = svc.grpcServer()
	return svc, nil
}

func (s *service) router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(cors.New(corsOptions(allowedOrigins)).Handler)

	r.Get("/healthz", s.healthz)
	api.NewHTTPHandler(s.store, s.scheduler).RegisterRoutes(r)
	return r
}

// corsOptions never allows credentials; the origin list defaults to "*".
func corsOptions(allowedOrigins []string) cors.Options {
	return cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}
}

// healthz always answers 200; the body tells whether the database answers.
func (s *service) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	database := "healthy"
	if err := s.db.PingContext(ctx); err != nil {
		database = "unhealthy"
		s.logger.Printf("WARN: /healthz database ping failed: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":      "healthy",
		"serviceName": appName,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"database":    database,
		"automation":  s.scheduler.Status().IsRunning,
	})
}

func (s *service) grpcServer() *grpc.Server {
	srv := grpc.NewServer()
	api.RegisterAutomationServer(srv, api.NewGRPCHandler(s.scheduler))
	grpc_health_v1.RegisterHealthServer(srv, s.health)
	reflection.Register(srv) // for grpcurl
	return srv
}

// serve starts the scheduler (if configured) and both listeners, then blocks
// until ctx is cancelled or a listener fails.
func (s *service) serve(ctx context.Context, cfg *config.Config) error {
	grpcListener, err := net.Listen("tcp", ":"+cfg.GrpcServer.Port)
	if err != nil {
		return fmt.Errorf("listen gRPC on :%s: %w", cfg.GrpcServer.Port, err)
	}

	if cfg.Automation.AutoStart {
		s.scheduler.Start()
	}

	errCh := make(chan error, 2)
	go func() {
		s.logger.Printf("INFO: HTTP listening on :%s", cfg.HttpServer.Port)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	go func() {
		s.logger.Printf("INFO: gRPC listening on :%s", cfg.GrpcServer.Port)
		if err := s.grpc.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Println("INFO: Shutdown signal received.")
		return nil
	case err := <-errCh:
		return err
	}
}

// shutdown stops intake first, then the scheduler, then closes the pool the
// scheduler writes through.
func (s *service) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.health.Shutdown()

	grpcDone := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(grpcDone)
	}()

	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Printf("WARN: HTTP shutdown: %v", err)
	}

	select {
	case <-grpcDone:
	case <-ctx.Done():
		s.logger.Println("WARN: gRPC graceful stop timed out, forcing.")
		s.grpc.Stop()
	}

	if s.scheduler.Status().IsRunning {
		s.scheduler.Stop()
	}

	if err := s.store.Close(); err != nil {
		s.logger.Printf("WARN: Closing database: %v", err)
	}
	s.logger.Println("INFO: Shutdown complete.")
}
