package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"offer-api/internal/config"
	"offer-api/internal/events"
	"offer-api/internal/handler"
	"offer-api/internal/logging"
	"offer-api/internal/metrics"
	"offer-api/internal/middleware"
	"offer-api/internal/server"
	"offer-api/internal/service"
	"offer-api/internal/store/backends"
	"offer-api/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "Path to a JSON config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Configuration error: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx := context.Background()

	if _, err := tracing.InitTracing(cfg.Tracing); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Error shutting down tracer")
		}
	}()

	shutdownMeter, err := metrics.InitMeter(cfg.Metrics, cfg.Tracing.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer shutdownMeter(context.Background())

	m, err := metrics.New("offer-api")
	if err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	st, err := backends.Open(openCtx, cfg.Store)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	defer st.Close()

	eventManager := events.NewManager(cfg.Events.AuditEnabled, logger)
	eventManager.SubscribeAudit(logger.WithField("component", "audit"))
	defer eventManager.Shutdown()

	svc, err := service.NewService(st, service.Options{
		PublicURL: cfg.Server.PublicURL,
		Events:    eventManager,
		Metrics:   m,
		Logger:    logger.WithField("component", "service"),
	})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	h := handler.NewHandlerWithOptions(svc, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
		Logger:      logger.WithField("component", "handler"),
	})

	deps := server.Deps{
		Handler:        h,
		Logger:         logger.WithField("component", "http"),
		Metrics:        m,
		AllowedOrigins: cfg.Security.Origins(),
		TrustProxy:     cfg.Security.TrustProxyHeaders,
		Tracing:        cfg.Tracing.Enabled,
	}
	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimitOptions{
			Rate:      cfg.RateLimit.Rate,
			WriteRate: cfg.RateLimit.WriteRate,
			Window:    time.Duration(cfg.RateLimit.Window) * time.Second,
			Logger:    logger.WithField("component", "ratelimit"),
		})
		defer rateLimiter.Stop()
		deps.RateLimiter = rateLimiter
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		protocol := "HTTP"
		if cfg.Server.EnableTLS {
			protocol = "HTTPS"
		}
		logger.WithFields(logrus.Fields{
			"addr":       srv.Addr,
			"protocol":   protocol,
			"store":      cfg.Store.Backend,
			"namespace":  cfg.Store.Namespace,
			"public_url": cfg.Server.PublicURL,
		}).Info("Starting server")

		var err error
		if cfg.Server.EnableTLS {
			err = srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigint:
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}
