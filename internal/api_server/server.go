package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/retrato-ai/retrato/internal/config"
	"github.com/retrato-ai/retrato/internal/events"
	"github.com/retrato-ai/retrato/internal/generation"
	handlers "github.com/retrato-ai/retrato/internal/handlers/v1alpha1"
	"github.com/retrato-ai/retrato/internal/pipeline"
	"github.com/retrato-ai/retrato/internal/ratelimit"
	"github.com/retrato-ai/retrato/internal/service"
	"github.com/retrato-ai/retrato/internal/store"
	"github.com/retrato-ai/retrato/pkg/metrics"
	"github.com/retrato-ai/retrato/pkg/middleware"
	"github.com/retrato-ai/retrato/pkg/objstore"
	"github.com/retrato-ai/retrato/pkg/reporter"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg      *config.Config
	store    store.Store
	listener net.Listener
}

// New returns a new instance of a retrato API server.
func New(
	cfg *config.Config,
	store store.Store,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		listener: listener,
	}
}

func (s *Server) Run(ctx context.Context) error {
	logger := zap.S().Named("api_server")
	logger.Info("Initializing API server")

	media, err := objstore.NewMinioStore(
		objstore.WithEndpoint(s.cfg.Service.Storage.Endpoint),
		objstore.WithBucket(s.cfg.Service.Storage.Bucket),
		objstore.WithAccessKey(s.cfg.Service.Storage.AccessKey),
		objstore.WithSecretKey(s.cfg.Service.Storage.SecretKey),
		objstore.WithSSL(s.cfg.Service.Storage.UseSSL),
		objstore.WithURLTTL(s.cfg.Service.Storage.ResultURLTTL),
	)
	if err != nil {
		return fmt.Errorf("failed to create media store: %w", err)
	}

	producer := events.NewEventProducer(&events.StdoutWriter{})
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Warnw("failed to close event producer", "error", err)
		}
	}()

	limiter := ratelimit.NewLimiter(s.cfg.Service.RateLimit.Window, s.cfg.Service.RateLimit.MaxRequests)
	go limiter.Run(ctx, s.cfg.Service.RateLimit.SweepInterval)

	trusted, err := middleware.ParseTrustedNetworks(s.cfg.Service.RateLimit.TrustedNetworks)
	if err != nil {
		return fmt.Errorf("failed to parse trusted networks: %w", err)
	}

	jobService := service.NewJobService(s.store, media)
	genClient := generation.NewClient(s.cfg, &http.Client{})
	processor := pipeline.NewProcessor(s.cfg, jobService, media, genClient, reporter.NewZapReporter(), producer, nil)

	jobHandler := handlers.NewJobHandler(jobService, processor)
	rateLimitHandler := handlers.NewRateLimitHandler(limiter)

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("retrato_api")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "HEAD", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	rateLimited := middleware.RateLimit(limiter, trusted, producer)

	router.Route("/api/v1", func(r chi.Router) {
		r.With(rateLimited).Post("/jobs", jobHandler.CreateJob)
		r.Get("/jobs", jobHandler.ListJobs)
		r.Get("/jobs/{id}", jobHandler.GetJob)
		r.With(rateLimited).Post("/jobs/{id}/process", jobHandler.ProcessJob)
		r.Post("/jobs/{id}/retry", jobHandler.RetryJob)
		r.Get("/ratelimit", rateLimitHandler.Status)
	})
	router.Get("/health", s.health)

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		logger.Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		logger.Info("api server terminated")
	}()

	logger.Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.S().Named("api_server").Errorw("health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
}
