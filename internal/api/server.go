package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"sensor-anomaly/internal/analytics"
	"sensor-anomaly/internal/config"
	"sensor-anomaly/internal/metrics"
	"sensor-anomaly/internal/models"
)

const version = "1.0.0"

// ReadingStore buffers ingested readings for detection over recent data.
type ReadingStore interface {
	StoreReading(ctx context.Context, r models.Reading) error
	RecentReadings(ctx context.Context, count int64) ([]models.Reading, error)
}

type Server struct {
	router   *mux.Router
	store    ReadingStore
	analyzer *analytics.Analyzer
	logger   *zap.Logger
	cfg      config.ServerConfig
	buffer   config.BufferConfig

	queueMu sync.RWMutex
	queue   chan models.Reading
	closed  bool
	done    chan struct{}
}

func NewServer(cfg config.ServerConfig, buffer config.BufferConfig, store ReadingStore, analyzer *analytics.Analyzer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:   mux.NewRouter(),
		store:    store,
		analyzer: analyzer,
		logger:   logger,
		cfg:      cfg,
		buffer:   buffer,
		queue:    make(chan models.Reading, cfg.QueueSize),
		done:     make(chan struct{}),
	}

	s.setupRoutes()
	go s.processReadings()

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.instrument)

	s.router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/readings/ingest", s.ingestReadingsHandler).Methods(http.MethodPost)
	s.router.HandleFunc("/detect", s.detectHandler).Methods(http.MethodPost)
	s.router.HandleFunc("/analytics/current", s.getAnalyticsHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/analytics/anomalies", s.getAnomaliesHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/config", s.getConfigHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/config", s.updateConfigHandler).Methods(http.MethodPatch)
	s.router.Handle("/metrics/prometheus", promhttp.Handler())
}

// Handler returns the router wrapped with CORS, panic recovery and access
// logging.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	accessLog := zap.NewStdLog(s.logger.Named("access")).Writer()
	recovered := handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(s.router)
	return handlers.LoggingHandler(accessLog, c.Handler(recovered))
}

// Enqueue hands a reading to the background writer. It reports false when
// the queue is full or the server is shutting down.
func (s *Server) Enqueue(r models.Reading, source string) bool {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- r:
		metrics.ReadingsIngested.WithLabelValues(source).Inc()
		return true
	default:
		return false
	}
}

func (s *Server) processReadings() {
	defer close(s.done)
	for r := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.StoreReading(ctx, r); err != nil {
			s.logger.Warn("failed to buffer reading", zap.String("entity_id", r.EntityID), zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting readings and waits until queued ones are buffered.
func (s *Server) Close() {
	s.queueMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.queueMu.Unlock()
	<-s.done
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server is ready to handle requests", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("could not listen on %s: %w", addr, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server is shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv.SetKeepAlivesEnabled(false)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("could not gracefully shutdown the server: %w", err)
	}
	s.Close()
	s.logger.Info("server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		metrics.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, endpoint, fmt.Sprint(rec.status)).Inc()
	})
}
