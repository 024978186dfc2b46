package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vindloodgieter/discovery/internal/discovery"
	"github.com/vindloodgieter/discovery/internal/metrics"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
	defaultRunCount = 10
	requestTimeout  = 30 * time.Second
)

// Reader is the read side of the business store.
type Reader interface {
	GetBySlug(ctx context.Context, slug string) (discovery.Business, error)
	ListBusinesses(ctx context.Context, filter discovery.ListFilter) ([]discovery.Business, error)
	CountByProvince(ctx context.Context) ([]discovery.ProvinceCount, error)
	CountByServiceType(ctx context.Context) ([]discovery.ServiceTypeCount, error)
}

// Server exposes discovered businesses over a read-only HTTP API.
type Server struct {
	router chi.Router
	reader Reader
	runs   discovery.RunLister
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. runs may be nil,
// in which case /v1/runs is not mounted.
func NewServer(reader Reader, runs discovery.RunLister, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		reader: reader,
		runs:   runs,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/businesses", s.listBusinesses)
		r.Get("/businesses/{slug}", s.getBusiness)
		r.Get("/stats/provinces", s.provinceStats)
		r.Get("/stats/service-types", s.serviceTypeStats)
		if runs != nil {
			r.Get("/runs", s.listRuns)
		}
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listBusinesses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultPageSize)
	if err != nil || limit <= 0 {
		s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		s.writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	status := discovery.Status(q.Get("status"))
	switch status {
	case "", discovery.StatusDiscovered, discovery.StatusEnriched, discovery.StatusVerified:
	default:
		s.writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	filter := discovery.ListFilter{
		Province:    q.Get("province"),
		City:        q.Get("city"),
		ServiceType: q.Get("type"),
		Status:      status,
		Limit:       limit,
		Offset:      offset,
	}
	businesses, err := s.reader.ListBusinesses(r.Context(), filter)
	if err != nil {
		s.logger.Error("list businesses failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list businesses")
		return
	}
	s.writeJSON(w, http.StatusOK, listResponse{
		Businesses: businesses,
		Limit:      limit,
		Offset:     offset,
	})
}

func (s *Server) getBusiness(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	b, err := s.reader.GetBySlug(r.Context(), slug)
	switch {
	case errors.Is(err, discovery.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "business not found")
		return
	case err != nil:
		s.logger.Error("get business failed", zap.String("slug", slug), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to fetch business")
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

func (s *Server) provinceStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.reader.CountByProvince(r.Context())
	if err != nil {
		s.logger.Error("count by province failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to count businesses")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"provinces": counts})
}

func (s *Server) serviceTypeStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.reader.CountByServiceType(r.Context())
	if err != nil {
		s.logger.Error("count by service type failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to count businesses")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"serviceTypes": counts})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), defaultRunCount)
	if err != nil || limit <= 0 {
		s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

type listResponse struct {
	Businesses []discovery.Business `json:"businesses"`
	Limit      int                  `json:"limit"`
	Offset     int                  `json:"offset"`
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the request ID stored by the middleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
