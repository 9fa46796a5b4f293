// Package server exposes the translation pipeline and cache over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valpere/cvtran/internal"
	"github.com/valpere/cvtran/internal/orchestrator"
	"github.com/valpere/cvtran/internal/store"
	"github.com/valpere/cvtran/internal/translator"
)

// maxBodyBytes bounds a request document.
const maxBodyBytes = 10 << 20

// Pipeline is the part of the orchestrator the handlers use.
type Pipeline interface {
	TranslateStream(ctx context.Context, req internal.TranslationRequest, emit orchestrator.Emitter) error
	TranslateBatch(ctx context.Context, req internal.TranslationRequest) (json.RawMessage, error)
}

type Server struct {
	pipeline       Pipeline
	cache          store.Cache
	backend        translator.TranslationService
	gatherer       prometheus.Gatherer
	allowedOrigins []string

	validate *validator.Validate
	trans    ut.Translator
}

type Option func(*Server)

func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithMetrics serves the collectors of g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func New(pipeline Pipeline, cache store.Cache, backend translator.TranslationService, opts ...Option) (*Server, error) {
	validate, trans, err := newValidator()
	if err != nil {
		return nil, err
	}
	s := &Server{
		pipeline: pipeline,
		cache:    cache,
		backend:  backend,
		validate: validate,
		trans:    trans,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.allowedOrigins))

	r.Post("/translate/stream", s.handleStream)
	r.Post("/translate/batch", s.handleBatch)
	r.Post("/cache/clear", s.handleCacheClear)
	r.Get("/cache/stats", s.handleCacheStats)
	r.Get("/backend/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	events, err := newEventWriter(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	req, err := s.decodeRequest(w, r)
	if err != nil {
		if emitErr := events.emit(orchestrator.Event{Name: orchestrator.EventError, Data: orchestrator.ErrorEvent{Message: err.Error()}}); emitErr != nil {
			slog.Warn("Failed to write error event", "error", emitErr)
		}
		return
	}

	if err := s.pipeline.TranslateStream(r.Context(), req, events.emit); err != nil {
		slog.Warn("Streaming translation ended with error", "requestId", req.ID, "error", err)
	}
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	doc, err := s.pipeline.TranslateBatch(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, internal.ErrMissingParameters) || errors.Is(err, internal.ErrInvalidDocument) {
			status = http.StatusBadRequest
		}
		slog.Error("Batch translation failed", "requestId", req.ID, "error", err)
		writeError(w, status, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Cache is disabled"})
		return
	}
	n, err := s.cache.Clear(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	slog.Info("Cache cleared", "entries", n)
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Cleared %d cached translations", n)})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := &store.CacheStats{Languages: map[string]int{}}
	if s.cache != nil {
		var err error
		if stats, err = s.cache.Stats(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response, err := translator.Ping(r.Context(), s.backend)
	if err != nil {
		slog.Error("Backend health check failed", "backend", s.backend.Name(), "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"backend":  s.backend.Name(),
		"response": response,
	})
}

// decodeRequest reads and validates a translation request. Failures wrap
// ErrMissingParameters or ErrInvalidDocument.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (internal.TranslationRequest, error) {
	var req internal.TranslationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return req, fmt.Errorf("%w: invalid request body: %v", internal.ErrInvalidDocument, err)
	}
	if req.ID == "" {
		req.ID = middleware.GetReqID(r.Context())
	}

	if err := s.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return req, fmt.Errorf("%w: %v", internal.ErrMissingParameters, err)
		}
		var msgs []string
		for _, e := range validationErrors {
			msgs = append(msgs, e.Translate(s.trans))
		}
		return req, fmt.Errorf("%w: %s", internal.ErrMissingParameters, strings.Join(msgs, ", "))
	}
	return req, nil
}

func newValidator() (*validator.Validate, ut.Translator, error) {
	validate := validator.New()

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, nil, fmt.Errorf("failed to register default translations: %w", err)
	}
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return validate, trans, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowed["*"] {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
