// Package server exposes tolk's operational endpoints: an HTTP server for
// health, Prometheus metrics and the language table, and a gRPC health
// service fed by periodic translator probes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/dasmlab/tolk/pkg/language"
	"github.com/dasmlab/tolk/pkg/translate"
)

const healthCheckTimeout = 5 * time.Second

// HTTPServer provides HTTP endpoints for health, metrics and supported languages.
type HTTPServer struct {
	translator  translate.Translator
	languages   *language.Map
	botLanguage language.Code
	logger      *logrus.Logger
	port        int
	srv         *http.Server
}

// NewHTTPServer creates a new HTTP server for operational endpoints.
func NewHTTPServer(translator translate.Translator, languages *language.Map, botLanguage language.Code, logger *logrus.Logger, port int) *HTTPServer {
	if languages == nil {
		languages = language.Default
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &HTTPServer{
		translator:  translator,
		languages:   languages,
		botLanguage: botLanguage,
		logger:      logger,
		port:        port,
	}
}

// Handler returns the router serving all endpoints.
func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/api/v1/languages", s.handleLanguages)

	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.WithFields(logrus.Fields{
		"port": s.port,
	}).Info("Starting HTTP server for health and metrics")

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// handleHealth reports whether the translation engine is reachable.
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.translator.CheckHealth(ctx); err != nil {
		s.logger.WithError(err).Debug("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

type languageEntry struct {
	Name        string        `json:"name"`
	Code        language.Code `json:"code"`
	DisplayName string        `json:"display_name"`
}

type languagesResponse struct {
	BotLanguage language.Code   `json:"bot_language"`
	Languages   []languageEntry `json:"languages"`
}

// handleLanguages lists the languages users can switch to.
func (s *HTTPServer) handleLanguages(w http.ResponseWriter, r *http.Request) {
	names := s.languages.Names()
	resp := languagesResponse{
		BotLanguage: s.botLanguage,
		Languages:   make([]languageEntry, 0, len(names)),
	}
	for _, name := range names {
		code := s.languages.CodeOf(name)
		resp.Languages = append(resp.Languages, languageEntry{
			Name:        name,
			Code:        code,
			DisplayName: language.DisplayName(code),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
