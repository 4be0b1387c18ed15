package server

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dasmlab/tolk/pkg/translate"
)

// TranslationService is the gRPC health service name reported for the
// translation engine. The empty name reports overall server health.
const TranslationService = "tolk.translation"

// HealthReporter probes the translator and publishes the result through the
// standard gRPC health service.
type HealthReporter struct {
	translator translate.Translator
	health     *health.Server
	logger     *logrus.Logger
}

// NewHealthReporter creates a reporter. Until the first probe every service
// reports NOT_SERVING.
func NewHealthReporter(translator translate.Translator, logger *logrus.Logger) *HealthReporter {
	if logger == nil {
		logger = logrus.New()
	}
	hs := health.NewServer()
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(TranslationService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &HealthReporter{
		translator: translator,
		health:     hs,
		logger:     logger,
	}
}

// Server returns the health server to register on a grpc.Server.
func (h *HealthReporter) Server() *health.Server {
	return h.health
}

// Probe checks the translator once and updates the serving status.
// The server itself keeps serving while the engine is down; only the
// translation service flips.
func (h *HealthReporter) Probe(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err := h.translator.CheckHealth(ctx); err != nil {
		h.logger.WithError(err).Warn("Translator health probe failed")
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	h.health.SetServingStatus(TranslationService, status)
	return status
}

// Run probes immediately and then every interval until ctx is done.
func (h *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	h.Probe(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.Probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown marks every service NOT_SERVING and stops streaming watchers.
func (h *HealthReporter) Shutdown() {
	h.health.Shutdown()
}
