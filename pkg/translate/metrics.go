package translate

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	translationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tolk_translation_requests_total",
			Help: "Total number of translation requests",
		},
		[]string{"engine", "status"},
	)

	translationRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tolk_translation_request_duration_seconds",
			Help:    "Duration of translation requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 15.0},
		},
		[]string{"engine", "status"},
	)

	translationRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tolk_translation_request_size_bytes",
			Help:    "Size of translation request text in bytes",
			Buckets: []float64{16, 64, 256, 1024, 4096, 16384},
		},
		[]string{"engine"},
	)

	translationResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tolk_translation_response_size_bytes",
			Help:    "Size of translation response text in bytes",
			Buckets: []float64{16, 64, 256, 1024, 4096, 16384},
		},
		[]string{"engine"},
	)

	translatorHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tolk_translator_healthy",
			Help: "Whether the last health check of the translation engine passed (1) or failed (0)",
		},
		[]string{"engine"},
	)
)

// InstrumentedTranslator records Prometheus metrics around another Translator.
type InstrumentedTranslator struct {
	next   Translator
	engine string
}

// Instrument wraps next so its calls are counted and timed under engine.
func Instrument(next Translator, engine EngineType) *InstrumentedTranslator {
	return &InstrumentedTranslator{next: next, engine: string(engine)}
}

// Translate implements Translator.
func (t *InstrumentedTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	start := time.Now()
	out, err := t.next.Translate(ctx, text, sourceLang, targetLang)
	t.recordTranslationRequest(time.Since(start), err == nil, len(text), len(out))
	return out, err
}

// CheckHealth implements Translator.
func (t *InstrumentedTranslator) CheckHealth(ctx context.Context) error {
	err := t.next.CheckHealth(ctx)
	if err != nil {
		translatorHealthy.WithLabelValues(t.engine).Set(0)
	} else {
		translatorHealthy.WithLabelValues(t.engine).Set(1)
	}
	return err
}

// SupportedLanguages implements Translator.
func (t *InstrumentedTranslator) SupportedLanguages(ctx context.Context) ([]string, error) {
	return t.next.SupportedLanguages(ctx)
}

func (t *InstrumentedTranslator) recordTranslationRequest(duration time.Duration, success bool, requestSize, responseSize int) {
	status := "success"
	if !success {
		status = "error"
	}

	translationRequestsTotal.WithLabelValues(t.engine, status).Inc()
	translationRequestDuration.WithLabelValues(t.engine, status).Observe(duration.Seconds())
	translationRequestSize.WithLabelValues(t.engine).Observe(float64(requestSize))
	if success {
		translationResponseSize.WithLabelValues(t.engine).Observe(float64(responseSize))
	}
}
