package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeForwarded         = "forwarded"
	outcomeIntercepted       = "intercepted"
	outcomeTranslationFailed = "translation_failed"

	changeApplied       = "applied"
	changeUnsupported   = "unsupported"
	changeMissingEntity = "missing_entity"
	changeFailed        = "failed"
)

var (
	inboundTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tolk_inbound_turns_total",
			Help: "Inbound turns handled by the translation middleware, by outcome",
		},
		[]string{"outcome"},
	)

	languageChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tolk_language_changes_total",
			Help: "Language change commands, by result",
		},
		[]string{"result"},
	)

	outboundActivitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tolk_outbound_activities_total",
			Help: "Outbound activities translated, by status",
		},
		[]string{"status"},
	)
)

func recordInbound(outcome string) {
	inboundTurnsTotal.WithLabelValues(outcome).Inc()
}

func recordOutbound(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	outboundActivitiesTotal.WithLabelValues(status).Inc()
}
