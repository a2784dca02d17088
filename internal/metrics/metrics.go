package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	WebhooksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "missedcall_webhooks_processed_total",
		Help: "Total number of webhook requests handled, by endpoint.",
	}, []string{"endpoint"})

	WebhooksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "missedcall_webhooks_failed_total",
		Help: "Total number of webhook requests that ended in a failure response.",
	}, []string{"endpoint", "reason"})

	StageTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "missedcall_stage_transitions_total",
		Help: "Conversation stage transitions.",
	}, []string{"from", "to"})

	CallStatuses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "missedcall_call_status_callbacks_total",
		Help: "Call status callbacks received from the vendor, by status.",
	}, []string{"status"})

	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "missedcall_events_processed_total",
		Help: "Total number of events consumed from RabbitMQ, by event type.",
	}, []string{"event_type"})

	EventsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "missedcall_events_failed_total",
		Help: "Total number of consumed events that could not be handled.",
	}, []string{"event_type", "reason"})

	ActiveConversations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "missedcall_active_conversations",
		Help: "Conversations held by the in-memory state store.",
	})
)

func StartServer(port string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info().Str("port", port).Msg("Metrics server listening.")
	if err := http.ListenAndServe(":"+port, mux); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server failed.")
	}
}
