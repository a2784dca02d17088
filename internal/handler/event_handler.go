package handler

import (
	"context"
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sentiric/sentiric-missed-call-service/internal/constants"
	"github.com/sentiric/sentiric-missed-call-service/internal/ctxlogger"
)

// MissedCallEvent is the payload of call.missed events on the message bus.
type MissedCallEvent struct {
	EventType string `json:"eventType"`
	Caller    string `json:"caller"`
	TraceID   string `json:"traceId"`
}

// EventHandler turns call.missed events into callback calls.
type EventHandler struct {
	callbacks       CallbackService
	log             zerolog.Logger
	eventsProcessed *prometheus.CounterVec
	eventsFailed    *prometheus.CounterVec
}

func NewEventHandler(callbacks CallbackService, log zerolog.Logger, processed, failed *prometheus.CounterVec) *EventHandler {
	return &EventHandler{
		callbacks:       callbacks,
		log:             log,
		eventsProcessed: processed,
		eventsFailed:    failed,
	}
}

// HandleMessage is the queue consumer callback. Failures are logged and
// counted; the delivery is acknowledged either way.
func (h *EventHandler) HandleMessage(ctx context.Context, body []byte) {
	var event MissedCallEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.log.Error().Err(err).Bytes("raw_message", body).Msg("Message is not valid JSON.")
		h.eventsFailed.WithLabelValues("unknown", "json_unmarshal").Inc()
		return
	}
	l := h.log.With().Str("trace_id", event.TraceID).Str("event_type", event.EventType).Logger()
	if event.EventType != "" && event.EventType != string(constants.EventTypeCallMissed) {
		l.Debug().Msg("Ignoring unrelated event.")
		return
	}
	eventType := string(constants.EventTypeCallMissed)
	h.eventsProcessed.WithLabelValues(eventType).Inc()

	callSid, err := h.callbacks.PlaceCallback(ctxlogger.ToContext(ctx, l), event.Caller)
	if err != nil {
		l.Error().Err(err).Str("caller", event.Caller).Msg("Callback for missed call failed.")
		h.eventsFailed.WithLabelValues(eventType, "callback").Inc()
		return
	}
	l.Info().Str("call_sid", callSid).Msg("Missed call event handled.")
}
