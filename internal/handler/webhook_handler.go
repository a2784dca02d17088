package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sentiric/sentiric-missed-call-service/internal/constants"
	"github.com/sentiric/sentiric-missed-call-service/internal/ctxlogger"
	"github.com/sentiric/sentiric-missed-call-service/internal/dialog"
	"github.com/sentiric/sentiric-missed-call-service/internal/markup"
	"github.com/sentiric/sentiric-missed-call-service/internal/service"
)

const (
	contentTypeJSON = "application/json"
	contentTypeXML  = "text/xml"
)

var errMissingCallSid = errors.New("CallSid is required")

// CallbackService is the part of service.CallbackService the router needs.
type CallbackService interface {
	PlaceCallback(ctx context.Context, caller string) (string, error)
	DeliverVoicemail(ctx context.Context, vm service.Voicemail) error
}

// DialogMachine advances a call's conversation by one turn.
type DialogMachine interface {
	Advance(ctx context.Context, callID, speechResult string) (dialog.Turn, error)
}

type WebhookHandler struct {
	callbacks CallbackService
	machine   DialogMachine
	documents *markup.Builder
	log       zerolog.Logger

	processed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	statuses  *prometheus.CounterVec
}

func NewWebhookHandler(
	callbacks CallbackService,
	machine DialogMachine,
	documents *markup.Builder,
	log zerolog.Logger,
	processed, failed, statuses *prometheus.CounterVec,
) *WebhookHandler {
	return &WebhookHandler{
		callbacks: callbacks,
		machine:   machine,
		documents: documents,
		log:       log,
		processed: processed,
		failed:    failed,
		statuses:  statuses,
	}
}

// Router registers every endpoint. Vendor callbacks accept any method.
func (h *WebhookHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger(h.log))

	r.HandleFunc(constants.PathHealth, h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc(constants.PathMissedCall, h.handleMissedCall).Methods(http.MethodPost)
	r.HandleFunc(constants.PathVoice, h.handleVoice)
	r.HandleFunc(constants.PathVoiceEnd, h.handleVoiceEnd)
	r.HandleFunc(constants.PathRecording, h.handleRecording)
	r.HandleFunc(constants.PathStatus, h.handleStatus)
	return r
}

type missedCallResponse struct {
	Success bool   `json:"success"`
	CallSid string `json:"callSid"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *WebhookHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WebhookHandler) handleMissedCall(w http.ResponseWriter, r *http.Request) {
	const endpoint = "missed_call"
	h.processed.WithLabelValues(endpoint).Inc()
	l := ctxlogger.FromContext(r.Context())

	fields, err := readFields(r)
	if err != nil {
		l.Warn().Err(err).Msg("Missed-call request body could not be parsed.")
		h.failed.WithLabelValues(endpoint, "bad_request").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	caller := fields.Get("caller")
	callSid, err := h.callbacks.PlaceCallback(r.Context(), caller)
	if errors.Is(err, service.ErrMissingCaller) {
		h.failed.WithLabelValues(endpoint, "missing_caller").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		l.Error().Err(err).Str("caller", caller).Msg("Callback call could not be placed.")
		h.failed.WithLabelValues(endpoint, "gateway").Inc()
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, missedCallResponse{Success: true, CallSid: callSid})
}

func (h *WebhookHandler) handleVoice(w http.ResponseWriter, r *http.Request) {
	const endpoint = "voice"
	h.processed.WithLabelValues(endpoint).Inc()

	kind, err := h.voiceTurn(r)
	if err != nil {
		l := ctxlogger.FromContext(r.Context())
		l.Error().Err(err).Msg("Voice turn failed, serving technical error document.")
		h.failed.WithLabelValues(endpoint, "turn").Inc()
		kind = markup.KindErrorFallback
	}
	h.writeDocument(w, kind)
}

func (h *WebhookHandler) voiceTurn(r *http.Request) (markup.Kind, error) {
	fields, err := readFields(r)
	if err != nil {
		return "", err
	}
	callSid := strings.TrimSpace(fields.Get("CallSid"))
	if callSid == "" {
		return "", errMissingCallSid
	}

	l := ctxlogger.FromContext(r.Context()).With().Str("call_sid", callSid).Logger()
	ctx := ctxlogger.ToContext(r.Context(), l)

	turn, err := h.machine.Advance(ctx, callSid, fields.Get("SpeechResult"))
	if err != nil {
		return "", err
	}
	return turn.Document, nil
}

func (h *WebhookHandler) handleVoiceEnd(w http.ResponseWriter, r *http.Request) {
	h.processed.WithLabelValues("voice_end").Inc()
	h.writeDocument(w, markup.KindVoicemailSaved)
}

func (h *WebhookHandler) handleRecording(w http.ResponseWriter, r *http.Request) {
	const endpoint = "recording"
	h.processed.WithLabelValues(endpoint).Inc()
	l := ctxlogger.FromContext(r.Context())

	fields, err := readFields(r)
	if err != nil {
		l.Warn().Err(err).Msg("Recording callback could not be parsed.")
		h.failed.WithLabelValues(endpoint, "bad_request").Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	vm := service.Voicemail{
		CallSID:      fields.Get("CallSid"),
		From:         fields.Get("From"),
		RecordingURL: fields.Get("RecordingUrl"),
		RecordingSID: fields.Get("RecordingSid"),
	}
	if vm.RecordingURL == "" {
		l.Warn().Str("call_sid", vm.CallSID).Msg("Recording callback without RecordingUrl.")
		h.failed.WithLabelValues(endpoint, "missing_recording_url").Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if d, err := strconv.Atoi(fields.Get("RecordingDuration")); err == nil {
		vm.DurationSeconds = d
	}

	if err := h.callbacks.DeliverVoicemail(r.Context(), vm); err != nil {
		l.Error().Err(err).Str("call_sid", vm.CallSID).Msg("Voicemail notification could not be sent.")
		h.failed.WithLabelValues(endpoint, "gateway").Inc()
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.processed.WithLabelValues("status").Inc()
	l := ctxlogger.FromContext(r.Context())

	fields, err := readFields(r)
	if err != nil {
		l.Warn().Err(err).Msg("Status callback could not be parsed.")
		fields = url.Values{}
	}
	status := fields.Get("CallStatus")
	h.statuses.WithLabelValues(callStatusLabel(status)).Inc()
	l.Info().Str("call_sid", fields.Get("CallSid")).Str("call_status", status).Msg("Call status received.")
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) writeDocument(w http.ResponseWriter, kind markup.Kind) {
	w.Header().Set("Content-Type", contentTypeXML)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.documents.Render(kind)))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
