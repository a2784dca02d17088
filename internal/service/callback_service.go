package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sentiric/sentiric-missed-call-service/internal/client"
	"github.com/sentiric/sentiric-missed-call-service/internal/config"
	"github.com/sentiric/sentiric-missed-call-service/internal/constants"
	"github.com/sentiric/sentiric-missed-call-service/internal/ctxlogger"
	"github.com/sentiric/sentiric-missed-call-service/internal/database"
)

// ErrMissingCaller is returned when a callback is requested without a number.
var ErrMissingCaller = errors.New("caller is required")

// EventPublisher publishes lifecycle events; queue.Publisher implements it.
type EventPublisher interface {
	PublishJSON(ctx context.Context, routingKey string, body interface{}) error
}

// VoicemailLog persists received voicemails; database.VoicemailRepository implements it.
type VoicemailLog interface {
	SaveVoicemail(ctx context.Context, rec database.VoicemailRecord) error
}

// Voicemail is what the recording webhook reports about a finished recording.
type Voicemail struct {
	CallSID         string
	From            string
	RecordingURL    string
	RecordingSID    string
	DurationSeconds int
}

// CallbackService places callback calls and forwards voicemails to the operator.
type CallbackService struct {
	cfg        *config.Config
	gateway    client.Gateway
	publisher  EventPublisher
	voicemails VoicemailLog
	now        func() time.Time
}

// NewCallbackService wires the service. publisher and voicemails are optional
// and may be nil.
func NewCallbackService(cfg *config.Config, gw client.Gateway, publisher EventPublisher, voicemails VoicemailLog) *CallbackService {
	return &CallbackService{
		cfg:        cfg,
		gateway:    gw,
		publisher:  publisher,
		voicemails: voicemails,
		now:        time.Now,
	}
}

type callbackInitiatedEvent struct {
	EventType string    `json:"eventType"`
	CallSID   string    `json:"callSid"`
	Caller    string    `json:"caller"`
	Timestamp time.Time `json:"timestamp"`
}

type voicemailReceivedEvent struct {
	EventType    string    `json:"eventType"`
	CallSID      string    `json:"callSid"`
	From         string    `json:"from"`
	RecordingURL string    `json:"recordingUrl"`
	Timestamp    time.Time `json:"timestamp"`
}

// PlaceCallback calls caller back from the service number. A vendor failure
// is returned as is and never retried.
func (s *CallbackService) PlaceCallback(ctx context.Context, caller string) (string, error) {
	l := ctxlogger.FromContext(ctx)
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return "", ErrMissingCaller
	}

	callSID, err := s.gateway.CreateCall(ctx, client.CallRequest{
		From:         s.cfg.TwilioPhoneNumber,
		To:           caller,
		VoiceURL:     s.cfg.CallbackURL(constants.PathVoice),
		StatusURL:    s.cfg.CallbackURL(constants.PathStatus),
		RecordingURL: s.cfg.CallbackURL(constants.PathRecording),
	})
	if err != nil {
		return "", err
	}
	l.Info().Str("call_sid", callSID).Str("caller", caller).Msg("Callback call placed.")

	s.publish(ctx, constants.EventTypeCallbackInitiated, callbackInitiatedEvent{
		EventType: string(constants.EventTypeCallbackInitiated),
		CallSID:   callSID,
		Caller:    caller,
		Timestamp: s.now().UTC(),
	})
	return callSID, nil
}

// DeliverVoicemail texts the operator a link to the recording. The voicemail
// log is written whether or not the text went out; its failures are only logged.
func (s *CallbackService) DeliverVoicemail(ctx context.Context, vm Voicemail) error {
	l := ctxlogger.FromContext(ctx).With().Str("call_sid", vm.CallSID).Logger()
	link := RecordingLink(vm.RecordingURL)

	_, sendErr := s.gateway.SendMessage(ctx, client.MessageRequest{
		From: s.cfg.TwilioPhoneNumber,
		To:   s.cfg.OperatorPhoneNumber,
		Body: FormatNotification(s.cfg.AssistantName, vm.From, link),
	})

	if s.voicemails != nil {
		rec := database.VoicemailRecord{
			CallSID:         vm.CallSID,
			From:            vm.From,
			RecordingURL:    link,
			RecordingSID:    vm.RecordingSID,
			DurationSeconds: vm.DurationSeconds,
			Notified:        sendErr == nil,
			ReceivedAt:      s.now().UTC(),
		}
		if err := s.voicemails.SaveVoicemail(ctx, rec); err != nil {
			l.Error().Err(err).Msg("Voicemail could not be logged.")
		}
	}

	if sendErr != nil {
		return sendErr
	}
	l.Info().Str("from", vm.From).Str("recording", link).Msg("Voicemail forwarded to operator.")

	s.publish(ctx, constants.EventTypeVoicemailReceived, voicemailReceivedEvent{
		EventType:    string(constants.EventTypeVoicemailReceived),
		CallSID:      vm.CallSID,
		From:         vm.From,
		RecordingURL: link,
		Timestamp:    s.now().UTC(),
	})
	return nil
}

func (s *CallbackService) publish(ctx context.Context, eventType constants.EventType, body interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJSON(ctx, string(eventType), body); err != nil {
		l := ctxlogger.FromContext(ctx)
		l.Error().Err(err).Str("event_type", string(eventType)).Msg("Lifecycle event could not be published.")
	}
}

// RecordingLink turns a vendor recording resource URL into a playable MP3 link.
func RecordingLink(recordingURL string) string {
	return recordingURL + constants.RecordingFormatSuffix
}

// FormatNotification builds the text message sent to the operator.
func FormatNotification(assistantName, from, link string) string {
	return fmt.Sprintf("📞 %s Missed Call\n\nFrom: %s\n\nRecording: %s", assistantName, from, link)
}
