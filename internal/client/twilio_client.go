// Package client wraps the telephony vendor's REST API.
package client

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// CallRequest describes an outbound call and the webhooks that drive it.
type CallRequest struct {
	From         string
	To           string
	VoiceURL     string
	StatusURL    string
	RecordingURL string
}

type MessageRequest struct {
	From string
	To   string
	Body string
}

// Gateway places calls and sends text messages through the vendor.
// Errors are returned unchanged so callers can surface the vendor's message.
type Gateway interface {
	CreateCall(ctx context.Context, req CallRequest) (string, error)
	SendMessage(ctx context.Context, req MessageRequest) (string, error)
}

// twilioAPI is the subset of the generated v2010 API service we use.
type twilioAPI interface {
	CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error)
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

type TwilioClient struct {
	api twilioAPI
	log zerolog.Logger
}

var _ Gateway = (*TwilioClient)(nil)

func NewTwilioClient(accountSID, authToken string, log zerolog.Logger) *TwilioClient {
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newTwilioClient(rc.Api, log)
}

func newTwilioClient(api twilioAPI, log zerolog.Logger) *TwilioClient {
	return &TwilioClient{
		api: api,
		log: log.With().Str("client", "twilio").Logger(),
	}
}

// CreateCall originates a recorded call. Status and recording callbacks only
// fire on completion.
func (c *TwilioClient) CreateCall(ctx context.Context, req CallRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &openapi.CreateCallParams{}
	params.SetFrom(req.From)
	params.SetTo(req.To)
	params.SetUrl(req.VoiceURL)
	params.SetStatusCallback(req.StatusURL)
	params.SetStatusCallbackEvent([]string{"completed"})
	params.SetRecord(true)
	params.SetRecordingStatusCallback(req.RecordingURL)
	params.SetRecordingStatusCallbackEvent([]string{"completed"})

	c.log.Debug().Str("to", req.To).Str("url", req.VoiceURL).Msg("Creating outbound call...")
	call, err := c.api.CreateCall(params)
	if err != nil {
		c.logVendorError(err, "create_call")
		return "", err
	}
	if call == nil || call.Sid == nil {
		return "", errors.New("vendor returned a call without sid")
	}
	c.log.Info().Str("call_sid", *call.Sid).Str("to", req.To).Msg("Outbound call created.")
	return *call.Sid, nil
}

func (c *TwilioClient) SendMessage(ctx context.Context, req MessageRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &openapi.CreateMessageParams{}
	params.SetFrom(req.From)
	params.SetTo(req.To)
	params.SetBody(req.Body)

	msg, err := c.api.CreateMessage(params)
	if err != nil {
		c.logVendorError(err, "create_message")
		return "", err
	}
	if msg == nil || msg.Sid == nil {
		return "", errors.New("vendor returned a message without sid")
	}
	c.log.Info().Str("message_sid", *msg.Sid).Str("to", req.To).Msg("Notification message sent.")
	return *msg.Sid, nil
}

func (c *TwilioClient) logVendorError(err error, operation string) {
	ev := c.log.Error().Err(err).Str("operation", operation)
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		ev = ev.Int("twilio_code", restErr.Code).Int("http_status", restErr.Status).Str("more_info", restErr.MoreInfo)
	}
	ev.Msg("Twilio request failed.")
}
