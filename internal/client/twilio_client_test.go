package client

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeAPI struct {
	callParams    *openapi.CreateCallParams
	messageParams *openapi.CreateMessageParams
	call          *openapi.ApiV2010Call
	message       *openapi.ApiV2010Message
	err           error
}

func (f *fakeAPI) CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error) {
	f.callParams = params
	return f.call, f.err
}

func (f *fakeAPI) CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error) {
	f.messageParams = params
	return f.message, f.err
}

func strPtr(s string) *string { return &s }

func TestCreateCall_MapsParams(t *testing.T) {
	api := &fakeAPI{call: &openapi.ApiV2010Call{Sid: strPtr("CA123")}}
	c := newTwilioClient(api, zerolog.New(io.Discard))

	sid, err := c.CreateCall(context.Background(), CallRequest{
		From:         "+15550000000",
		To:           "+15551234567",
		VoiceURL:     "https://devi.example.com/webhook/voice",
		StatusURL:    "https://devi.example.com/webhook/status",
		RecordingURL: "https://devi.example.com/webhook/recording",
	})
	require.NoError(t, err)
	assert.Equal(t, "CA123", sid)

	p := api.callParams
	require.NotNil(t, p)
	assert.Equal(t, "+15550000000", *p.From)
	assert.Equal(t, "+15551234567", *p.To)
	assert.Equal(t, "https://devi.example.com/webhook/voice", *p.Url)
	assert.Equal(t, "https://devi.example.com/webhook/status", *p.StatusCallback)
	assert.Equal(t, []string{"completed"}, *p.StatusCallbackEvent)
	assert.True(t, *p.Record)
	assert.Equal(t, "https://devi.example.com/webhook/recording", *p.RecordingStatusCallback)
	assert.Equal(t, []string{"completed"}, *p.RecordingStatusCallbackEvent)
}

func TestCreateCall_ReturnsVendorErrorUnchanged(t *testing.T) {
	vendorErr := &twilioclient.TwilioRestError{Code: 20429, Status: 429, Message: "quota exceeded"}
	c := newTwilioClient(&fakeAPI{err: vendorErr}, zerolog.New(io.Discard))

	_, err := c.CreateCall(context.Background(), CallRequest{To: "+1"})
	assert.Same(t, vendorErr, err)
}

func TestCreateCall_MissingSid(t *testing.T) {
	c := newTwilioClient(&fakeAPI{call: &openapi.ApiV2010Call{}}, zerolog.New(io.Discard))

	_, err := c.CreateCall(context.Background(), CallRequest{To: "+1"})
	assert.Error(t, err)
}

func TestCreateCall_CancelledContext(t *testing.T) {
	api := &fakeAPI{}
	c := newTwilioClient(api, zerolog.New(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.CreateCall(ctx, CallRequest{To: "+1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, api.callParams, "vendor is not contacted")
}

func TestSendMessage(t *testing.T) {
	api := &fakeAPI{message: &openapi.ApiV2010Message{Sid: strPtr("SM1")}}
	c := newTwilioClient(api, zerolog.New(io.Discard))

	sid, err := c.SendMessage(context.Background(), MessageRequest{
		From: "+15550000000",
		To:   "+15559999999",
		Body: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "SM1", sid)
	assert.Equal(t, "+15550000000", *api.messageParams.From)
	assert.Equal(t, "+15559999999", *api.messageParams.To)
	assert.Equal(t, "hello", *api.messageParams.Body)
}

func TestSendMessage_Error(t *testing.T) {
	boom := errors.New("auth failed")
	c := newTwilioClient(&fakeAPI{err: boom}, zerolog.New(io.Discard))

	_, err := c.SendMessage(context.Background(), MessageRequest{})
	assert.Same(t, boom, err)
}
