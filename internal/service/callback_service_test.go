package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sentiric/sentiric-missed-call-service/internal/client"
	"github.com/sentiric/sentiric-missed-call-service/internal/config"
	"github.com/sentiric/sentiric-missed-call-service/internal/database"
)

// --- Mocks ---
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCall(ctx context.Context, req client.CallRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) SendMessage(ctx context.Context, req client.MessageRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishJSON(ctx context.Context, routingKey string, body interface{}) error {
	args := m.Called(ctx, routingKey, body)
	return args.Error(0)
}

type MockVoicemailLog struct {
	mock.Mock
}

func (m *MockVoicemailLog) SaveVoicemail(ctx context.Context, rec database.VoicemailRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func testConfig() *config.Config {
	return &config.Config{
		TwilioPhoneNumber:   "+15550000000",
		BaseURL:             "https://devi.example.com",
		OperatorPhoneNumber: "+15559999999",
		AssistantName:       "DEVI AI",
	}
}

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestService(gw client.Gateway, pub EventPublisher, vm VoicemailLog) *CallbackService {
	svc := NewCallbackService(testConfig(), gw, pub, vm)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

// --- Tests ---
func TestPlaceCallback_Success(t *testing.T) {
	gw := new(MockGateway)
	pub := new(MockPublisher)
	svc := newTestService(gw, pub, nil)

	gw.On("CreateCall", mock.Anything, client.CallRequest{
		From:         "+15550000000",
		To:           "+15551234567",
		VoiceURL:     "https://devi.example.com/webhook/voice",
		StatusURL:    "https://devi.example.com/webhook/status",
		RecordingURL: "https://devi.example.com/webhook/recording",
	}).Return("CA123", nil)
	pub.On("PublishJSON", mock.Anything, "callback.initiated", mock.MatchedBy(func(ev callbackInitiatedEvent) bool {
		return ev.CallSID == "CA123" && ev.Caller == "+15551234567" && ev.Timestamp.Equal(fixedNow)
	})).Return(nil)

	sid, err := svc.PlaceCallback(context.Background(), "+15551234567")

	require.NoError(t, err)
	assert.Equal(t, "CA123", sid)
	gw.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestPlaceCallback_MissingCaller(t *testing.T) {
	gw := new(MockGateway)
	svc := newTestService(gw, nil, nil)

	for _, caller := range []string{"", "   "} {
		_, err := svc.PlaceCallback(context.Background(), caller)
		assert.ErrorIs(t, err, ErrMissingCaller)
	}
	gw.AssertNotCalled(t, "CreateCall", mock.Anything, mock.Anything)
}

func TestPlaceCallback_VendorErrorIsReturnedUnchanged(t *testing.T) {
	gw := new(MockGateway)
	pub := new(MockPublisher)
	svc := newTestService(gw, pub, nil)
	vendorErr := errors.New("quota exceeded")

	gw.On("CreateCall", mock.Anything, mock.Anything).Return("", vendorErr)

	sid, err := svc.PlaceCallback(context.Background(), "+15551234567")

	assert.Empty(t, sid)
	assert.Same(t, vendorErr, err)
	assert.Equal(t, "quota exceeded", err.Error())
	gw.AssertNumberOfCalls(t, "CreateCall", 1)
	pub.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything, mock.Anything)
}

func TestPlaceCallback_PublishFailureDoesNotFailCall(t *testing.T) {
	gw := new(MockGateway)
	pub := new(MockPublisher)
	svc := newTestService(gw, pub, nil)

	gw.On("CreateCall", mock.Anything, mock.Anything).Return("CA9", nil)
	pub.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("channel closed"))

	sid, err := svc.PlaceCallback(context.Background(), "+15551234567")

	require.NoError(t, err)
	assert.Equal(t, "CA9", sid)
}

func TestDeliverVoicemail_Success(t *testing.T) {
	gw := new(MockGateway)
	pub := new(MockPublisher)
	vmLog := new(MockVoicemailLog)
	svc := newTestService(gw, pub, vmLog)

	gw.On("SendMessage", mock.Anything, mock.MatchedBy(func(req client.MessageRequest) bool {
		return req.From == "+15550000000" &&
			req.To == "+15559999999" &&
			req.Body == "📞 DEVI AI Missed Call\n\nFrom: +15551234567\n\nRecording: https://vendor/rec1.mp3"
	})).Return("SM1", nil)
	vmLog.On("SaveVoicemail", mock.Anything, database.VoicemailRecord{
		CallSID:         "CA1",
		From:            "+15551234567",
		RecordingURL:    "https://vendor/rec1.mp3",
		RecordingSID:    "RE1",
		DurationSeconds: 12,
		Notified:        true,
		ReceivedAt:      fixedNow,
	}).Return(nil)
	pub.On("PublishJSON", mock.Anything, "voicemail.received", mock.Anything).Return(nil)

	err := svc.DeliverVoicemail(context.Background(), Voicemail{
		CallSID:         "CA1",
		From:            "+15551234567",
		RecordingURL:    "https://vendor/rec1",
		RecordingSID:    "RE1",
		DurationSeconds: 12,
	})

	require.NoError(t, err)
	gw.AssertExpectations(t)
	vmLog.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestDeliverVoicemail_SendFailureStillLogged(t *testing.T) {
	gw := new(MockGateway)
	pub := new(MockPublisher)
	vmLog := new(MockVoicemailLog)
	svc := newTestService(gw, pub, vmLog)

	gw.On("SendMessage", mock.Anything, mock.Anything).Return("", errors.New("invalid number"))
	vmLog.On("SaveVoicemail", mock.Anything, mock.MatchedBy(func(rec database.VoicemailRecord) bool {
		return !rec.Notified
	})).Return(nil)

	err := svc.DeliverVoicemail(context.Background(), Voicemail{From: "+1", RecordingURL: "https://vendor/rec2"})

	require.EqualError(t, err, "invalid number")
	vmLog.AssertExpectations(t)
	pub.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliverVoicemail_LogFailureIsIgnored(t *testing.T) {
	gw := new(MockGateway)
	vmLog := new(MockVoicemailLog)
	svc := newTestService(gw, nil, vmLog)

	gw.On("SendMessage", mock.Anything, mock.Anything).Return("SM2", nil)
	vmLog.On("SaveVoicemail", mock.Anything, mock.Anything).Return(errors.New("db down"))

	assert.NoError(t, svc.DeliverVoicemail(context.Background(), Voicemail{RecordingURL: "https://vendor/rec3"}))
}

func TestFormatNotification(t *testing.T) {
	body := FormatNotification("DEVI AI", "+15551234567", RecordingLink("https://vendor/rec1"))
	assert.Contains(t, body, "+15551234567")
	assert.Contains(t, body, "https://vendor/rec1.mp3")
	assert.Contains(t, body, "DEVI AI Missed Call")
}
