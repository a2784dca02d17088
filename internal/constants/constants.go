package constants

// Stage is a conversation's position in the callback script.
type Stage string

const (
	StageGreeting  Stage = "greeting"
	StageListening Stage = "listening"
	StageRecording Stage = "recording"
	StageDone      Stage = "done"
)

// EventType names the lifecycle events published to and consumed from RabbitMQ.
type EventType string

const (
	EventTypeCallMissed        EventType = "call.missed"
	EventTypeCallbackInitiated EventType = "callback.initiated"
	EventTypeVoicemailReceived EventType = "voicemail.received"
)

// Webhook paths registered with the telephony vendor.
const (
	PathHealth     = "/health"
	PathMissedCall = "/webhook/missed-call"
	PathVoice      = "/webhook/voice"
	PathVoiceEnd   = "/webhook/voice-end"
	PathRecording  = "/webhook/recording"
	PathStatus     = "/webhook/status"
)

// RecordingFormatSuffix turns a vendor recording URL into a playable MP3 link.
const RecordingFormatSuffix = ".mp3"
