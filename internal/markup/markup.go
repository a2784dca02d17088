// Package markup renders the TwiML documents returned to the voice webhooks.
package markup

import (
	"strconv"

	"github.com/twilio/twilio-go/twiml"

	"github.com/sentiric/sentiric-missed-call-service/internal/constants"
)

// Kind identifies one of the fixed documents of the callback script.
type Kind string

const (
	KindGreetingGather Kind = "greeting_gather"
	KindRecordPrompt   Kind = "record_prompt"
	KindClosing        Kind = "closing"
	KindVoicemailSaved Kind = "voicemail_saved"
	KindErrorFallback  Kind = "error_fallback"
)

// fallbackDocument is served when TwiML rendering itself fails.
const fallbackDocument = `<?xml version="1.0" encoding="UTF-8"?><Response><Say>Technical error.</Say><Hangup/></Response>`

// Prompts are the spoken texts of each document.
type Prompts struct {
	Greeting       string
	RecordPrompt   string
	Closing        string
	VoicemailSaved string
	TechnicalError string
}

// DefaultPrompts returns the Hindi script the assistant ships with.
func DefaultPrompts() Prompts {
	return Prompts{
		Greeting:       "Namaskar, main DEVI Simon Sir ki personal AI assistant hoon. Aap kyun call kiye the?",
		RecordPrompt:   "Dhanyavaad. Kripya beep ke baad apna message chhod dijiye.",
		Closing:        "Dhanyavaad. Namaste.",
		VoicemailSaved: "Aapka message record ho gaya hai. Dhanyavaad.",
		TechnicalError: "Technical error.",
	}
}

type Options struct {
	Voice               string
	Language            string
	BaseURL             string
	MaxRecordingSeconds int
	Prompts             Prompts
}

// Builder renders documents for a fixed voice, locale and callback base URL.
type Builder struct {
	voice        string
	language     string
	gatherAction string
	recordAction string
	maxLength    string
	prompts      Prompts
}

func NewBuilder(opts Options) *Builder {
	if opts.MaxRecordingSeconds <= 0 {
		opts.MaxRecordingSeconds = 120
	}
	return &Builder{
		voice:        opts.Voice,
		language:     opts.Language,
		gatherAction: opts.BaseURL + constants.PathVoice,
		recordAction: opts.BaseURL + constants.PathVoiceEnd,
		maxLength:    strconv.Itoa(opts.MaxRecordingSeconds),
		prompts:      opts.Prompts,
	}
}

// Render returns the TwiML document for kind. It never fails: an unknown
// kind renders the closing document and a rendering error yields a static
// technical-error document.
func (b *Builder) Render(kind Kind) string {
	doc, err := twiml.Voice(b.verbs(kind))
	if err != nil {
		return fallbackDocument
	}
	return doc
}

func (b *Builder) verbs(kind Kind) []twiml.Element {
	switch kind {
	case KindGreetingGather:
		return []twiml.Element{
			b.say(b.prompts.Greeting),
			&twiml.VoiceGather{
				Input:         "speech",
				Language:      b.language,
				SpeechTimeout: "auto",
				Action:        b.gatherAction,
				Method:        "POST",
			},
		}
	case KindRecordPrompt:
		return []twiml.Element{
			b.say(b.prompts.RecordPrompt),
			&twiml.VoiceRecord{
				MaxLength: b.maxLength,
				PlayBeep:  "true",
				Action:    b.recordAction,
				Method:    "POST",
			},
		}
	case KindVoicemailSaved:
		return []twiml.Element{b.say(b.prompts.VoicemailSaved), &twiml.VoiceHangup{}}
	case KindErrorFallback:
		// Plain vendor voice: this path must not depend on the configured one.
		return []twiml.Element{&twiml.VoiceSay{Message: b.prompts.TechnicalError}, &twiml.VoiceHangup{}}
	default:
		return []twiml.Element{b.say(b.prompts.Closing), &twiml.VoiceHangup{}}
	}
}

func (b *Builder) say(text string) *twiml.VoiceSay {
	return &twiml.VoiceSay{
		Message:  text,
		Voice:    b.voice,
		Language: b.language,
	}
}
