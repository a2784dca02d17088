package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sentiric/sentiric-missed-call-service/internal/constants"
	"github.com/sentiric/sentiric-missed-call-service/internal/ctxlogger"
	"github.com/sentiric/sentiric-missed-call-service/internal/markup"
	"github.com/sentiric/sentiric-missed-call-service/internal/state"
)

// Turn is the outcome of one voice webhook invocation.
type Turn struct {
	CallID   string
	From     constants.Stage
	To       constants.Stage
	Document markup.Kind
}

// StepFunc decides the next stage and document for a stage.
type StepFunc func(hasSpeech bool) (constants.Stage, markup.Kind)

var stateMap = map[constants.Stage]StepFunc{
	constants.StageGreeting:  stepGreeting,
	constants.StageListening: stepListening,
}

func stepGreeting(bool) (constants.Stage, markup.Kind) {
	return constants.StageListening, markup.KindGreetingGather
}

func stepListening(hasSpeech bool) (constants.Stage, markup.Kind) {
	if hasSpeech {
		return constants.StageRecording, markup.KindRecordPrompt
	}
	return constants.StageListening, markup.KindClosing
}

// Transition is the pure transition function. Any stage without a step,
// including recording and done, keeps its stage and closes the call.
func Transition(current constants.Stage, speechResult string) (constants.Stage, markup.Kind) {
	step, ok := stateMap[current]
	if !ok {
		return current, markup.KindClosing
	}
	return step(HasSpeech(speechResult))
}

// HasSpeech reports whether a SpeechResult carries any recognized text.
// An empty or whitespace-only value counts as absent.
func HasSpeech(speechResult string) bool {
	return strings.TrimSpace(speechResult) != ""
}

// Machine applies Transition to stored conversations.
type Machine struct {
	store       state.Store
	transitions *prometheus.CounterVec
}

// NewMachine creates a Machine. transitions may be nil.
func NewMachine(store state.Store, transitions *prometheus.CounterVec) *Machine {
	return &Machine{store: store, transitions: transitions}
}

// Advance runs one turn for callID. The stored stage changes atomically with
// the decision, so two turns of one call never interleave.
func (m *Machine) Advance(ctx context.Context, callID, speechResult string) (Turn, error) {
	l := ctxlogger.FromContext(ctx)
	turn := Turn{CallID: callID}

	_, err := m.store.Update(ctx, callID, func(st *state.ConversationState) error {
		turn.From = st.Stage
		turn.To, turn.Document = Transition(st.Stage, speechResult)
		st.Stage = turn.To
		return nil
	})
	if err != nil {
		return Turn{}, fmt.Errorf("conversation update failed for %s: %w", callID, err)
	}

	if m.transitions != nil {
		m.transitions.WithLabelValues(string(turn.From), string(turn.To)).Inc()
	}
	l.Info().
		Str("from_stage", string(turn.From)).
		Str("to_stage", string(turn.To)).
		Str("document", string(turn.Document)).
		Bool("has_speech", HasSpeech(speechResult)).
		Msg("Dialog turn processed.")
	return turn, nil
}
