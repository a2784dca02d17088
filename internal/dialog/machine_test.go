package dialog

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentiric/sentiric-missed-call-service/internal/constants"
	"github.com/sentiric/sentiric-missed-call-service/internal/markup"
	"github.com/sentiric/sentiric-missed-call-service/internal/state"
)

func TestTransition(t *testing.T) {
	testCases := []struct {
		name      string
		stage     constants.Stage
		speech    string
		wantStage constants.Stage
		wantDoc   markup.Kind
	}{
		{"greeting asks and listens", constants.StageGreeting, "", constants.StageListening, markup.KindGreetingGather},
		{"greeting ignores speech", constants.StageGreeting, "hello", constants.StageListening, markup.KindGreetingGather},
		{"listening with speech records", constants.StageListening, "mujhe callback chahiye", constants.StageRecording, markup.KindRecordPrompt},
		{"listening without speech closes", constants.StageListening, "", constants.StageListening, markup.KindClosing},
		{"listening with blank speech closes", constants.StageListening, "   \t", constants.StageListening, markup.KindClosing},
		{"recording closes", constants.StageRecording, "more words", constants.StageRecording, markup.KindClosing},
		{"done closes", constants.StageDone, "", constants.StageDone, markup.KindClosing},
		{"unknown stage closes", constants.Stage("bogus"), "hi", constants.Stage("bogus"), markup.KindClosing},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stage, doc := Transition(tc.stage, tc.speech)
			assert.Equal(t, tc.wantStage, stage)
			assert.Equal(t, tc.wantDoc, doc)
		})
	}
}

func newTestMachine() (*Machine, *state.MemoryStore, *prometheus.CounterVec) {
	store := state.NewMemoryStore(0)
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_transitions"}, []string{"from", "to"})
	return NewMachine(store, transitions), store, transitions
}

func stageOf(t *testing.T, store state.Store, callID string) constants.Stage {
	t.Helper()
	st, err := store.Get(context.Background(), callID)
	require.NoError(t, err)
	require.NotNil(t, st)
	return st.Stage
}

func TestMachine_NewCallGetsGreeting(t *testing.T) {
	m, store, transitions := newTestMachine()

	turn, err := m.Advance(context.Background(), "CA-new", "")
	require.NoError(t, err)

	assert.Equal(t, markup.KindGreetingGather, turn.Document)
	assert.Equal(t, constants.StageListening, stageOf(t, store, "CA-new"))
	assert.Equal(t, float64(1), testutil.ToFloat64(transitions.WithLabelValues("greeting", "listening")))
}

func TestMachine_FullScript(t *testing.T) {
	m, store, _ := newTestMachine()
	ctx := context.Background()

	turn, err := m.Advance(ctx, "CA1", "")
	require.NoError(t, err)
	assert.Equal(t, markup.KindGreetingGather, turn.Document)

	turn, err = m.Advance(ctx, "CA1", "please call me back")
	require.NoError(t, err)
	assert.Equal(t, markup.KindRecordPrompt, turn.Document)
	assert.Equal(t, constants.StageRecording, stageOf(t, store, "CA1"))

	turn, err = m.Advance(ctx, "CA1", "anything")
	require.NoError(t, err)
	assert.Equal(t, markup.KindClosing, turn.Document)
	assert.Equal(t, constants.StageRecording, stageOf(t, store, "CA1"))
}

func TestMachine_TwoSilentTurns(t *testing.T) {
	m, store, _ := newTestMachine()
	ctx := context.Background()

	first, err := m.Advance(ctx, "CA2", "")
	require.NoError(t, err)
	second, err := m.Advance(ctx, "CA2", "")
	require.NoError(t, err)

	assert.Equal(t, markup.KindGreetingGather, first.Document)
	assert.Equal(t, markup.KindClosing, second.Document)
	assert.Equal(t, constants.StageListening, stageOf(t, store, "CA2"))
}

func TestMachine_CallsAreIndependent(t *testing.T) {
	m, store, _ := newTestMachine()
	ctx := context.Background()

	_, err := m.Advance(ctx, "CA-a", "")
	require.NoError(t, err)
	_, err = m.Advance(ctx, "CA-a", "hello")
	require.NoError(t, err)

	turn, err := m.Advance(ctx, "CA-b", "hello")
	require.NoError(t, err)

	assert.Equal(t, markup.KindGreetingGather, turn.Document)
	assert.Equal(t, constants.StageRecording, stageOf(t, store, "CA-a"))
	assert.Equal(t, constants.StageListening, stageOf(t, store, "CA-b"))
}

type failingStore struct {
	state.Store
	err error
}

func (f failingStore) Update(context.Context, string, state.UpdateFunc) (*state.ConversationState, error) {
	return nil, f.err
}

func TestMachine_StoreFailure(t *testing.T) {
	boom := errors.New("redis down")
	m := NewMachine(failingStore{err: boom}, nil)

	_, err := m.Advance(context.Background(), "CA1", "")
	assert.ErrorIs(t, err, boom)
}

func TestMachine_EmptyCallID(t *testing.T) {
	m, _, _ := newTestMachine()

	_, err := m.Advance(context.Background(), "", "")
	assert.ErrorIs(t, err, state.ErrInvalidCallID)
}
