package state

import (
	"context"
	"errors"
	"time"

	"github.com/sentiric/sentiric-missed-call-service/internal/constants"
)

var (
	// ErrInvalidCallID is returned for an empty call identifier.
	ErrInvalidCallID = errors.New("state: empty call id")
	// ErrConflict is returned when a concurrent writer kept winning an update.
	ErrConflict = errors.New("state: concurrent update conflict")
)

// ConversationState is the per-call position in the callback script.
type ConversationState struct {
	CallID    string          `json:"callId"`
	Stage     constants.Stage `json:"stage"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// UpdateFunc mutates a conversation in place. Returning an error aborts the
// update and leaves the stored state untouched.
type UpdateFunc func(st *ConversationState) error

// Store maps call identifiers to conversation state.
//
// Get returns nil, nil when the call is unknown or has expired. Update runs
// get-or-create, fn and save as one atomic step for that call identifier.
type Store interface {
	Get(ctx context.Context, callID string) (*ConversationState, error)
	GetOrCreate(ctx context.Context, callID string) (*ConversationState, error)
	Update(ctx context.Context, callID string, fn UpdateFunc) (*ConversationState, error)
}

func newConversation(callID string, now time.Time) *ConversationState {
	return &ConversationState{
		CallID:    callID,
		Stage:     constants.StageGreeting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
