package session

import (
	"context"

	xerrors "FinMitra/internal/errors"
)

// Role labels which side of the conversation produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in a session's ordered history.
type Turn struct {
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

// Store maps opaque session keys to bounded, ordered conversation history.
//
// GetOrCreate never treats an unknown key as an error: it mints a fresh key
// and starts an empty history instead, and it never adopts a caller-supplied
// key it has not issued itself. Append commits the user and assistant turns
// of one run as a unit; concurrent appends against the same key are
// serialized so turn pairs never interleave. Both methods return snapshots,
// never live references into store state.
type Store interface {
	GetOrCreate(ctx context.Context, key string) (string, []Turn, error)
	Append(ctx context.Context, key, userText, assistantText string) ([]Turn, error)
	Close() error
}

// DefaultMaxTurns bounds a session's history when no cap is configured.
const DefaultMaxTurns = 40

// ErrEmptyTurn rejects appends where either side of the pair is blank.
var ErrEmptyTurn = xerrors.New(xerrors.CodeInvalidArgument, "conversation turns must not be empty")

func normalizeCap(maxTurns int) int {
	if maxTurns < 2 {
		return DefaultMaxTurns
	}
	return maxTurns
}
