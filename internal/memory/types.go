package memory

import (
	"context"
	"errors"
	"time"
)

// TimestampLayout matches the ISO-8601 local timestamps already present in
// existing session files.
const TimestampLayout = "2006-01-02T15:04:05.000000"

var ErrSessionNotFound = errors.New("session not found")

// Message is one paired turn: the user's question and the assistant's answer.
type Message struct {
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
	AI        string `json:"ai"`
}

// NewMessage stamps a turn with t.
func NewMessage(t time.Time, user, ai string) Message {
	return Message{
		Timestamp: t.Format(TimestampLayout),
		User:      user,
		AI:        ai,
	}
}

// Sessions maps a session identifier to its ordered turns.
type Sessions map[string][]Message

// Clone returns a deep copy safe to hand to a Store while the original keeps
// being appended to.
func (s Sessions) Clone() Sessions {
	out := make(Sessions, len(s))
	for id, msgs := range s {
		cp := make([]Message, len(msgs))
		copy(cp, msgs)
		out[id] = cp
	}
	return out
}

// Store persists the whole session mapping at once.
// Implementations rewrite the full mapping on every Save.
type Store interface {
	// Load reads every session. A store that has never been written
	// returns an empty mapping and no error.
	Load(ctx context.Context) (Sessions, error)

	// Save replaces the persisted mapping with sessions.
	Save(ctx context.Context, sessions Sessions) error
}
