package memory

import (
	"context"
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultRetention is the maximum number of messages kept per user.
const DefaultRetention = 20

// DefaultContextWindow is the number of recent messages fed into a prompt
// (the last three exchanges).
const DefaultContextWindow = 6

// Message is one turn in a conversation. Provider and Model are only set on
// assistant turns.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
}

// NewUserMessage builds a user turn stamped with the current time.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now().UTC()}
}

// NewAssistantMessage builds an assistant turn carrying the provider and
// model that produced it.
func NewAssistantMessage(content, provider, model string) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Provider:  provider,
		Model:     model,
	}
}

// Snapshot maps a user id to its ordered conversation log, oldest first.
// It is the unit the Store persists.
type Snapshot map[string][]Message

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for userID, log := range s {
		out[userID] = append([]Message(nil), log...)
	}
	return out
}

// Store persists the full memory document. Save always rewrites the whole
// snapshot; Load returns an empty snapshot when nothing was stored yet.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
	Close() error
}
