package collector

import (
	"context"
	"strings"

	"github.com/fyrsmithlabs/contextkeeper/internal/dom"
)

// Role is the speaker of a message.
type Role string

const (
	// RoleNone marks a segment whose speaker could not be determined.
	RoleNone      Role = ""
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r names a speaker.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

func (r Role) other() Role {
	if r == RoleUser {
		return RoleAssistant
	}
	return RoleUser
}

// ParseRole normalizes s to a Role. Anything other than "assistant"
// (case-insensitive) is a user message.
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleAssistant)) {
		return RoleAssistant
	}
	return RoleUser
}

// Candidate is a node believed to hold one message, or several aggregated.
// Text is the node's trimmed visible text and is never empty.
type Candidate struct {
	Node dom.Node
	Text string
}

// Segment is a piece of candidate text. Role is RoleNone when no speaker
// marker introduced it.
type Segment struct {
	Role Role
	Text string
}

// Message is an extracted conversational turn.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Batch is the set of new messages produced by one pipeline run.
type Batch struct {
	Messages       []Message `json:"messages"`
	Source         string    `json:"source"`
	ConversationID string    `json:"conversation_id"`
}

// Persister stores the dedup fingerprints under a key. Get on a key that was
// never written returns an empty slice and a nil error.
type Persister interface {
	Get(ctx context.Context, key string) ([]string, error)
	Set(ctx context.Context, key string, fingerprints []string) error
}

// Relay delivers batches of new messages downstream.
type Relay interface {
	Send(ctx context.Context, batch Batch) error
}
