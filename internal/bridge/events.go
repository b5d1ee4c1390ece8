// Package bridge implements the handoff orchestrator: answering customer
// messages from the knowledge matcher, escalating unanswered questions to
// the supervisor channel, and routing supervisor replies (and commands)
// back to the right conversation.
package bridge

import (
	"context"
	"errors"

	"github.com/deskbridge/deskbridge/internal/channel"
)

// ErrMissingConversation marks an inbound event that cannot be routed and
// is dropped after acknowledgment, never retried.
var ErrMissingConversation = errors.New("event has no conversation id")

// Message direction values as reported by the support platform.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// CustomerMessage is a typed inbound event from the support platform.
type CustomerMessage struct {
	EventID        string
	ConversationID string
	MessageType    string
	Text           string
	AttachmentURLs []string
	// AllowGreeting is set by the bot webhook surface, where a first
	// contact without supervisor involvement gets the greeting prompt.
	AllowGreeting bool
}

// Platform is the support-platform side of the bridge: posting messages and
// attachments into a conversation, and resolving attachment URLs to bytes.
type Platform interface {
	PostText(ctx context.Context, conversationID, text string) error
	PostPrivate(ctx context.Context, conversationID, text string) error
	PostAttachments(ctx context.Context, conversationID, content string, atts []channel.Attachment) error
	FetchAttachment(ctx context.Context, url string) (channel.Attachment, error)
}
