// Package channel abstracts the supervisor messaging channel: sending
// escalations out to the supervisor group and receiving supervisor replies
// back, including binary attachments in both directions.
package channel

import (
	"context"
	"strings"
	"time"
)

// AttachmentKind classifies a binary attachment.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentSticker  AttachmentKind = "sticker"
	AttachmentDocument AttachmentKind = "document"
)

// KindFromMime maps a content type onto an attachment kind. Anything
// unrecognized travels as a document.
func KindFromMime(mime string) AttachmentKind {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case mime == "image/webp":
		return AttachmentSticker
	case strings.HasPrefix(mime, "image/"):
		return AttachmentImage
	case strings.HasPrefix(mime, "video/"):
		return AttachmentVideo
	case strings.HasPrefix(mime, "audio/"):
		return AttachmentAudio
	default:
		return AttachmentDocument
	}
}

// Attachment is a binary file moving through the bridge, carried either as
// raw bytes or as a fetchable URL.
type Attachment struct {
	Kind    AttachmentKind
	Name    string
	Mime    string
	Caption string
	Data    []byte
	URL     string
}

// InboundMessage is a supervisor-channel message received by the bridge.
type InboundMessage struct {
	MessageID   string
	SenderID    string
	SenderName  string
	Text        string
	Caption     string
	Attachments []Attachment
	ReceivedAt  time.Time
}

// PlainText returns the message text, falling back to the media caption.
func (m InboundMessage) PlainText() string {
	if t := strings.TrimSpace(m.Text); t != "" {
		return t
	}
	return strings.TrimSpace(m.Caption)
}

// Sender delivers messages to the supervisor channel.
type Sender interface {
	SendText(ctx context.Context, text string) error
	SendAttachment(ctx context.Context, att Attachment) error
}

// InboundHandler consumes supervisor messages surfaced by a Receiver.
type InboundHandler interface {
	HandleSupervisorMessage(ctx context.Context, msg InboundMessage) error
}

// Receiver is the inbound side of a channel adapter.
type Receiver interface {
	Start(ctx context.Context) error
	Stop()
}
