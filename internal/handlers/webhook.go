// Package handlers exposes the bridge's HTTP surface: the support-platform
// webhook endpoints and the health probes.
package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/deskbridge/deskbridge/internal/bridge"
	"github.com/deskbridge/deskbridge/internal/conversation"
)

// CustomerProcessor consumes decoded customer events. Enqueue must claim the
// event's per-conversation processing slot before returning, so events
// accepted in order are processed in order.
type CustomerProcessor interface {
	EnqueueCustomerMessage(ev bridge.CustomerMessage, done func(error))
}

// WebhookHandler receives Chatwoot webhook deliveries. Receipt is always
// acknowledged with 200 before the event outcome is known: the upstream
// delivers at least once and treats anything else as a reason to redeliver.
type WebhookHandler struct {
	logger    *slog.Logger
	processor CustomerProcessor
	states    conversation.Store
	secret    string
	target    string
	validate  *validator.Validate
}

// NewWebhookHandler creates the webhook handler. secret enables HMAC
// signature verification when non-empty; target is reported by /healthz.
func NewWebhookHandler(log *slog.Logger, processor CustomerProcessor, states conversation.Store, secret, target string) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger:    log.With(slog.String("handler", "webhook")),
		processor: processor,
		states:    states,
		secret:    secret,
		target:    target,
		validate:  validator.New(),
	}
}

// Register mounts the webhook and health routes.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/chatwoot/bot", h.Bot)
	e.POST("/chatwoot/webhook", h.Webhook)
	e.GET("/healthz", h.Health)
}

// Bot is the agent-bot webhook: it may greet conversations that have no
// supervisor involvement yet.
func (h *WebhookHandler) Bot(c echo.Context) error {
	return h.receive(c, true)
}

// Webhook is the account-level webhook: no greeting, escalation paths only.
func (h *WebhookHandler) Webhook(c echo.Context) error {
	return h.receive(c, false)
}

func (h *WebhookHandler) Health(c echo.Context) error {
	count := 0
	if h.states != nil {
		if states, err := h.states.Scan(c.Request().Context()); err == nil {
			count = len(states)
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ok":            true,
		"ts":            time.Now().UnixMilli(),
		"conversations": count,
		"supervisor":    h.target,
	})
}

func (h *WebhookHandler) receive(c echo.Context, allowGreeting bool) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusOK)
	}
	if !h.verifySignature(c.Request().Header.Get("X-Chatwoot-Signature"), body) {
		h.logger.Warn("webhook signature mismatch", slog.String("path", c.Path()))
		return c.NoContent(http.StatusOK)
	}
	ev, err := h.decode(body)
	if err != nil {
		// Malformed events are dropped after acknowledgment, never retried.
		h.logger.Debug("webhook event dropped", slog.Any("error", err))
		return c.NoContent(http.StatusOK)
	}
	ev.AllowGreeting = allowGreeting
	// The enqueue claims the conversation's processing slot before the ack,
	// so redeliveries racing the next event cannot reorder a conversation.
	h.processor.EnqueueCustomerMessage(ev, func(err error) {
		if err == nil {
			return
		}
		if errors.Is(err, bridge.ErrMissingConversation) {
			h.logger.Debug("webhook event without conversation dropped")
			return
		}
		h.logger.Error("customer message failed",
			slog.String("conversation_id", ev.ConversationID),
			slog.Any("error", err))
	})
	return c.NoContent(http.StatusOK)
}

func (h *WebhookHandler) verifySignature(signature string, body []byte) bool {
	if h.secret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

type attachmentRef struct {
	DataURL  string `json:"data_url"`
	FileURL  string `json:"file_url"`
	ThumbURL string `json:"thumb_url"`
}

func (a attachmentRef) best() string {
	if a.DataURL != "" {
		return a.DataURL
	}
	if a.FileURL != "" {
		return a.FileURL
	}
	return a.ThumbURL
}

// webhookEvent tolerates the payload shapes Chatwoot uses across event
// kinds: ids and message_type may live at the top level, under
// conversation, or under message, and ids arrive as numbers or strings.
type webhookEvent struct {
	ID             any    `json:"id"`
	ConversationID any    `json:"conversation_id"`
	MessageType    any    `json:"message_type"`
	Content        string `json:"content"`
	Conversation   *struct {
		ID any `json:"id"`
	} `json:"conversation"`
	Message *struct {
		ID             any             `json:"id"`
		ConversationID any             `json:"conversation_id"`
		MessageType    any             `json:"message_type"`
		Content        string          `json:"content"`
		Attachments    []attachmentRef `json:"attachments"`
	} `json:"message"`
	Attachments []attachmentRef `json:"attachments"`
}

type inboundEvent struct {
	ConversationID string `validate:"required"`
}

func (h *WebhookHandler) decode(body []byte) (bridge.CustomerMessage, error) {
	var raw webhookEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return bridge.CustomerMessage{}, fmt.Errorf("decode webhook payload: %w", err)
	}

	ev := bridge.CustomerMessage{
		EventID:     coerceID(raw.ID),
		Text:        raw.Content,
		MessageType: coerceType(raw.MessageType),
	}
	if raw.Conversation != nil {
		ev.ConversationID = coerceID(raw.Conversation.ID)
	}
	if ev.ConversationID == "" {
		ev.ConversationID = coerceID(raw.ConversationID)
	}
	for _, a := range raw.Attachments {
		if u := a.best(); u != "" {
			ev.AttachmentURLs = append(ev.AttachmentURLs, u)
		}
	}
	if raw.Message != nil {
		if ev.ConversationID == "" {
			ev.ConversationID = coerceID(raw.Message.ConversationID)
		}
		if ev.EventID == "" {
			ev.EventID = coerceID(raw.Message.ID)
		}
		if ev.Text == "" {
			ev.Text = raw.Message.Content
		}
		if ev.MessageType == "" {
			ev.MessageType = coerceType(raw.Message.MessageType)
		}
		for _, a := range raw.Message.Attachments {
			if u := a.best(); u != "" {
				ev.AttachmentURLs = append(ev.AttachmentURLs, u)
			}
		}
	}
	if ev.ConversationID == "" && raw.Conversation == nil && raw.Message == nil {
		// A bare message-created payload carries the conversation in "id".
		ev.ConversationID = coerceID(raw.ID)
	}
	if ev.MessageType == "" {
		ev.MessageType = bridge.DirectionIncoming
	}

	if err := h.validate.Struct(inboundEvent{ConversationID: ev.ConversationID}); err != nil {
		return bridge.CustomerMessage{}, fmt.Errorf("validate webhook payload: %w", err)
	}
	return ev, nil
}

func coerceID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

// coerceType maps Chatwoot's message_type, which arrives as a string on
// webhook payloads but as an enum number on API payloads (0 incoming,
// 1 outgoing).
func coerceType(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == 0 {
			return bridge.DirectionIncoming
		}
		return bridge.DirectionOutgoing
	default:
		return ""
	}
}
