// Package telegram adapts a Telegram group as the supervisor channel.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/deskbridge/deskbridge/internal/channel"
)

const (
	pollTimeoutSeconds = 30
	fileFetchTimeout   = 25 * time.Second
)

// Adapter sends to and receives from one supervisor group chat.
type Adapter struct {
	logger  *slog.Logger
	bot     *tgbotapi.BotAPI
	chatID  int64
	handler channel.InboundHandler
	client  *http.Client
	cancel  context.CancelFunc
}

// New connects the bot API and returns an Adapter bound to the supervisor
// group chat id.
func New(log *slog.Logger, botToken string, supervisorChatID int64) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	return &Adapter{
		logger: log.With(slog.String("adapter", "telegram")),
		bot:    bot,
		chatID: supervisorChatID,
		client: &http.Client{Timeout: fileFetchTimeout},
	}, nil
}

// SetHandler registers the consumer of inbound supervisor messages.
func (a *Adapter) SetHandler(h channel.InboundHandler) {
	a.handler = h
}

// SendText posts a text message to the supervisor group.
func (a *Adapter) SendText(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(a.chatID, text)
	if _, err := a.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send text: %w", err)
	}
	return nil
}

// SendAttachment posts a binary attachment to the supervisor group, typed
// by the attachment kind. Raw bytes are preferred; a URL reference is used
// when no bytes are present.
func (a *Adapter) SendAttachment(ctx context.Context, att channel.Attachment) error {
	var file tgbotapi.RequestFileData
	if len(att.Data) > 0 {
		name := att.Name
		if name == "" {
			name = "file"
		}
		file = tgbotapi.FileBytes{Name: name, Bytes: att.Data}
	} else if att.URL != "" {
		file = tgbotapi.FileURL(att.URL)
	} else {
		return fmt.Errorf("telegram send attachment: no content")
	}

	var chattable tgbotapi.Chattable
	switch att.Kind {
	case channel.AttachmentImage, channel.AttachmentSticker:
		photo := tgbotapi.NewPhoto(a.chatID, file)
		photo.Caption = att.Caption
		chattable = photo
	case channel.AttachmentVideo:
		video := tgbotapi.NewVideo(a.chatID, file)
		video.Caption = att.Caption
		chattable = video
	case channel.AttachmentAudio:
		audio := tgbotapi.NewAudio(a.chatID, file)
		audio.Caption = att.Caption
		chattable = audio
	default:
		doc := tgbotapi.NewDocument(a.chatID, file)
		doc.Caption = att.Caption
		chattable = doc
	}
	if _, err := a.bot.Send(chattable); err != nil {
		return fmt.Errorf("telegram send %s: %w", att.Kind, err)
	}
	return nil
}

// Start begins long-polling for updates and dispatching supervisor-group
// messages to the registered handler. It returns once polling is running.
func (a *Adapter) Start(ctx context.Context) error {
	if a.handler == nil {
		return fmt.Errorf("telegram: no inbound handler registered")
	}
	ctx, a.cancel = context.WithCancel(ctx)
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeoutSeconds
	updates := a.bot.GetUpdatesChan(cfg)
	go a.poll(ctx, updates)
	a.logger.Info("polling started", slog.Int64("chat_id", a.chatID))
	return nil
}

// Stop halts the update loop.
func (a *Adapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.bot.StopReceivingUpdates()
}

func (a *Adapter) poll(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			msg := update.Message
			if msg == nil || msg.Chat == nil || msg.Chat.ID != a.chatID {
				continue
			}
			inbound := a.toInbound(ctx, msg)
			if err := a.handler.HandleSupervisorMessage(ctx, inbound); err != nil {
				a.logger.Error("supervisor message failed",
					slog.String("message_id", inbound.MessageID),
					slog.Any("error", err))
			}
		}
	}
}

func (a *Adapter) toInbound(ctx context.Context, msg *tgbotapi.Message) channel.InboundMessage {
	inbound := channel.InboundMessage{
		MessageID:  strconv.Itoa(msg.MessageID),
		Text:       strings.TrimSpace(msg.Text),
		Caption:    strings.TrimSpace(msg.Caption),
		ReceivedAt: msg.Time(),
	}
	if msg.From != nil {
		inbound.SenderID = strconv.FormatInt(msg.From.ID, 10)
		inbound.SenderName = msg.From.UserName
		if inbound.SenderName == "" {
			inbound.SenderName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		}
	}
	for _, att := range a.collectMedia(ctx, msg) {
		inbound.Attachments = append(inbound.Attachments, att)
	}
	return inbound
}

// collectMedia downloads whatever media the message carries. Download
// failures are logged and the message still flows through as text.
func (a *Adapter) collectMedia(ctx context.Context, msg *tgbotapi.Message) []channel.Attachment {
	var out []channel.Attachment
	add := func(fileID, name, mime string, kind channel.AttachmentKind) {
		data, err := a.download(ctx, fileID)
		if err != nil {
			a.logger.Warn("media download failed",
				slog.String("file_id", fileID),
				slog.Any("error", err))
			return
		}
		out = append(out, channel.Attachment{
			Kind:    kind,
			Name:    name,
			Mime:    mime,
			Caption: strings.TrimSpace(msg.Caption),
			Data:    data,
		})
	}

	if len(msg.Photo) > 0 {
		largest := msg.Photo[len(msg.Photo)-1]
		add(largest.FileID, fmt.Sprintf("photo_%d.jpg", msg.MessageID), "image/jpeg", channel.AttachmentImage)
	}
	if msg.Video != nil {
		add(msg.Video.FileID, msg.Video.FileName, msg.Video.MimeType, channel.AttachmentVideo)
	}
	if msg.Audio != nil {
		add(msg.Audio.FileID, msg.Audio.FileName, msg.Audio.MimeType, channel.AttachmentAudio)
	}
	if msg.Voice != nil {
		add(msg.Voice.FileID, fmt.Sprintf("voice_%d.ogg", msg.MessageID), msg.Voice.MimeType, channel.AttachmentAudio)
	}
	if msg.Document != nil {
		add(msg.Document.FileID, msg.Document.FileName, msg.Document.MimeType, channel.AttachmentDocument)
	}
	if msg.Sticker != nil {
		add(msg.Sticker.FileID, fmt.Sprintf("sticker_%d.webp", msg.MessageID), "image/webp", channel.AttachmentSticker)
	}
	return out
}

func (a *Adapter) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := a.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch file: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
