// Package chatwoot is a minimal client for the parts of the Chatwoot REST
// API the bridge uses: posting public and private conversation messages,
// posting multipart messages with binary attachments, and fetching
// attachment payloads.
package chatwoot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/deskbridge/deskbridge/internal/channel"
	"github.com/deskbridge/deskbridge/internal/config"
)

const retryBackoffStep = 300 * time.Millisecond

// Client talks to one Chatwoot account.
type Client struct {
	logger    *slog.Logger
	baseURL   string
	token     string
	http      *http.Client
	retries   int
	maxAttach int64
}

// NewClient builds a Client from configuration. BaseURL and AccountID are
// combined into the account-scoped API root.
func NewClient(log *slog.Logger, cfg config.ChatwootConfig) *Client {
	if log == nil {
		log = slog.Default()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxAttach := cfg.MaxAttachBytes
	if maxAttach <= 0 {
		maxAttach = config.DefaultMaxAttach
	}
	return &Client{
		logger:    log.With(slog.String("client", "chatwoot")),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/") + "/api/v1/accounts/" + cfg.AccountID,
		token:     cfg.APIToken,
		http:      &http.Client{Timeout: timeout},
		retries:   cfg.Retries,
		maxAttach: maxAttach,
	}
}

func (c *Client) messagesURL(conversationID string) string {
	return c.baseURL + "/conversations/" + conversationID + "/messages"
}

// PostText posts a public outgoing text message to the conversation.
func (c *Client) PostText(ctx context.Context, conversationID, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.postJSON(ctx, c.messagesURL(conversationID), map[string]any{
		"content":      text,
		"message_type": "outgoing",
		"private":      false,
		"content_type": "text",
	})
}

// PostPrivate posts an internal note visible to agents only.
func (c *Client) PostPrivate(ctx context.Context, conversationID, text string) error {
	return c.postJSON(ctx, c.messagesURL(conversationID), map[string]any{
		"content":      text,
		"message_type": "outgoing",
		"private":      true,
		"content_type": "text",
	})
}

// PostAttachments posts a multipart outgoing message carrying the given
// binary attachments. Attachments without bytes are skipped; an attachment
// over the size cap is never uploaded, it becomes a text pointer instead.
func (c *Client) PostAttachments(ctx context.Context, conversationID, content string, atts []channel.Attachment) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if content == "" {
		content = "(adjunto)"
	}
	_ = writer.WriteField("content", content)
	_ = writer.WriteField("message_type", "outgoing")
	_ = writer.WriteField("private", "false")
	wrote, pointed := 0, 0
	for _, att := range atts {
		if len(att.Data) == 0 {
			continue
		}
		name := att.Name
		if name == "" {
			name = "file"
		}
		if int64(len(att.Data)) > c.maxAttach {
			c.logger.Warn("attachment exceeds size cap",
				slog.String("name", name),
				slog.Int("bytes", len(att.Data)),
				slog.Int64("cap", c.maxAttach))
			pointer := "Archivo grande, descargalo aquí: " + att.URL
			if att.URL == "" {
				pointer = fmt.Sprintf("El archivo %q supera el límite de adjuntos.", name)
			}
			if err := c.PostText(ctx, conversationID, pointer); err != nil {
				return err
			}
			pointed++
			continue
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="attachments[]"; filename=%q`, name))
		mime := att.Mime
		if mime == "" {
			mime = "application/octet-stream"
		}
		header.Set("Content-Type", mime)
		part, err := writer.CreatePart(header)
		if err != nil {
			return fmt.Errorf("chatwoot multipart: %w", err)
		}
		if _, err := part.Write(att.Data); err != nil {
			return fmt.Errorf("chatwoot multipart: %w", err)
		}
		wrote++
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("chatwoot multipart: %w", err)
	}
	if wrote == 0 {
		if pointed > 0 {
			return nil
		}
		return c.PostText(ctx, conversationID, content)
	}
	payload := body.Bytes()
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(conversationID), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("api_access_token", c.token)
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// FetchAttachment downloads one attachment payload.
func (c *Client) FetchAttachment(ctx context.Context, rawURL string) (channel.Attachment, error) {
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	})
	if err != nil {
		return channel.Attachment{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return channel.Attachment{}, fmt.Errorf("fetch attachment: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxAttach+1))
	if err != nil {
		return channel.Attachment{}, fmt.Errorf("fetch attachment: %w", err)
	}
	if int64(len(data)) > c.maxAttach {
		return channel.Attachment{}, fmt.Errorf("fetch attachment: exceeds %d bytes", c.maxAttach)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}
	return channel.Attachment{
		Kind: channel.KindFromMime(mime),
		Name: filenameFromURL(rawURL),
		Mime: mime,
		Data: data,
		URL:  rawURL,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, url string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("chatwoot encode: %w", err)
	}
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("api_access_token", c.token)
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// doWithRetry runs the request with bounded retries and linear backoff on
// transient failures (network errors and 5xx responses). Each attempt is
// capped by the client timeout.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	attempts := c.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoffStep):
			}
		}
		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 && attempt < attempts-1 {
			resp.Body.Close()
			lastErr = fmt.Errorf("chatwoot: status %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("chatwoot request failed after %d attempts: %w", attempts, lastErr)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return fmt.Errorf("chatwoot: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func filenameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "file"
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	if decoded, err := url.PathUnescape(name); err == nil {
		return decoded
	}
	return name
}
