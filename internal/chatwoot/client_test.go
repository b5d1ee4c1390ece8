package chatwoot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/deskbridge/deskbridge/internal/channel"
	"github.com/deskbridge/deskbridge/internal/config"
)

func newTestClient(t *testing.T, baseURL string, retries int, maxAttach int64) *Client {
	t.Helper()
	return NewClient(nil, config.ChatwootConfig{
		BaseURL:        baseURL,
		AccountID:      "1",
		APIToken:       "secret-token",
		Retries:        retries,
		TimeoutSeconds: 5,
		MaxAttachBytes: maxAttach,
	})
}

func TestPostTextSendsTokenAndPayload(t *testing.T) {
	t.Parallel()

	var gotPath, gotToken string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("api_access_token")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0, 0)
	if err := c.PostText(context.Background(), "42", "hola"); err != nil {
		t.Fatalf("PostText: %v", err)
	}

	if gotPath != "/api/v1/accounts/1/conversations/42/messages" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotToken != "secret-token" {
		t.Fatalf("token header = %q", gotToken)
	}
	if gotBody["content"] != "hola" || gotBody["message_type"] != "outgoing" || gotBody["private"] != false {
		t.Fatalf("body = %+v", gotBody)
	}
}

func TestPostTextSkipsEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server hit for empty content")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0, 0)
	if err := c.PostText(context.Background(), "42", "   "); err != nil {
		t.Fatalf("PostText: %v", err)
	}
}

func TestPostPrivateMarksPrivate(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0, 0)
	if err := c.PostPrivate(context.Background(), "42", "nota interna"); err != nil {
		t.Fatalf("PostPrivate: %v", err)
	}
	if gotBody["private"] != true {
		t.Fatalf("body = %+v", gotBody)
	}
}

func TestRetryOnServerError(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2, 0)
	if err := c.PostText(context.Background(), "42", "hola"); err != nil {
		t.Fatalf("PostText with retries: %v", err)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("server hit %d times, want 3", got)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2, 0)
	err := c.PostText(context.Background(), "42", "hola")
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Fatalf("err = %v, want status 401", err)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("4xx retried: %d hits", got)
	}
}

func TestPostAttachmentsMultipart(t *testing.T) {
	t.Parallel()

	var gotContentType string
	var gotFiles []string
	var gotContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		gotContent = r.FormValue("content")
		for _, fh := range r.MultipartForm.File["attachments[]"] {
			gotFiles = append(gotFiles, fh.Filename)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0, 0)
	err := c.PostAttachments(context.Background(), "42", "mirá esto", []channel.Attachment{
		{Kind: channel.AttachmentImage, Name: "foto.png", Mime: "image/png", Data: []byte{1, 2, 3}},
		{Kind: channel.AttachmentDocument, Name: "vacio.pdf", Mime: "application/pdf"},
	})
	if err != nil {
		t.Fatalf("PostAttachments: %v", err)
	}

	if !strings.HasPrefix(gotContentType, "multipart/form-data") {
		t.Fatalf("content type = %q", gotContentType)
	}
	if gotContent != "mirá esto" {
		t.Fatalf("content = %q", gotContent)
	}
	if len(gotFiles) != 1 || gotFiles[0] != "foto.png" {
		t.Fatalf("files = %v (the byteless attachment must be skipped)", gotFiles)
	}
}

func TestPostAttachmentsAllEmptyFallsBackToText(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0, 0)
	err := c.PostAttachments(context.Background(), "42", "", []channel.Attachment{{Name: "sin-bytes.png"}})
	if err != nil {
		t.Fatalf("PostAttachments: %v", err)
	}
	if gotBody["content"] != "(adjunto)" {
		t.Fatalf("fallback body = %+v", gotBody)
	}
}

func TestFetchAttachment(t *testing.T) {
	t.Parallel()

	payload := []byte("png-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0, 1<<20)
	att, err := c.FetchAttachment(context.Background(), srv.URL+"/uploads/foto%20uno.png")
	if err != nil {
		t.Fatalf("FetchAttachment: %v", err)
	}
	if att.Kind != channel.AttachmentImage || att.Mime != "image/png" {
		t.Fatalf("attachment = %+v", att)
	}
	if att.Name != "foto uno.png" {
		t.Fatalf("name = %q", att.Name)
	}
	if string(att.Data) != string(payload) {
		t.Fatalf("data = %q", att.Data)
	}
}

func TestFetchAttachmentRejectsOversized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0, 32)
	_, err := c.FetchAttachment(context.Background(), srv.URL+"/big.bin")
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("err = %v, want size error", err)
	}
}

func TestPostAttachmentsOversizedBecomesPointer(t *testing.T) {
	t.Parallel()

	type hit struct {
		contentType string
		json        map[string]any
		files       []string
	}
	var hits []hit
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := hit{contentType: r.Header.Get("Content-Type")}
		if strings.HasPrefix(h.contentType, "multipart/form-data") {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
				return
			}
			for _, fh := range r.MultipartForm.File["attachments[]"] {
				h.files = append(h.files, fh.Filename)
			}
		} else {
			_ = json.NewDecoder(r.Body).Decode(&h.json)
		}
		hits = append(hits, h)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0, 32)
	err := c.PostAttachments(context.Background(), "42", "", []channel.Attachment{
		{Kind: channel.AttachmentVideo, Name: "video.mp4", Mime: "video/mp4",
			Data: make([]byte, 64), URL: "https://cdn.example/video.mp4"},
		{Kind: channel.AttachmentImage, Name: "foto.png", Mime: "image/png", Data: []byte{1, 2, 3}},
	})
	if err != nil {
		t.Fatalf("PostAttachments: %v", err)
	}

	// The oversized attachment became a text pointer to its URL; only the
	// small one was uploaded.
	if len(hits) != 2 {
		t.Fatalf("hits = %+v", hits)
	}
	pointer, _ := hits[0].json["content"].(string)
	if !strings.Contains(pointer, "Archivo grande") || !strings.Contains(pointer, "https://cdn.example/video.mp4") {
		t.Fatalf("pointer text = %q", pointer)
	}
	if len(hits[1].files) != 1 || hits[1].files[0] != "foto.png" {
		t.Fatalf("uploaded files = %v", hits[1].files)
	}
}

func TestPostAttachmentsOversizedWithoutURL(t *testing.T) {
	t.Parallel()

	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Error("oversized attachment was uploaded as multipart")
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0, 32)
	err := c.PostAttachments(context.Background(), "42", "", []channel.Attachment{
		{Kind: channel.AttachmentDocument, Name: "dump.bin", Data: make([]byte, 64)},
	})
	if err != nil {
		t.Fatalf("PostAttachments: %v", err)
	}

	// No URL to point at: the customer still gets told, nothing is uploaded.
	if len(bodies) != 1 {
		t.Fatalf("bodies = %+v", bodies)
	}
	notice, _ := bodies[0]["content"].(string)
	if !strings.Contains(notice, "dump.bin") {
		t.Fatalf("notice = %q", notice)
	}
}

func TestFilenameFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "https://cdn.example/uploads/foto.png?sig=abc", want: "foto.png"},
		{in: "https://cdn.example/", want: "file"},
		{in: "https://cdn.example/a%20b.pdf", want: "a b.pdf"},
		{in: "::bad::", want: "file"},
	}
	for _, tt := range tests {
		if got := filenameFromURL(tt.in); got != tt.want {
			t.Fatalf("filenameFromURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFetchAttachmentDefaultsMime(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = io.WriteString(w, "raw")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0, 1<<20)
	att, err := c.FetchAttachment(context.Background(), srv.URL+"/blob")
	if err != nil {
		t.Fatalf("FetchAttachment: %v", err)
	}
	if att.Mime != "application/octet-stream" || att.Kind != channel.AttachmentDocument {
		t.Fatalf("attachment = %+v", att)
	}
}
