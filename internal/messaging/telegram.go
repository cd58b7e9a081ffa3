package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TelegramSender is a best-effort HTTP implementation of Sender against the
// Telegram Bot HTTP API. No Go Telegram client library is available in the
// dependency pack (see DESIGN.md), so the two calls it needs are made
// directly: plain JSON POSTs, same shape as any other JSON API call this
// codebase makes.
type TelegramSender struct {
	token string
	hc    *http.Client
}

// NewTelegramSender builds a sender authenticated with token (the bot's API
// token, distinct from the listing source's OAuth credentials).
func NewTelegramSender(token string, hc *http.Client) *TelegramSender {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &TelegramSender{token: token, hc: hc}
}

func (t *TelegramSender) endpoint(method string) string {
	return fmt.Sprintf("https://api.telegram.org/bot%s/%s", t.token, method)
}

type sendPhotoRequest struct {
	ChatID    int64  `json:"chat_id"`
	Photo     string `json:"photo"`
	Caption   string `json:"caption"`
	ParseMode string `json:"parse_mode"`
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// SendPhoto posts photoURL with an HTML caption. Caption text should
// already have gone through SanitizeCaption.
func (t *TelegramSender) SendPhoto(ctx context.Context, chatID int64, photoURL, captionHTML string) error {
	return t.post(ctx, "sendPhoto", sendPhotoRequest{
		ChatID:    chatID,
		Photo:     photoURL,
		Caption:   captionHTML,
		ParseMode: "HTML",
	})
}

// SendText posts a plain text message.
func (t *TelegramSender) SendText(ctx context.Context, chatID int64, text string) error {
	return t.post(ctx, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text})
}

func (t *TelegramSender) post(ctx context.Context, method string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("messaging: encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(method), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("messaging: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.hc.Do(req)
	if err != nil {
		return fmt.Errorf("messaging: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("messaging: %s: unexpected status %s", method, resp.Status)
	}
	return nil
}
