// Package mail はメールリレー（Resend API）経由の請求書メール送信を提供する。
// APIキー未設定時はフェイルクローズで送信を拒否する。
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// defaultEndpoint はResendのメール送信APIのエンドポイント。
const defaultEndpoint = "https://api.resend.com/emails"

// ErrNotConfigured はAPIキー未設定のまま送信を試みた場合のエラー。
var ErrNotConfigured = errors.New("mail relay API key is not configured")

// Message はリレーへ渡す送信内容を表す。
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Sender はメール送信のインターフェース。
type Sender interface {
	// Send はメッセージを1通送信し、プロバイダが発行したメッセージIDを返す。
	// APIキー未設定の場合はErrNotConfiguredを返す（フェイルクローズ）。
	Send(ctx context.Context, msg Message) (string, error)
}

// Client はResend APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

var _ Sender = (*Client)(nil)

// NewClient はClientの新しいインスタンスを生成する。
// apiKeyが空の場合でも生成は成功するが、Sendは常にErrNotConfiguredを返す。
func NewClient(httpClient *http.Client, logger *slog.Logger, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
	}
}

// sendRequest はResend APIのリクエストボディ。
type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// sendResponse はResend APIの成功レスポンスボディ。
type sendResponse struct {
	ID string `json:"id"`
}

// Send はResend APIでメールを1通送信し、発行されたメッセージIDを返す。
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(sendRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("メールリレーAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("failed to call mail relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// エラー詳細はログのみに残し、呼び出し元にはステータスのみ返す
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("メールリレーAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("response", string(respBody)),
		)
		return "", fmt.Errorf("mail relay returned status %d", resp.StatusCode)
	}

	var result sendResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&result); err != nil {
		// 送信自体は成功しているためIDの欠落は警告に留める
		c.logger.Warn("メールリレーAPIのレスポンスを解析できませんでした",
			slog.String("error", err.Error()),
		)
		return "", nil
	}

	return result.ID, nil
}
