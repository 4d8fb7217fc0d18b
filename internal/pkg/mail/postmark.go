package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const postmarkEndpoint = "https://api.postmarkapp.com/email"

// PostmarkSender sends transactional email via the Postmark HTTP API.
type PostmarkSender struct {
	serverToken string
	endpoint    string
	httpClient  *http.Client
}

func NewPostmarkSender(serverToken string) *PostmarkSender {
	return &PostmarkSender{
		serverToken: serverToken,
		endpoint:    postmarkEndpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type postmarkRequest struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody,omitempty"`
	TextBody string `json:"TextBody,omitempty"`
}

type postmarkResponse struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

func (p *PostmarkSender) Send(ctx context.Context, msg Message) error {
	payload := postmarkRequest{
		From:     msg.From,
		To:       msg.To,
		Subject:  msg.Subject,
		HtmlBody: msg.HTML,
		TextBody: msg.Text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal postmark request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create postmark request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.serverToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("postmark request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		var pmResp postmarkResponse
		_ = json.Unmarshal(respBody, &pmResp)
		return fmt.Errorf("postmark error (HTTP %d): code=%d message=%s", resp.StatusCode, pmResp.ErrorCode, pmResp.Message)
	}

	return nil
}
