package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Attachment is one inline email attachment, referenced from the HTML
// body via cid:<ContentID>.
type Attachment struct {
	Filename  string
	ContentID string
	Content   []byte
}

// Email is one outgoing report email.
type Email struct {
	Subject     string
	HTML        string
	Attachments []Attachment
}

// ResendNotifier sends report emails through the Resend HTTP API.
type ResendNotifier struct {
	APIKey  string
	From    string
	To      []string
	BaseURL string // defaults to the Resend API host
	Client  *http.Client
}

// NewResendNotifier creates a notifier sending from the given address.
func NewResendNotifier(apiKey, from string, to []string) *ResendNotifier {
	return &ResendNotifier{
		APIKey:  apiKey,
		From:    from,
		To:      to,
		BaseURL: "https://api.resend.com",
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Configured reports whether credentials and recipients are present.
func (r *ResendNotifier) Configured() bool {
	return r.APIKey != "" && r.From != "" && len(r.To) > 0
}

type resendAttachment struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	ContentID   string `json:"content_id,omitempty"`
	Disposition string `json:"disposition,omitempty"`
}

type resendRequest struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Subject     string             `json:"subject"`
	HTML        string             `json:"html"`
	Attachments []resendAttachment `json:"attachments,omitempty"`
}

// Send posts the email to the Resend API.
func (r *ResendNotifier) Send(ctx context.Context, e Email) error {
	req := resendRequest{
		From:    r.From,
		To:      r.To,
		Subject: e.Subject,
		HTML:    e.HTML,
	}
	for _, a := range e.Attachments {
		req.Attachments = append(req.Attachments, resendAttachment{
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			Filename:    a.Filename,
			ContentID:   a.ContentID,
			Disposition: "inline",
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.APIKey)

	resp, err := r.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("resend API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
