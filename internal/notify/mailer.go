package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPMailer posts transactional emails to a provider's JSON API.
type HTTPMailer struct {
	Endpoint string
	Key      string
	From     string
	Client   *http.Client
}

func NewHTTPMailer(endpoint, key, from string) *HTTPMailer {
	return &HTTPMailer{Endpoint: endpoint, Key: key, From: from, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (m *HTTPMailer) Send(ctx context.Context, mail Email) error {
	payload := map[string]string{
		"from":    m.From,
		"to":      mail.To,
		"subject": mail.Subject,
		"html":    mail.HTML,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", m.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.Key != "" {
		req.Header.Set("Authorization", "Bearer "+m.Key)
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("mail provider status %d", resp.StatusCode)
	}
	return nil
}
