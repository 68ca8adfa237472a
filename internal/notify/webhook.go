package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/GlebRadaev/walletledger/pkg/clients"
)

type Poster interface {
	Post(url string, headers http.Header, body []byte) (statusCode int, respBody []byte, err error)
}

// Webhook POSTs each event as JSON. Any non-2xx answer counts as a failure.
type Webhook struct {
	url    string
	client Poster
}

func NewWebhook(url string, client Poster) *Webhook {
	if client == nil {
		client = clients.NewHTTPClient()
	}
	return &Webhook{
		url:    url,
		client: client,
	}
}

func (w *Webhook) Send(_ context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("X-Event-Kind", string(event.Kind))
	headers.Set("X-Event-Id", event.ID)

	status, _, err := w.client.Post(w.url, headers, body)
	if err != nil {
		return fmt.Errorf("post to webhook: %w", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook answered %d", status)
	}
	return nil
}
