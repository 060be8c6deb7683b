// Package notifier delivers out-of-band security signals, so that a
// refresh-token reuse detection reaches an operator channel and not only
// the server log.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SecurityNotifier receives signals about possible credential theft.
// Implementations must not block the rotation path; delivery is best effort.
type SecurityNotifier interface {
	NotifyReuse(ctx context.Context, userID, familyID string, at time.Time) error
}

// Noop discards every signal. Used when no webhook is configured.
type Noop struct{}

var _ SecurityNotifier = Noop{}

func (Noop) NotifyReuse(context.Context, string, string, time.Time) error {
	return nil
}

type reusePayload struct {
	Event     string `json:"event"`
	UserID    string `json:"userId"`
	FamilyID  string `json:"familyId"`
	Timestamp string `json:"timestamp"`
}

// Webhook posts reuse events to a configured URL.
type Webhook struct {
	url    string
	client *http.Client
}

var _ SecurityNotifier = (*Webhook)(nil)

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (w *Webhook) NotifyReuse(ctx context.Context, userID, familyID string, at time.Time) error {
	payload := reusePayload{
		Event:     "refresh_token_reuse",
		UserID:    userID,
		FamilyID:  familyID,
		Timestamp: at.Format(time.RFC3339),
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "Webhook.NotifyReuse marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(jsonBody))
	if err != nil {
		return errors.Wrap(err, "Webhook.NotifyReuse request")
	}
	req.Header.Set("Content-Type", "application/json")

	response, err := w.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "Webhook.NotifyReuse post")
	}
	defer response.Body.Close()

	log.Debug().Str("user_id", userID).Int("status", response.StatusCode).Msg("reuse webhook delivered")
	return nil
}
