package notifier_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jwillz7667/verbio-auth/notifier"
)

func TestWebhookPostsReuseEvent(t *testing.T) {
	var received []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		received = body
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	at := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	webhook := notifier.NewWebhook(ts.URL)
	require.NoError(t, webhook.NotifyReuse(context.Background(), "user-1", "family-1", at))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(received, &payload))
	require.Equal(t, "refresh_token_reuse", payload["event"])
	require.Equal(t, "user-1", payload["userId"])
	require.Equal(t, "family-1", payload["familyId"])
	require.Equal(t, "2026-01-15T12:00:00Z", payload["timestamp"])
}

func TestWebhookUnreachableEndpoint(t *testing.T) {
	webhook := notifier.NewWebhook("http://127.0.0.1:1")
	require.Error(t, webhook.NotifyReuse(context.Background(), "user-1", "family-1", time.Now()))
}
