package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAlert() Alert {
	return Alert{
		Type:    AlertTypeBackfillStalled,
		Chain:   "avalanche",
		Indexer: "usdc-avalanche",
		Title:   "Backfill stopped",
		Message: "chunk 1000..1999 failed: chain source unavailable",
		Fields: map[string]string{
			"cursor": "1000",
			"target": "5000",
		},
	}
}

func countingServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &n
}

func TestMultiAlerter_SendsToAllChannels(t *testing.T) {
	slackSrv, slackHits := countingServer(t, http.StatusOK)
	hookSrv, hookHits := countingServer(t, http.StatusOK)

	multi := NewMultiAlerter(time.Hour, testLogger(), NewSlackAlerter(slackSrv.URL), NewWebhookAlerter(hookSrv.URL))

	require.NoError(t, multi.Send(context.Background(), testAlert()))
	assert.Equal(t, int32(1), slackHits.Load())
	assert.Equal(t, int32(1), hookHits.Load())
}

func TestMultiAlerter_Cooldown(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK)
	multi := NewMultiAlerter(time.Minute, testLogger(), NewWebhookAlerter(srv.URL))
	now := time.Now()
	multi.now = func() time.Time { return now }

	require.NoError(t, multi.Send(context.Background(), testAlert()))
	require.NoError(t, multi.Send(context.Background(), testAlert()))
	assert.Equal(t, int32(1), hits.Load(), "repeat within cooldown is suppressed")

	other := testAlert()
	other.Indexer = "usdc-ethereum"
	require.NoError(t, multi.Send(context.Background(), other))
	assert.Equal(t, int32(2), hits.Load(), "different indexer has its own cooldown")

	now = now.Add(2 * time.Minute)
	require.NoError(t, multi.Send(context.Background(), testAlert()))
	assert.Equal(t, int32(3), hits.Load())
}

func TestMultiAlerter_PartialFailure(t *testing.T) {
	failSrv, _ := countingServer(t, http.StatusInternalServerError)
	goodSrv, goodHits := countingServer(t, http.StatusOK)

	multi := NewMultiAlerter(time.Hour, testLogger(), NewWebhookAlerter(failSrv.URL), NewWebhookAlerter(goodSrv.URL))

	err := multi.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, int32(1), goodHits.Load())
}

func TestSlackAlerter_Payload(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewSlackAlerter(srv.URL).Send(context.Background(), testAlert()))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	text := payload["text"]
	assert.True(t, strings.HasPrefix(text, ":hourglass:"))
	assert.Contains(t, text, "avalanche/usdc-avalanche")
	assert.Contains(t, text, "Backfill stopped")
	assert.Less(t, strings.Index(text, "*cursor*"), strings.Index(text, "*target*"), "fields are sorted")

	for typ, emoji := range map[AlertType]string{
		AlertTypeUnhealthy:     ":warning:",
		AlertTypeRecovery:      ":white_check_mark:",
		AlertTypeLiveEventDrop: ":rotating_light:",
	} {
		t.Run(fmt.Sprintf("emoji_%s", typ), func(t *testing.T) {
			var b []byte
			s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				b, _ = io.ReadAll(r.Body)
				w.WriteHeader(http.StatusOK)
			}))
			defer s.Close()

			require.NoError(t, NewSlackAlerter(s.URL).Send(context.Background(), Alert{Type: typ, Title: "t"}))
			var p map[string]string
			require.NoError(t, json.Unmarshal(b, &p))
			assert.True(t, strings.HasPrefix(p["text"], emoji), p["text"])
		})
	}
}

func TestWebhookAlerter_Payload(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhookAlerter(srv.URL).Send(context.Background(), testAlert()))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, string(AlertTypeBackfillStalled), payload["type"])
	assert.Equal(t, "avalanche", payload["chain"])
	assert.Equal(t, "usdc-avalanche", payload["indexer"])
	fields, ok := payload["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "5000", fields["target"])

	ts, err := time.Parse(time.RFC3339, payload["time"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts, 5*time.Second)
}

func TestNoopAlerter(t *testing.T) {
	assert.NoError(t, NoopAlerter{}.Send(context.Background(), testAlert()))
}

func TestMultiAlerter_JoinsEveryFailure(t *testing.T) {
	a, _ := countingServer(t, http.StatusBadGateway)
	b, _ := countingServer(t, http.StatusInternalServerError)

	err := NewMultiAlerter(0, testLogger(), NewSlackAlerter(a.URL), NewWebhookAlerter(b.URL)).
		Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack: unexpected status 502")
	assert.Contains(t, err.Error(), "webhook: unexpected status 500")
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "slack", channelName(NewSlackAlerter("http://x")))
	assert.Equal(t, "webhook", channelName(NewWebhookAlerter("http://x")))
	assert.Equal(t, "unknown", channelName(NoopAlerter{}))
}
