package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensorstream/broker"
	"github.com/c360/sensorstream/pkg/retry"
	"github.com/c360/sensorstream/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// capturingServer records POSTed alert payloads.
type capturingServer struct {
	*httptest.Server

	mu       sync.Mutex
	payloads []map[string]any
	status   int
	failures int
}

func newCapturingServer(t *testing.T) *capturingServer {
	s := &capturingServer{status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.failures > 0 {
			s.failures--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
			s.payloads = append(s.payloads, payload)
		}
		w.WriteHeader(s.status)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *capturingServer) received() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.payloads))
	copy(out, s.payloads)
	return out
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}
}

func startNotifier(t *testing.T, cfg Config, source Source) *Notifier {
	t.Helper()
	n := New(cfg, source, testLogger())
	require.NoError(t, n.Initialize())
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() { _ = n.Stop(2 * time.Second) })
	return n
}

func alertFrame(id string, state types.AlertState) types.Frame {
	return types.NewAlertFrame(types.Alert{
		ID:       id,
		SensorID: "s1",
		Rule:     types.RuleRangeExceeded,
		Severity: types.SeverityCritical,
		State:    state,
	})
}

func TestDeliversAlertFrames(t *testing.T) {
	server := newCapturingServer(t)
	source := broker.New(testLogger())
	defer source.Close()

	cfg := Config{URL: server.URL, Retry: fastRetry()}
	n := startNotifier(t, cfg, source)

	source.Publish(alertFrame("a1", types.AlertOpen))

	assert.Eventually(t, func() bool { return n.AlertsSent() == 1 },
		2*time.Second, 10*time.Millisecond)

	payloads := server.received()
	require.Len(t, payloads, 1)
	assert.Equal(t, "alert", payloads[0]["type"])
	assert.Equal(t, "a1", payloads[0]["alertId"])
	assert.Equal(t, "open", payloads[0]["state"])
}

func TestIgnoresReadingFrames(t *testing.T) {
	server := newCapturingServer(t)
	source := broker.New(testLogger())
	defer source.Close()

	cfg := Config{URL: server.URL, Retry: fastRetry()}
	n := startNotifier(t, cfg, source)

	source.Publish(types.NewReadingFrame(types.Reading{SensorID: "s1", Value: 20, Timestamp: time.Now()}))
	source.Publish(alertFrame("a1", types.AlertOpen))

	assert.Eventually(t, func() bool { return n.AlertsSent() == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Len(t, server.received(), 1)
}

func TestRetriesTransientServerErrors(t *testing.T) {
	server := newCapturingServer(t)
	server.failures = 2

	source := broker.New(testLogger())
	defer source.Close()

	cfg := Config{URL: server.URL, Retry: fastRetry()}
	n := startNotifier(t, cfg, source)

	source.Publish(alertFrame("a1", types.AlertOpen))

	assert.Eventually(t, func() bool { return n.AlertsSent() == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Len(t, server.received(), 1)
}

func TestClientErrorIsNotRetried(t *testing.T) {
	server := newCapturingServer(t)
	server.status = http.StatusBadRequest

	source := broker.New(testLogger())
	defer source.Close()

	cfg := Config{URL: server.URL, Retry: fastRetry()}
	n := startNotifier(t, cfg, source)

	source.Publish(alertFrame("a1", types.AlertOpen))

	assert.Eventually(t, func() bool { return n.deliveryErrs.Load() == 1 },
		2*time.Second, 10*time.Millisecond)
	// One request only: the 400 stopped the retry loop.
	assert.Len(t, server.received(), 1)
	assert.Zero(t, n.AlertsSent())
}

func TestCustomHeadersAreSent(t *testing.T) {
	gotAuth := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	source := broker.New(testLogger())
	defer source.Close()

	cfg := Config{
		URL:     server.URL,
		Headers: map[string]string{"Authorization": "Bearer token-123"},
		Retry:   fastRetry(),
	}
	startNotifier(t, cfg, source)

	source.Publish(alertFrame("a1", types.AlertOpen))

	select {
	case auth := <-gotAuth:
		assert.Equal(t, "Bearer token-123", auth)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook request never arrived")
	}
}

func TestInitializeValidation(t *testing.T) {
	source := broker.New(testLogger())
	defer source.Close()

	require.Error(t, New(Config{URL: "http://example.com/hook"}, nil, testLogger()).Initialize())
	require.Error(t, New(Config{URL: ""}, source, testLogger()).Initialize())
	require.Error(t, New(Config{URL: "not a url"}, source, testLogger()).Initialize())
	require.Error(t, New(Config{URL: "ftp://example.com"}, source, testLogger()).Initialize())
	require.NoError(t, New(Config{URL: "https://example.com/hook"}, source, testLogger()).Initialize())
}

func TestStopBeforeStartIsNoOp(t *testing.T) {
	source := broker.New(testLogger())
	defer source.Close()

	n := New(Config{URL: "http://example.com/hook"}, source, testLogger())
	require.NoError(t, n.Initialize())
	require.NoError(t, n.Stop(time.Second))
}
