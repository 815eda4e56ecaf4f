package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamServer serves a fixed set of SSE frames, then blocks until the
// client disconnects.
func streamServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)

		for _, frame := range frames {
			fmt.Fprint(w, frame)
			flusher.Flush()
		}

		<-r.Context().Done()
	}))
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestBridgeDispatchesNamedEvents(t *testing.T) {
	srv := streamServer(t, []string{
		"event: connected\ndata: {}\n\n",
		"event: asset:updated\ndata: {\"id\":\"a1\",\"status\":\"ready\"}\n\n",
	})
	defer srv.Close()

	bridge := New(srv.URL, Options{})

	var connected atomic.Bool
	var payload atomic.Value
	bridge.On("connected", func(data json.RawMessage) {
		connected.Store(true)
	})
	bridge.On("asset:updated", func(data json.RawMessage) {
		var body struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(data, &body); err == nil {
			payload.Store(body.ID + "/" + body.Status)
		}
	})

	require.NoError(t, bridge.Start(context.Background()))
	defer bridge.Close()

	waitFor(t, connected.Load, "connected event not received")
	waitFor(t, func() bool { return payload.Load() != nil }, "asset:updated event not received")
	assert.Equal(t, "a1/ready", payload.Load())
}

func TestBridgeMultipleHandlersPerEvent(t *testing.T) {
	srv := streamServer(t, []string{
		"event: asset:status:ready\ndata: {\"id\":\"a1\"}\n\n",
	})
	defer srv.Close()

	bridge := New(srv.URL, Options{})

	var first, second atomic.Bool
	bridge.On("asset:status:ready", func(json.RawMessage) { first.Store(true) })
	bridge.On("asset:status:ready", func(json.RawMessage) { second.Store(true) })

	require.NoError(t, bridge.Start(context.Background()))
	defer bridge.Close()

	waitFor(t, func() bool { return first.Load() && second.Load() }, "both handlers should fire")
}

func TestBridgeIgnoresHeartbeatComments(t *testing.T) {
	srv := streamServer(t, []string{
		": keepalive\n\n",
		"event: connected\ndata: {}\n\n",
	})
	defer srv.Close()

	bridge := New(srv.URL, Options{})

	var connected atomic.Bool
	bridge.On("connected", func(json.RawMessage) { connected.Store(true) })

	require.NoError(t, bridge.Start(context.Background()))
	defer bridge.Close()

	waitFor(t, connected.Load, "connected event not received")
}

func TestBridgeReconnectsAfterDisconnect(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := conns.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		fmt.Fprintf(w, "event: connected\ndata: {\"conn\":%d}\n\n", n)
		flusher.Flush()

		if n == 1 {
			// Drop the first connection immediately.
			return
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	bridge := New(srv.URL, Options{
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	})

	var received atomic.Int32
	bridge.On("connected", func(json.RawMessage) { received.Add(1) })

	require.NoError(t, bridge.Start(context.Background()))
	defer bridge.Close()

	waitFor(t, func() bool { return received.Load() >= 2 }, "bridge should reconnect after disconnect")
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
}

func TestBridgeHandlersSurviveReconnect(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := conns.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		if n == 1 {
			return
		}
		fmt.Fprint(w, "event: asset:updated\ndata: {\"id\":\"a9\"}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	bridge := New(srv.URL, Options{InitialBackoff: 10 * time.Millisecond})

	var got atomic.Bool
	bridge.On("asset:updated", func(json.RawMessage) { got.Store(true) })

	require.NoError(t, bridge.Start(context.Background()))
	defer bridge.Close()

	waitFor(t, got.Load, "handler registered before first connection should fire on second")
}

// countingTransport counts connection attempts on the client side, so the
// count is in sync with the bridge's own loop rather than with the server
// goroutine.
type countingTransport struct {
	attempts atomic.Int32
	base     http.RoundTripper
}

func (ct *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ct.attempts.Add(1)
	return ct.base.RoundTrip(req)
}

func TestBridgeCloseStopsReconnecting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Refuse to stream; every attempt fails fast.
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	transport := &countingTransport{base: http.DefaultTransport}
	bridge := New(srv.URL, Options{
		InitialBackoff: 5 * time.Millisecond,
		HTTPClient:     &http.Client{Transport: transport},
	})
	require.NoError(t, bridge.Start(context.Background()))

	waitFor(t, func() bool { return transport.attempts.Load() >= 1 }, "bridge should attempt to connect")
	bridge.Close()

	// Close waits for the consumer loop, so any in-flight attempt has
	// already been counted by the time it returns.
	settled := transport.attempts.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, transport.attempts.Load(), "no connection attempts after Close")
}

func TestBridgeStartTwice(t *testing.T) {
	srv := streamServer(t, nil)
	defer srv.Close()

	bridge := New(srv.URL, Options{})
	require.NoError(t, bridge.Start(context.Background()))
	defer bridge.Close()

	assert.Error(t, bridge.Start(context.Background()))
}
