// Package eventbridge provides a client for the server's event stream.
// It maintains a persistent SSE connection, dispatches named events to
// registered handlers, and reconnects with backoff when the stream drops.
package eventbridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives the raw data payload of a named event.
type Handler func(data json.RawMessage)

// Options configures a Bridge.
type Options struct {
	// InitialBackoff is the first reconnect delay. Defaults to 1s.
	InitialBackoff time.Duration
	// MaxBackoff caps the reconnect delay. Defaults to 30s.
	MaxBackoff time.Duration
	// HTTPClient is used for the stream request. Defaults to a client
	// with no timeout, since the stream is long-lived.
	HTTPClient *http.Client
	// Logger receives connection lifecycle events. Defaults to a
	// disabled logger.
	Logger *zerolog.Logger
}

// Bridge subscribes to a server-sent event stream and fans events out to
// handlers registered by name. Handlers survive reconnects.
type Bridge struct {
	url     string
	client  *http.Client
	logger  zerolog.Logger
	initial time.Duration
	max     time.Duration

	mu       sync.RWMutex
	handlers map[string][]Handler

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New creates a Bridge for the given stream URL. The bridge does not
// connect until Start is called.
func New(url string, opts Options) *Bridge {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Bridge{
		url:      url,
		client:   opts.HTTPClient,
		logger:   logger,
		initial:  opts.InitialBackoff,
		max:      opts.MaxBackoff,
		handlers: make(map[string][]Handler),
	}
}

// On registers a handler for a named event. Multiple handlers may be
// registered for the same name; each receives every occurrence.
func (b *Bridge) On(event string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], h)
}

// Start begins consuming the stream. It returns immediately; the
// connection is maintained in the background until Close or until the
// parent context is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return errors.New("bridge already started")
	}
	b.started = true
	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})
	b.mu.Unlock()

	go b.run(ctx)
	return nil
}

// Close stops the bridge and waits for the consumer loop to exit.
func (b *Bridge) Close() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (b *Bridge) run(ctx context.Context) {
	defer close(b.done)

	backoff := b.initial
	for {
		connected, err := b.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = b.initial
		}
		b.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("event stream disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > b.max {
			backoff = b.max
		}
	}
}

// consume opens the stream and dispatches events until the connection
// fails or the context is cancelled. The returned bool reports whether
// a connection was established, so the caller can reset its backoff.
func (b *Bridge) consume(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := b.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %d from event stream", resp.StatusCode)
	}

	b.logger.Info().Str("url", b.url).Msg("event stream connected")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if eventName != "" || data.Len() > 0 {
				b.dispatch(eventName, data.String())
			}
			eventName = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// Comment line, used by the server as a heartbeat.
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return true, err
	}
	return true, errors.New("event stream closed by server")
}

func (b *Bridge) dispatch(event, data string) {
	if event == "" {
		event = "message"
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event]))
	copy(handlers, b.handlers[event])
	b.mu.RUnlock()

	raw := json.RawMessage(data)
	for _, h := range handlers {
		h(raw)
	}
}
