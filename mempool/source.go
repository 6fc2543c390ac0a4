package mempool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/r3labs/sse/v2"
	"gopkg.in/cenkalti/backoff.v1"
)

// Source opens sessions against a push feed.
type Source interface {
	Connect(ctx context.Context) (Session, error)
}

// Session yields raw event payloads until the connection drops.
type Session interface {
	Next() ([]byte, error)
	Close() error
}

// SSESource reads a text/event-stream feed such as MEV-Share's. Each Connect
// opens one subscription; the id of the last event seen is sent as
// Last-Event-ID on the next one so the server can resume.
type SSESource struct {
	URL    string
	Client *http.Client

	mu          sync.Mutex
	lastEventID string
}

// NewSSESource creates an SSE source. The HTTP client has no overall timeout
// since the stream is long-lived.
func NewSSESource(url string) *SSESource {
	return &SSESource{URL: url, Client: &http.Client{}}
}

func (s *SSESource) Connect(ctx context.Context) (Session, error) {
	client := sse.NewClient(s.URL)
	client.Connection = s.Client
	// Stream owns reconnects for every transport.
	client.ReconnectStrategy = &backoff.StopBackOff{}
	if client.Headers == nil {
		client.Headers = make(map[string]string)
	}
	if id := s.LastEventID(); id != "" {
		client.Headers["Last-Event-ID"] = id
	}

	connected := make(chan struct{})
	client.ResponseValidator = func(c *sse.Client, resp *http.Response) error {
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("event stream returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		close(connected)
		return nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	session := &sseSession{
		data:   make(chan []byte),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		err := client.SubscribeRawWithContext(subCtx, func(msg *sse.Event) {
			if len(msg.ID) > 0 {
				s.setLastEventID(string(msg.ID))
			}
			if len(msg.Data) == 0 {
				return
			}
			data := append([]byte(nil), msg.Data...)
			select {
			case session.data <- data:
			case <-subCtx.Done():
			}
		})
		if err == nil {
			err = io.EOF
		}
		session.err = err
		close(session.done)
	}()

	select {
	case <-connected:
		return session, nil
	case <-session.done:
		cancel()
		return nil, fmt.Errorf("failed to connect to event stream: %w", session.err)
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}

// LastEventID returns the id of the most recent event that carried one.
func (s *SSESource) LastEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventID
}

func (s *SSESource) setLastEventID(id string) {
	s.mu.Lock()
	s.lastEventID = id
	s.mu.Unlock()
}

// sseSession hands event data from the subscription goroutine to Next. The
// subscription blocks until Next takes each event.
type sseSession struct {
	data   chan []byte
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

func (s *sseSession) Next() ([]byte, error) {
	select {
	case data := <-s.data:
		return data, nil
	case <-s.done:
		return nil, s.err
	}
}

func (s *sseSession) Close() error {
	s.cancel()
	return nil
}

// WebSocketSource reads a websocket feed where each text message is one event.
type WebSocketSource struct {
	URL    string
	Dialer *websocket.Dialer
}

// NewWebSocketSource creates a websocket source
func NewWebSocketSource(url string) *WebSocketSource {
	return &WebSocketSource{
		URL: url,
		Dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
			ReadBufferSize:   1024 * 16,
			WriteBufferSize:  1024 * 16,
		},
	}
}

func (w *WebSocketSource) Connect(ctx context.Context) (Session, error) {
	conn, _, err := w.Dialer.DialContext(ctx, w.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}
	return &wsSession{conn: conn}, nil
}

type wsSession struct {
	conn *websocket.Conn
}

func (s *wsSession) Next() ([]byte, error) {
	for {
		kind, msg, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage {
			return msg, nil
		}
	}
}

func (s *wsSession) Close() error {
	return s.conn.Close()
}
