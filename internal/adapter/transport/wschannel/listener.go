package wschannel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/osk/fintrack/internal/domain"
)

// MessageHandler consumes ack and nack frames from the stream.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg domain.SyncMessage) error
}

// Listener maintains a websocket connection to the backend's sync stream and
// dispatches each frame to the handler. Push responses may arrive on this
// channel instead of the push HTTP response, so the queue treats both paths
// identically.
type Listener struct {
	url      string
	tenantID string
	handler  MessageHandler
	logger   *slog.Logger
	dialer   *websocket.Dialer

	maxInterval time.Duration
}

// Config wires a Listener.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://host/sync/stream.
	URL      string
	TenantID string
	Handler  MessageHandler
	Logger   *slog.Logger
	// MaxReconnectInterval caps the backoff between dial attempts.
	MaxReconnectInterval time.Duration
}

// NewListener creates a new Listener.
func NewListener(cfg Config) *Listener {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxReconnectInterval <= 0 {
		cfg.MaxReconnectInterval = 30 * time.Second
	}
	return &Listener{
		url:         cfg.URL,
		tenantID:    cfg.TenantID,
		handler:     cfg.Handler,
		logger:      cfg.Logger,
		dialer:      websocket.DefaultDialer,
		maxInterval: cfg.MaxReconnectInterval,
	}
}

// Run connects and consumes frames until the context is cancelled,
// redialling with exponential backoff after connection loss. A connection
// that delivered at least one frame resets the backoff.
func (l *Listener) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = l.maxInterval
	b.MaxElapsedTime = 0

	for {
		if gotFrame := l.connect(ctx); gotFrame {
			b.Reset()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := b.NextBackOff()
		streamReconnects.Inc()
		l.logger.Debug("sync stream reconnecting", "wait", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// connect dials once and consumes frames until the connection drops. It
// reports whether at least one frame arrived.
func (l *Listener) connect(ctx context.Context) bool {
	endpoint := fmt.Sprintf("%s?tenantId=%s", l.url, url.QueryEscape(l.tenantID))

	conn, _, err := l.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		l.logger.Warn("sync stream dial failed", "error", err)
		return false
	}
	defer conn.Close()

	streamConnects.Inc()
	l.logger.Info("sync stream connected", "url", l.url)

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	gotFrame := false
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.logger.Warn("sync stream read failed", "error", err)
			}
			return gotFrame
		}

		gotFrame = true
		l.dispatch(ctx, raw)
	}
}

func (l *Listener) dispatch(ctx context.Context, raw []byte) {
	var msg domain.SyncMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		l.logger.Warn("dropping malformed sync frame", "error", err)
		return
	}

	streamFrames.WithLabelValues(string(msg.Type)).Inc()

	switch msg.Type {
	case domain.MessageTypeAck, domain.MessageTypeNack:
		if err := l.handler.HandleMessage(ctx, msg); err != nil {
			l.logger.Error("sync frame handling failed",
				"type", msg.Type,
				"queue_id", msg.ID,
				"error", err)
		}
	default:
		l.logger.Debug("ignoring unknown sync frame type", "type", msg.Type)
	}
}
