package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/metrics"
)

const (
	defaultInitialBackoff = time.Second
	defaultMaximumBackoff = 30 * time.Second
	defaultHandshakeLimit = 10 * time.Second
	readLimitBytes        = 1 << 20
)

var (
	// ErrMissingURL indicates a consumer was configured without a push channel address.
	ErrMissingURL = errors.New("realtime: missing url")
	// ErrMissingBroadcaster indicates a consumer has nowhere to deliver events.
	ErrMissingBroadcaster = errors.New("realtime: missing broadcaster")
	// ErrDisconnected indicates the push channel is currently down.
	ErrDisconnected = errors.New("realtime: disconnected")
	// ErrServerClosed indicates the server ended the Engine.IO session or the namespace.
	ErrServerClosed = errors.New("realtime: closed by server")
	// ErrConnectRejected indicates the server refused the namespace connection.
	ErrConnectRejected = errors.New("realtime: connect rejected")
)

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	URL            string
	Header         http.Header
	Broadcaster    *Broadcaster
	Unread         *UnreadTracker
	Metrics        *metrics.Collector
	Logger         *zap.Logger
	Dialer         *websocket.Dialer
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

// Consumer reads the backend Socket.IO push channel and republishes its events. It
// reconnects with exponential backoff until its context ends.
type Consumer struct {
	url            string
	endpoint       string
	header         http.Header
	broadcaster    *Broadcaster
	unread         *UnreadTracker
	metrics        *metrics.Collector
	logger         *zap.Logger
	dialer         *websocket.Dialer
	initialBackoff time.Duration
	maximumBackoff time.Duration
	connected      atomic.Bool
}

// NewConsumer validates configuration and constructs a Consumer.
func NewConsumer(configuration ConsumerConfig) (*Consumer, error) {
	trimmedURL := strings.TrimSpace(configuration.URL)
	if trimmedURL == "" {
		return nil, ErrMissingURL
	}
	endpoint, endpointErr := EndpointURL(trimmedURL)
	if endpointErr != nil {
		return nil, endpointErr
	}
	if configuration.Broadcaster == nil {
		return nil, ErrMissingBroadcaster
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := configuration.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeLimit,
		}
	}
	initialBackoff := configuration.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = defaultInitialBackoff
	}
	maximumBackoff := configuration.MaximumBackoff
	if maximumBackoff < initialBackoff {
		maximumBackoff = defaultMaximumBackoff
		if maximumBackoff < initialBackoff {
			maximumBackoff = initialBackoff
		}
	}
	return &Consumer{
		url:            trimmedURL,
		endpoint:       endpoint,
		header:         configuration.Header,
		broadcaster:    configuration.Broadcaster,
		unread:         configuration.Unread,
		metrics:        configuration.Metrics,
		logger:         logger,
		dialer:         dialer,
		initialBackoff: initialBackoff,
		maximumBackoff: maximumBackoff,
	}, nil
}

// Run consumes the push channel until ctx is cancelled. It returns nil on cancellation.
func (consumer *Consumer) Run(ctx context.Context) error {
	backoff := consumer.initialBackoff
	for {
		connected, sessionErr := consumer.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = consumer.initialBackoff
		}
		consumer.logger.Warn("realtime_disconnected", zap.String("url", consumer.url), zap.Duration("retry_in", backoff), zap.Error(sessionErr))
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff *= 2
		if backoff > consumer.maximumBackoff {
			backoff = consumer.maximumBackoff
		}
	}
}

// Probe reports ErrDisconnected while no push connection is open.
func (consumer *Consumer) Probe(context.Context) error {
	if !consumer.connected.Load() {
		return ErrDisconnected
	}
	return nil
}

// session runs one Engine.IO connection. connected reports whether the Socket.IO namespace
// handshake succeeded.
func (consumer *Consumer) session(ctx context.Context) (connected bool, sessionErr error) {
	connection, _, dialErr := consumer.dialer.DialContext(ctx, consumer.endpoint, consumer.header)
	if dialErr != nil {
		return false, fmt.Errorf("realtime: dial: %w", dialErr)
	}
	defer connection.Close()
	defer consumer.connected.Store(false)
	connection.SetReadLimit(readLimitBytes)

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			_ = connection.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = connection.Close()
		case <-closed:
		}
	}()

	_ = connection.SetReadDeadline(time.Now().Add(defaultHandshakeLimit))
	_, openFrame, openErr := connection.ReadMessage()
	if openErr != nil {
		return false, fmt.Errorf("realtime: read open packet: %w", openErr)
	}
	open, decodeErr := decodeOpenPacket(openFrame)
	if decodeErr != nil {
		return false, decodeErr
	}
	if writeErr := connection.WriteMessage(websocket.TextMessage, []byte(connectNamespacePacket)); writeErr != nil {
		return false, fmt.Errorf("realtime: connect namespace: %w", writeErr)
	}
	liveness := open.liveness()

	for {
		_ = connection.SetReadDeadline(time.Now().Add(liveness))
		messageType, frame, readErr := connection.ReadMessage()
		if readErr != nil {
			return connected, fmt.Errorf("realtime: read: %w", readErr)
		}
		if messageType != websocket.TextMessage || len(frame) == 0 {
			continue
		}
		switch frame[0] {
		case enginePing:
			if writeErr := connection.WriteMessage(websocket.TextMessage, []byte(pongPacket)); writeErr != nil {
				return connected, fmt.Errorf("realtime: pong: %w", writeErr)
			}
		case engineClose:
			return connected, ErrServerClosed
		case engineMessage:
			if len(frame) < 2 {
				continue
			}
			switch frame[1] {
			case socketConnect:
				connected = true
				consumer.connected.Store(true)
				consumer.logger.Info("realtime_connected", zap.String("url", consumer.endpoint), zap.String("sid", open.SessionID))
			case socketDisconnect:
				return connected, ErrServerClosed
			case socketConnectError:
				return connected, fmt.Errorf("%w: %s", ErrConnectRejected, truncateFrame(frame[2:]))
			case socketEvent:
				consumer.dispatch(frame)
			}
		case engineNoop:
		default:
			consumer.logger.Debug("realtime_frame_ignored", zap.String("frame", truncateFrame(frame)))
		}
	}
}

func (consumer *Consumer) dispatch(frame []byte) {
	event, decodeErr := DecodeEvent(frame)
	if decodeErr != nil {
		consumer.logger.Debug("realtime_frame_ignored", zap.Error(decodeErr))
		return
	}
	consumer.metrics.ObserveRealtimeEvent(event.Name)
	if event.Name == EventUnreadCounts && consumer.unread != nil {
		counts, countsErr := event.UnreadCounts()
		if countsErr != nil {
			consumer.logger.Debug("realtime_unread_counts_ignored", zap.Error(countsErr))
			return
		}
		consumer.unread.Apply(counts)
	}
	consumer.broadcaster.Broadcast(event)
}
