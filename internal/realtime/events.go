package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	// EventVisitUpdate signals that visit statistics changed.
	EventVisitUpdate = "visit-update"
	// EventUnreadCounts carries the unread career and connect submission counts.
	EventUnreadCounts = "update-unread-counts"
)

// Engine.IO v4 packet types.
const (
	engineOpen    byte = '0'
	engineClose   byte = '1'
	enginePing    byte = '2'
	enginePong    byte = '3'
	engineMessage byte = '4'
	engineNoop    byte = '6'
)

// Socket.IO v5 packet types carried inside engineMessage.
const (
	socketConnect      byte = '0'
	socketDisconnect   byte = '1'
	socketEvent        byte = '2'
	socketConnectError byte = '4'
)

const (
	engineProtocolVersion  = "4"
	engineTransport        = "websocket"
	defaultSocketPath      = "/socket.io/"
	defaultPingInterval    = 25 * time.Second
	defaultPingTimeout     = 20 * time.Second
	connectNamespacePacket = string(engineMessage) + string(socketConnect)
	pongPacket             = string(enginePong)
)

var (
	// ErrMalformedFrame indicates a push frame that is not a Socket.IO event packet.
	ErrMalformedFrame = errors.New("realtime: malformed frame")
	// ErrInvalidURL indicates a push channel address that cannot be dialed.
	ErrInvalidURL = errors.New("realtime: invalid url")
)

// Event is one event received from the push channel.
type Event struct {
	Name string
	Data json.RawMessage
}

// EndpointURL converts a backend address into the Engine.IO websocket endpoint. A bare host
// gets the default /socket.io/ path; http schemes map to their websocket counterparts.
func EndpointURL(raw string) (string, error) {
	parsed, parseErr := url.Parse(strings.TrimSpace(raw))
	if parseErr != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, parseErr)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = defaultSocketPath
	}
	query := parsed.Query()
	query.Set("EIO", engineProtocolVersion)
	query.Set("transport", engineTransport)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

type openPacket struct {
	SessionID    string `json:"sid"`
	PingInterval int64  `json:"pingInterval"`
	PingTimeout  int64  `json:"pingTimeout"`
}

// liveness is how long the connection may stay silent before the server is considered gone.
func (packet openPacket) liveness() time.Duration {
	interval := time.Duration(packet.PingInterval) * time.Millisecond
	if interval <= 0 {
		interval = defaultPingInterval
	}
	timeout := time.Duration(packet.PingTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	return interval + timeout
}

func decodeOpenPacket(frame []byte) (openPacket, error) {
	var packet openPacket
	if len(frame) == 0 || frame[0] != engineOpen {
		return packet, fmt.Errorf("%w: expected open packet, got %q", ErrMalformedFrame, truncateFrame(frame))
	}
	if decodeErr := json.Unmarshal(frame[1:], &packet); decodeErr != nil {
		return openPacket{}, fmt.Errorf("%w: open packet: %v", ErrMalformedFrame, decodeErr)
	}
	return packet, nil
}

// DecodeEvent parses an Engine.IO message frame carrying a Socket.IO event on the default
// namespace, such as 42["visit-update",{...}].
func DecodeEvent(frame []byte) (Event, error) {
	if len(frame) < 2 || frame[0] != engineMessage || frame[1] != socketEvent {
		return Event{}, fmt.Errorf("%w: not an event packet: %q", ErrMalformedFrame, truncateFrame(frame))
	}
	payload := frame[2:]
	if len(payload) > 0 && payload[0] == '/' {
		separator := bytes.IndexByte(payload, ',')
		if separator < 0 {
			return Event{}, fmt.Errorf("%w: unterminated namespace", ErrMalformedFrame)
		}
		if namespace := string(payload[:separator]); namespace != "/" {
			return Event{}, fmt.Errorf("%w: namespace %q", ErrMalformedFrame, namespace)
		}
		payload = payload[separator+1:]
	}
	for len(payload) > 0 && payload[0] >= '0' && payload[0] <= '9' {
		payload = payload[1:]
	}

	var arguments []json.RawMessage
	if decodeErr := json.Unmarshal(payload, &arguments); decodeErr != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, decodeErr)
	}
	if len(arguments) == 0 {
		return Event{}, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}
	var name string
	if nameErr := json.Unmarshal(arguments[0], &name); nameErr != nil || name == "" {
		return Event{}, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}
	event := Event{Name: name}
	if len(arguments) > 1 {
		event.Data = arguments[1]
	}
	return event, nil
}

// UnreadCounts decodes the payload of an EventUnreadCounts frame.
func (event Event) UnreadCounts() (model.UnreadCounts, error) {
	var counts model.UnreadCounts
	if event.Name != EventUnreadCounts {
		return counts, fmt.Errorf("%w: event %q carries no unread counts", ErrMalformedFrame, event.Name)
	}
	if len(event.Data) == 0 || string(event.Data) == "null" {
		return counts, nil
	}
	if decodeErr := json.Unmarshal(event.Data, &counts); decodeErr != nil {
		return model.UnreadCounts{}, fmt.Errorf("%w: %v", ErrMalformedFrame, decodeErr)
	}
	return counts, nil
}

func truncateFrame(frame []byte) string {
	const limit = 64
	if len(frame) > limit {
		return string(frame[:limit]) + "..."
	}
	return string(frame)
}
