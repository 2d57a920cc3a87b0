package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/metrics"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maximumErrorBodyBytes = 64 * 1024

	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
)

var (
	// ErrTransport indicates the backend could not be reached or the exchange was interrupted.
	ErrTransport = errors.New("gateway: transport failure")
	// ErrDecode indicates the backend answered with a body that could not be decoded.
	ErrDecode = errors.New("gateway: decode response")
	// ErrMissingBaseURL indicates the gateway was configured without a backend address.
	ErrMissingBaseURL = errors.New("gateway: missing base url")
	// ErrInvalidBaseURL indicates the configured backend address is not an absolute URL.
	ErrInvalidBaseURL = errors.New("gateway: invalid base url")
)

// StatusError reports a non-2xx backend answer together with the backend message, when one was sent.
type StatusError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (statusError *StatusError) Error() string {
	if statusError.Message == "" {
		return fmt.Sprintf("gateway: %s: status %d", statusError.Operation, statusError.StatusCode)
	}
	return fmt.Sprintf("gateway: %s: status %d: %s", statusError.Operation, statusError.StatusCode, statusError.Message)
}

// BackendMessage extracts the backend-supplied message from err, or returns fallback.
func BackendMessage(err error, fallback string) string {
	var statusError *StatusError
	if errors.As(err, &statusError) && strings.TrimSpace(statusError.Message) != "" {
		return statusError.Message
	}
	return fallback
}

// Config captures gateway construction parameters.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Metrics    *metrics.Collector
	Logger     *zap.Logger
}

// Client is the typed HTTP client for the CMS backend.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// New validates configuration and constructs a Client.
func New(configuration Config) (*Client, error) {
	trimmedBaseURL := strings.TrimSpace(configuration.BaseURL)
	if trimmedBaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	parsedBaseURL, parseErr := url.Parse(trimmedBaseURL)
	if parseErr != nil || parsedBaseURL.Scheme == "" || parsedBaseURL.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBaseURL, trimmedBaseURL)
	}
	if !strings.HasSuffix(parsedBaseURL.Path, "/") {
		parsedBaseURL.Path += "/"
	}

	httpClient := configuration.HTTPClient
	if httpClient == nil {
		timeout := configuration.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    parsedBaseURL,
		httpClient: httpClient,
		metrics:    configuration.Metrics,
		logger:     logger,
	}, nil
}

// BaseURL returns the normalized backend address.
func (client *Client) BaseURL() string {
	return client.baseURL.String()
}

type requestSpec struct {
	operation     string
	method        string
	path          string
	query         url.Values
	body          io.Reader
	contentType   string
	contentLength int64
}

func (client *Client) resolve(path string, query url.Values) string {
	relative := &url.URL{Path: strings.TrimPrefix(path, "/")}
	resolved := client.baseURL.ResolveReference(relative)
	if len(query) > 0 {
		resolved.RawQuery = query.Encode()
	}
	return resolved.String()
}

// execute issues the request and returns the raw body of a 2xx answer.
func (client *Client) execute(ctx context.Context, call requestSpec) (responseBody []byte, callErr error) {
	startedAt := time.Now()
	defer func() {
		client.metrics.ObserveGatewayCall(call.operation, time.Since(startedAt), callErr)
		if callErr != nil {
			client.logger.Debug("gateway_call_failed", zap.String("operation", call.operation), zap.Error(callErr))
		}
	}()

	request, requestErr := http.NewRequestWithContext(ctx, call.method, client.resolve(call.path, call.query), call.body)
	if requestErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, call.operation, requestErr)
	}
	request.Header.Set(headerAccept, contentTypeJSON)
	if call.contentType != "" {
		request.Header.Set(headerContentType, call.contentType)
	}
	if call.contentLength > 0 {
		request.ContentLength = call.contentLength
	}

	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, call.operation, doErr)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		errorBody, _ := io.ReadAll(io.LimitReader(response.Body, maximumErrorBodyBytes))
		return nil, &StatusError{
			Operation:  call.operation,
			StatusCode: response.StatusCode,
			Message:    extractBackendMessage(errorBody),
		}
	}

	body, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, call.operation, readErr)
	}
	return body, nil
}

func (client *Client) executeJSON(ctx context.Context, call requestSpec, payload any, target any) error {
	if payload != nil {
		encoded, encodeErr := json.Marshal(payload)
		if encodeErr != nil {
			return fmt.Errorf("gateway: %s: encode request: %w", call.operation, encodeErr)
		}
		call.body = bytes.NewReader(encoded)
		call.contentType = contentTypeJSON
	}
	body, executeErr := client.execute(ctx, call)
	if executeErr != nil {
		return executeErr
	}
	return decodeInto(call.operation, body, target)
}

func (client *Client) executeMultipart(ctx context.Context, call requestSpec, payload *Payload, target any) error {
	if payload == nil {
		payload = NewPayload()
	}
	body, contentLength, contentType, encodeErr := payload.encode()
	if encodeErr != nil {
		return encodeErr
	}
	call.body = body
	call.contentType = contentType
	call.contentLength = contentLength
	responseBody, executeErr := client.execute(ctx, call)
	if executeErr != nil {
		return executeErr
	}
	return decodeInto(call.operation, responseBody, target)
}

func decodeInto(operation string, body []byte, target any) error {
	if target == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if decodeErr := json.Unmarshal(body, target); decodeErr != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, operation, decodeErr)
	}
	return nil
}

type backendMessageEnvelope struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func extractBackendMessage(body []byte) string {
	var envelope backendMessageEnvelope
	if json.Unmarshal(body, &envelope) != nil {
		return ""
	}
	if strings.TrimSpace(envelope.Error) != "" {
		return strings.TrimSpace(envelope.Error)
	}
	return strings.TrimSpace(envelope.Message)
}

// MessageResponse is the acknowledgement body most mutating backend endpoints return.
type MessageResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}
