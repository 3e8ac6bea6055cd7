// Package transport opens the byte stream a reply is assembled from.
//
// Client posts the full conversation and letter context to the chat endpoint
// and hands back the response body once the endpoint accepts the request:
//
//	capsule --> POST /future-chat --> chat endpoint
//	capsule <-- text/event-stream <-- chat endpoint
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/capsule/pkg/llm"
	"github.com/papercomputeco/capsule/pkg/logger"
)

const (
	defaultTimeout = 30 * time.Second

	// fallbackMessage is used when an error body has no "error" field.
	fallbackMessage = "Failed to connect"

	// unreadableMessage is used when an error body is not JSON at all.
	unreadableMessage = "Something went wrong"

	maxErrorBody = 64 << 10
)

// ErrNoEndpoint is returned by NewClient when no endpoint is configured.
var ErrNoEndpoint = errors.New("chat endpoint is not configured")

// ErrNoBody is returned when the endpoint accepted the request but sent no
// response stream.
var ErrNoBody = errors.New("No response stream")

// Initiator issues one chat request and returns the readable response stream.
// The caller closes the stream.
type Initiator interface {
	Open(ctx context.Context, req *llm.ChatRequest) (io.ReadCloser, error)
}

// StatusError is returned when the endpoint answers with a non-success status.
// Error returns the user-facing message only; StatusCode is kept for logging.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return e.Message
}

// Config is the chat transport configuration.
type Config struct {
	// Endpoint is the full URL of the streaming chat function.
	Endpoint string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Headers are extra request headers. Hop-by-hop headers and the
	// headers the client manages itself are ignored.
	Headers map[string]string

	// Timeout bounds connecting and waiting for response headers. The body
	// itself may stream for as long as the endpoint keeps it open.
	Timeout time.Duration

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client

	// Logger is the provided logger, defaults to a no-op logger.
	Logger *slog.Logger
}

// Client is the HTTP Initiator.
type Client struct {
	endpoint string
	apiKey   string
	headers  http.Header
	http     *http.Client
	logger   *slog.Logger
}

// NewClient builds a Client from c.
func NewClient(c *Config) (*Client, error) {
	if strings.TrimSpace(c.Endpoint) == "" {
		return nil, ErrNoEndpoint
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ForceAttemptHTTP2:     true,
			},
		}
	}

	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		endpoint: c.Endpoint,
		apiKey:   c.APIKey,
		headers:  extraHeaders(c.Headers),
		http:     httpClient,
		logger:   log,
	}, nil
}

// Open posts req and returns the response stream. A non-success status is
// reported as a *StatusError carrying the endpoint's error message.
func (c *Client) Open(ctx context.Context, req *llm.ChatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("could not encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create chat request: %w", err)
	}
	c.setRequestHeaders(httpReq)

	c.logger.Debug("opening chat stream",
		"url", c.endpoint,
		"messages", len(req.Messages),
		"letter", !req.LetterContext.IsEmpty(),
	)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		serr := statusError(resp)
		c.logger.Error("chat endpoint returned error",
			"status", serr.StatusCode,
			"message", serr.Message,
		)
		return nil, serr
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, ErrNoBody
	}

	c.logger.Debug("chat stream opened",
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
	)
	return resp.Body, nil
}

// statusError reads the JSON error body of a failed response.
func statusError(resp *http.Response) *StatusError {
	serr := &StatusError{StatusCode: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		serr.Message = unreadableMessage
		return serr
	}

	var body llm.ErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		serr.Message = unreadableMessage
		return serr
	}

	serr.Message = strings.TrimSpace(body.Error)
	if serr.Message == "" {
		serr.Message = fallbackMessage
	}
	return serr
}
