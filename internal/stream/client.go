// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// CLIENT CONSTANTS
// =============================================================================

const (
	// DefaultBaseURL is the base URL for the OpenRouter API.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultMaxRetries is the default number of attempts for opening a
	// stream. Retries apply to the connection phase only; a stream that
	// fails mid-flight surfaces an ErrorEvent instead.
	DefaultMaxRetries = 3

	// DefaultRequestsPerMinute is the default client-side rate limit.
	DefaultRequestsPerMinute = 30

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// eventBufferSize is the channel buffer for emitted events.
	eventBufferSize = 64
)

// sharedStreamingClient is used for all streaming requests. No client
// timeout is set; lifetime is controlled via the request context.
// Connection pooling reduces TCP handshake overhead across requests.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// =============================================================================
// CLIENT
// =============================================================================

// Config holds the streaming client configuration.
type Config struct {
	// APIKey is the OpenRouter API key.
	APIKey string

	// BaseURL overrides DefaultBaseURL when non-empty.
	BaseURL string

	// MaxRetries overrides DefaultMaxRetries when > 0.
	MaxRetries int

	// RequestsPerMinute overrides DefaultRequestsPerMinute when > 0.
	RequestsPerMinute int
}

// Client streams chat completions from OpenRouter.
//
// A Client is safe for concurrent use; multiple chats may hold independent
// streams open at the same time. Requests share one connection pool and one
// client-side rate limiter.
type Client struct {
	apiKey     string
	baseURL    string
	maxRetries int
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewClient creates a streaming client from the given configuration.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = DefaultRequestsPerMinute
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		maxRetries: maxRetries,
		limiter:    rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		httpClient: sharedStreamingClient,
	}
}

// IsConfigured reports whether an API key is set. Requests on an
// unconfigured client fail with ErrNotConfigured.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// chatPayload is the request body for the chat completions endpoint.
type chatPayload struct {
	Model     string           `json:"model"`
	Messages  []Message        `json:"messages"`
	Stream    bool             `json:"stream"`
	MaxTokens int              `json:"max_tokens,omitempty"`
	Usage     *usagePayload    `json:"usage,omitempty"`
	Reasoning *reasoningConfig `json:"reasoning,omitempty"`
	Plugins   []pluginConfig   `json:"plugins,omitempty"`
}

type usagePayload struct {
	Include bool `json:"include"`
}

type reasoningConfig struct {
	Enabled bool `json:"enabled"`
}

type pluginConfig struct {
	ID         string `json:"id"`
	MaxResults int    `json:"max_results,omitempty"`
}

// streamChunk is one SSE data payload from OpenRouter.
type streamChunk struct {
	ID      string `json:"id"`
	Choices []struct {
		Delta struct {
			Content     string       `json:"content"`
			Reasoning   string       `json:"reasoning"`
			Annotations []annotation `json:"annotations"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chunkUsage `json:"usage"`
	Error *apiError   `json:"error"`
}

type annotation struct {
	Type        string `json:"type"`
	URLCitation struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"url_citation"`
}

type chunkUsage struct {
	PromptTokens            int `json:"prompt_tokens"`
	CompletionTokens        int `json:"completion_tokens"`
	TotalTokens             int `json:"total_tokens"`
	CompletionTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details"`
}

type apiError struct {
	Code    json.Number `json:"code"`
	Message string      `json:"message"`
}

// apiErrorResponse is the non-streaming error body shape.
type apiErrorResponse struct {
	Error apiError `json:"error"`
}

// =============================================================================
// STREAMING
// =============================================================================

// Stream validates the request, opens the completion stream and returns the
// event channel. Validation and connection failures are returned
// synchronously; once the channel is live it delivers incremental events and
// closes after a terminal EndEvent or ErrorEvent.
//
// Cancelling ctx stops event production promptly and releases the
// connection; already-delivered events remain final. No terminal event is
// guaranteed after cancellation.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.openStream(ctx, req)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, eventBufferSize)
	go c.consumeStream(ctx, resp.Body, events)

	return events, nil
}

// openStream sends the streaming HTTP request, retrying connection-phase
// failures with exponential backoff. 4xx responses are not retried.
func (c *Client) openStream(ctx context.Context, req Request) (*http.Response, error) {
	body, err := json.Marshal(c.buildPayload(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(httpReq)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		err = handleErrorResponse(resp.StatusCode, respBody)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// buildPayload converts a Request into the OpenRouter wire format.
func (c *Client) buildPayload(req Request) chatPayload {
	messages := make([]Message, 0, len(req.Messages)+1)
	messages = append(messages, Message{Role: "system", Content: req.systemMessage()})
	messages = append(messages, req.Messages...)

	payload := chatPayload{
		Model:     req.ModelID,
		Messages:  messages,
		Stream:    true,
		MaxTokens: req.MaxOutputTokens,
		Usage:     &usagePayload{Include: true},
	}

	if req.Options.Reasoning.IsEnabled {
		payload.Reasoning = &reasoningConfig{Enabled: true}
	}

	if req.Options.Search.IsEnabled {
		maxResults := req.Options.Search.MaxResults
		if maxResults == 0 {
			maxResults = DefaultSearchResults
		}
		payload.Plugins = []pluginConfig{{ID: "web", MaxResults: maxResults}}
	}

	return payload
}

// setHeaders sets the authentication and SSE headers on a request.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
}

// consumeStream reads SSE chunks from body and emits typed events on out.
// It owns both body and out: body is closed and out closed on all paths.
func (c *Client) consumeStream(ctx context.Context, body io.ReadCloser, out chan<- Event) {
	defer close(out)
	defer body.Close()

	reader := NewSSEReader(body)

	var (
		usage          TokenUsage
		sourceURLs     []string
		seenURLs       = make(map[string]bool)
		reasoningStart time.Time
		reasonedFor    time.Duration
		failed         bool
	)

	emit := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	finish := func() {
		if failed {
			return
		}
		emit(EndEvent{
			ReasonedFor: reasonedFor,
			Usage:       usage,
			SourceURLs:  sourceURLs,
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				finish()
				return
			}
			if ctx.Err() != nil {
				return
			}
			emit(ErrorEvent{Message: fmt.Sprintf("stream read failed: %v", err)})
			return
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			finish()
			return
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			// Skip malformed chunks rather than abort the stream.
			continue
		}

		if chunk.Error != nil && chunk.Error.Message != "" {
			failed = true
			emit(ErrorEvent{Message: chunk.Error.Message})
			return
		}

		if chunk.Usage != nil {
			usage = TokenUsage{
				Input:     chunk.Usage.PromptTokens,
				Output:    chunk.Usage.CompletionTokens,
				Reasoning: chunk.Usage.CompletionTokensDetails.ReasoningTokens,
				Total:     chunk.Usage.TotalTokens,
			}
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		for _, ann := range delta.Annotations {
			if ann.Type != "url_citation" || ann.URLCitation.URL == "" {
				continue
			}
			if !seenURLs[ann.URLCitation.URL] {
				seenURLs[ann.URLCitation.URL] = true
				sourceURLs = append(sourceURLs, ann.URLCitation.URL)
			}
		}

		if delta.Reasoning != "" {
			if reasoningStart.IsZero() {
				reasoningStart = time.Now()
			}
			if !emit(ReasoningEvent{Value: delta.Reasoning}) {
				return
			}
		}

		if delta.Content != "" {
			if !reasoningStart.IsZero() && reasonedFor == 0 {
				reasonedFor = time.Since(reasoningStart)
			}
			if !emit(TextEvent{Value: delta.Content}) {
				return
			}
		}
	}
}

// =============================================================================
// ERROR HANDLING
// =============================================================================

// handleErrorResponse converts HTTP error responses to appropriate Go errors.
func handleErrorResponse(statusCode int, body []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		provErr := &ProviderError{
			Code:    apiErr.Error.Code.String(),
			Message: apiErr.Error.Message,
			Status:  statusCode,
		}

		switch statusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrAuthFailed, provErr.Message)
		case http.StatusPaymentRequired:
			return fmt.Errorf("%w: %s", ErrInsufficientCredits, provErr.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrModelNotFound, provErr.Message)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrRateLimited, provErr.Message)
		default:
			return provErr
		}
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return ErrAuthFailed
	case http.StatusPaymentRequired:
		return ErrInsufficientCredits
	case http.StatusNotFound:
		return ErrModelNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return &ProviderError{
			Message: string(body),
			Status:  statusCode,
		}
	}
}

// calculateBackoff returns the delay before the next connection attempt.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
