package ragchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

const (
	defaultBaseURL = "http://localhost:8001/api/v1"

	// Endpoint paths relative to the base URL.
	PathChat             = "/chat"
	PathChatClear        = "/chat/clear"
	PathMedicalChat      = "/medical/chat"
	PathMedicalChatClear = "/medical/chat/clear"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent sets the User-Agent header sent with each request.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// Client is the HTTP client for the RAG backend chat API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a new chat API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		userAgent:  "ragagent-client/1.0",
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatResponse is the transport-level outcome of a chat request. Exactly one
// of Stream and Aggregate is set: Stream when the server chose the chunked
// event-stream transport (the caller owns closing it), Aggregate when it
// answered with one complete JSON document.
type ChatResponse struct {
	Stream    io.ReadCloser
	Aggregate *QAResult
}

// Chat posts to the general chat endpoint.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return c.postChat(ctx, PathChat, req)
}

// MedicalChat posts to the domain-specific medical chat endpoint.
func (c *Client) MedicalChat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return c.postChat(ctx, PathMedicalChat, req)
}

// postChat sends the request and sniffs the response content type to decide
// between the streaming and aggregated transports. Whether a given server
// streams is not negotiated by header, so the content type is authoritative.
func (c *Client) postChat(ctx context.Context, path string, req *ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		if apiErr := ParseErrorResponse(resp.StatusCode, respBody); apiErr != nil {
			return nil, apiErr
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		// Chunked event-stream transport; the caller decodes incrementally.
		return &ChatResponse{Stream: resp.Body}, nil
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var envelope QAEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !envelope.OK {
		msg := envelope.Error
		if msg == "" {
			msg = "server rejected the request"
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("response envelope missing data")
	}
	return &ChatResponse{Aggregate: envelope.Data}, nil
}

// ClearChat clears the general-mode conversation history for a session.
func (c *Client) ClearChat(ctx context.Context, sessionID string) (*ClearResponse, error) {
	return c.postClear(ctx, PathChatClear, sessionID)
}

// ClearMedicalChat clears the medical-mode conversation history for a session.
func (c *Client) ClearMedicalChat(ctx context.Context, sessionID string) (*ClearResponse, error) {
	return c.postClear(ctx, PathMedicalChatClear, sessionID)
}

func (c *Client) postClear(ctx context.Context, path, sessionID string) (*ClearResponse, error) {
	body, err := json.Marshal(&ClearRequest{SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if apiErr := ParseErrorResponse(resp.StatusCode, respBody); apiErr != nil {
			return nil, apiErr
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result ClearResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !result.OK {
		msg := result.Error
		if msg == "" {
			msg = "clear rejected"
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return &result, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream, application/json")
	req.Header.Set("User-Agent", c.userAgent)
}
