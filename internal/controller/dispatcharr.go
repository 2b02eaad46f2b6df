package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Dispatcharr API endpoint paths.
const (
	dispatcharrPathToken      = "/api/accounts/token/"
	dispatcharrPathStatus     = "/proxy/ts/status"
	dispatcharrPathNextStream = "/proxy/ts/next_stream/"
	dispatcharrPathStream     = "/proxy/ts/stream/"

	dispatcharrStateActive = "active"
)

// DispatcharrClient talks to a Dispatcharr instance. Authentication is
// optional: without credentials all requests go out unauthenticated, which
// works on instances that do not protect the proxy endpoints.
type DispatcharrClient struct {
	baseURL string
	opts    clientOptions

	mu    sync.Mutex
	token string
}

// NewDispatcharrClient creates a client for a Dispatcharr controller.
func NewDispatcharrClient(baseURL string, opts ...Option) *DispatcharrClient {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &DispatcharrClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		opts:    o,
	}
}

type dispatcharrStatus struct {
	Channels []dispatcharrChannel `json:"channels"`
}

type dispatcharrChannel struct {
	ChannelID  flexString          `json:"channel_id"`
	StreamName string              `json:"stream_name"`
	State      string              `json:"state"`
	Clients    []dispatcharrViewer `json:"clients"`
}

type dispatcharrViewer struct {
	UserAgent string `json:"user_agent"`
}

type dispatcharrTokens struct {
	Access string `json:"access"`
}

// ActiveChannels returns the channels Dispatcharr reports as actively
// streaming. Channels in any other state are skipped.
func (c *DispatcharrClient) ActiveChannels(ctx context.Context) ([]Channel, error) {
	var status dispatcharrStatus
	if err := c.doAuthenticated(ctx, http.MethodGet, c.baseURL+dispatcharrPathStatus, nil, &status); err != nil {
		return nil, fmt.Errorf("fetching channel status: %w", err)
	}

	channels := make([]Channel, 0, len(status.Channels))
	for _, ch := range status.Channels {
		if ch.State != dispatcharrStateActive || ch.ChannelID == "" {
			continue
		}
		clients := make([]string, 0, len(ch.Clients))
		for _, viewer := range ch.Clients {
			clients = append(clients, viewer.UserAgent)
		}
		name := ch.StreamName
		if name == "" {
			name = "Unknown Name"
		}
		channels = append(channels, Channel{
			ID:        ch.ChannelID.String(),
			Name:      name,
			SourceRef: ch.StreamName,
			Clients:   clients,
		})
	}
	return channels, nil
}

// NextStream asks Dispatcharr to advance the channel to its next stream.
func (c *DispatcharrClient) NextStream(ctx context.Context, channelID string) error {
	url := c.baseURL + dispatcharrPathNextStream + channelID
	if err := c.doAuthenticated(ctx, http.MethodPost, url, nil, nil); err != nil {
		return fmt.Errorf("switching channel %s: %w", channelID, err)
	}
	return nil
}

// WatchURL returns the TS proxy URL for the channel.
func (c *DispatcharrClient) WatchURL(channelID string) string {
	return c.baseURL + dispatcharrPathStream + channelID
}

// doAuthenticated performs a request with a Bearer token when credentials
// are configured, logging in on demand and retrying once after a 401.
func (c *DispatcharrClient) doAuthenticated(ctx context.Context, method, requestURL string, body, target any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	err = c.doWithToken(ctx, method, requestURL, body, target, token)

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusUnauthorized && c.opts.username != "" {
		c.opts.logger.Debug("dispatcharr token rejected, re-authenticating")
		c.invalidateToken(token)
		token, err = c.ensureToken(ctx)
		if err != nil {
			return err
		}
		return c.doWithToken(ctx, method, requestURL, body, target, token)
	}
	return err
}

func (c *DispatcharrClient) doWithToken(ctx context.Context, method, requestURL string, body, target any, token string) error {
	if token == "" {
		return doJSON(ctx, &c.opts, method, requestURL, body, target)
	}
	return doJSON(ctx, &c.opts, method, requestURL, body, target,
		map[string]string{"Authorization": "Bearer " + token})
}

// ensureToken returns the cached access token, logging in if needed.
// Returns an empty token when no credentials are configured.
func (c *DispatcharrClient) ensureToken(ctx context.Context) (string, error) {
	if c.opts.username == "" {
		return "", nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("username", c.opts.username)
	form.Set("password", c.opts.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+dispatcharrPathToken, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set(headerContentType, contentTypeForm)
	req.Header.Set(headerAccept, contentTypeJSON)
	if c.opts.userAgent != "" {
		req.Header.Set(headerUserAgent, c.opts.userAgent)
	}

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("logging in: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: invalid credentials", ErrAuthFailed)
	default:
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: unexpected status %d", ErrAuthFailed, resp.StatusCode)
	}

	var tokens dispatcharrTokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return "", fmt.Errorf("decoding tokens: %w", err)
	}
	if tokens.Access == "" {
		return "", fmt.Errorf("%w: empty access token", ErrAuthFailed)
	}

	c.token = tokens.Access
	c.opts.logger.Debug("dispatcharr login succeeded",
		slog.String("username", c.opts.username))
	return c.token, nil
}

// invalidateToken clears the cached token if it still matches the one
// that was rejected.
func (c *DispatcharrClient) invalidateToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = ""
	}
}

var _ Client = (*DispatcharrClient)(nil)
