// Package controller provides API clients for the streaming controllers
// guardarr can supervise. Each controller dialect exposes the same three
// capabilities: list the channels with active viewers, ask the controller
// to advance a channel to its next upstream source, and build the URL the
// watchdog probe should consume.
package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmylchreest/guardarr/internal/config"
	"github.com/jmylchreest/guardarr/internal/version"
)

// Common errors returned by controller clients.
var (
	ErrAuthFailed       = errors.New("controller authentication failed")
	ErrChannelNotFound  = errors.New("channel not found")
	ErrNoAlternateFound = errors.New("no alternate stream available")
	ErrSwitchRejected   = errors.New("controller rejected stream switch")
)

// HTTP header constants.
const (
	headerAccept      = "Accept"
	headerContentType = "Content-Type"
	headerUserAgent   = "User-Agent"
	contentTypeJSON   = "application/json"
	contentTypeForm   = "application/x-www-form-urlencoded"
	maxErrorBodyBytes = 1024
)

// Channel describes one channel a controller reports as having viewers.
type Channel struct {
	// ID is the controller's identifier for the channel, normalised to a
	// string regardless of the controller's native type.
	ID string

	// Name is the display name the controller reports for the channel.
	Name string

	// SourceRef identifies the upstream source currently feeding the
	// channel. It changes when the controller fails over, which the
	// watchdog uses to reset per-channel state.
	SourceRef string

	// Clients holds the User-Agent strings of the channel's connected
	// viewers. The watchdog uses these to exclude its own probe sessions.
	Clients []string
}

// Client is the interface every controller dialect implements.
type Client interface {
	// ActiveChannels returns the channels that currently have viewers.
	ActiveChannels(ctx context.Context) ([]Channel, error)

	// NextStream asks the controller to advance the channel to its next
	// upstream source. A nil error means the controller accepted the
	// switch.
	NextStream(ctx context.Context, channelID string) error

	// WatchURL returns the playback URL the measurement probe should
	// consume for the channel.
	WatchURL(channelID string) string
}

// New constructs the controller client for the configured dialect.
func New(cfg config.ControllerConfig, httpClient *http.Client, logger *slog.Logger) (Client, error) {
	baseURL := strings.TrimSuffix(cfg.URL, "/")

	switch cfg.Type {
	case config.ControllerDispatcharr:
		return NewDispatcharrClient(baseURL,
			WithCredentials(cfg.Username, cfg.Password),
			WithHTTPClient(httpClient),
			WithLogger(logger),
		), nil
	case config.ControllerStreamMaster:
		return NewStreamMasterClient(baseURL,
			WithHTTPClient(httpClient),
			WithLogger(logger),
		), nil
	case config.ControllerAIPTV:
		return NewAIPTVClient(baseURL,
			WithHTTPClient(httpClient),
			WithLogger(logger),
		), nil
	default:
		return nil, fmt.Errorf("unknown controller type: %q", cfg.Type)
	}
}

// clientOptions holds the settings shared by all dialect clients.
type clientOptions struct {
	httpClient *http.Client
	logger     *slog.Logger
	username   string
	password   string
	userAgent  string
}

// Option configures a controller client.
type Option func(*clientOptions)

// WithHTTPClient sets a custom standard library HTTP client. This allows
// injection of any *http.Client, including ones wrapped with retry logic
// or circuit breakers.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithLogger sets a structured logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCredentials sets the username and password used for controllers
// that require authentication.
func WithCredentials(username, password string) Option {
	return func(o *clientOptions) {
		o.username = username
		o.password = password
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *clientOptions) {
		o.userAgent = ua
	}
}

func defaultOptions() clientOptions {
	return clientOptions{
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
		userAgent:  version.UserAgent(),
	}
}

// doJSON performs a request with JSON accept headers and decodes the
// response body into target. A nil target discards the body. Extra header
// maps are applied after the defaults.
func doJSON(ctx context.Context, opts *clientOptions, method, url string, body any, target any, headers ...map[string]string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set(headerAccept, contentTypeJSON)
	if body != nil {
		req.Header.Set(headerContentType, contentTypeJSON)
	}
	if opts.userAgent != "" {
		req.Header.Set(headerUserAgent, opts.userAgent)
	}
	for _, hdr := range headers {
		for k, v := range hdr {
			req.Header.Set(k, v)
		}
	}

	resp, err := opts.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &StatusError{Code: resp.StatusCode, Body: string(snippet)}
	}

	if target == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// StatusError reports an unexpected HTTP status from a controller.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// flexString decodes JSON values that may arrive as strings or numbers,
// normalising both to a string. Controllers are inconsistent about
// identifier types across versions.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) String() string {
	return string(f)
}
