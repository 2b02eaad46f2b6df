package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// StreamMaster API endpoint paths.
const (
	streamMasterPathMetrics    = "/api/statistics/getchannelmetrics"
	streamMasterPathNextStream = "/api/streaming/movetonextstream"
	streamMasterPathStream     = "/v/0/"
)

// StreamMasterClient talks to a StreamMaster instance. StreamMaster
// changed the casing of its JSON fields between releases, so every field
// is decoded tolerantly.
type StreamMasterClient struct {
	baseURL string
	opts    clientOptions
}

// NewStreamMasterClient creates a client for a StreamMaster controller.
func NewStreamMasterClient(baseURL string, opts ...Option) *StreamMasterClient {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &StreamMasterClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		opts:    o,
	}
}

type streamMasterMetric struct {
	ID           flexString           `json:"id"`
	IDUpper      flexString           `json:"Id"`
	Name         string               `json:"name"`
	NameUpper    string               `json:"Name"`
	IsFailed     bool                 `json:"isFailed"`
	Clients      []streamMasterViewer `json:"clientStreams"`
	ClientsUpper []streamMasterViewer `json:"ClientStreams"`
}

type streamMasterViewer struct {
	UserAgent      string `json:"clientUserAgent"`
	UserAgentUpper string `json:"ClientUserAgent"`
}

func (m streamMasterMetric) id() string {
	if m.ID != "" {
		return m.ID.String()
	}
	return m.IDUpper.String()
}

func (m streamMasterMetric) name() string {
	if m.Name != "" {
		return m.Name
	}
	if m.NameUpper != "" {
		return m.NameUpper
	}
	return "Unknown Channel"
}

func (m streamMasterMetric) clients() []string {
	viewers := m.Clients
	if len(viewers) == 0 {
		viewers = m.ClientsUpper
	}
	agents := make([]string, 0, len(viewers))
	for _, v := range viewers {
		ua := v.UserAgent
		if ua == "" {
			ua = v.UserAgentUpper
		}
		agents = append(agents, ua)
	}
	return agents
}

type streamMasterSwitchRequest struct {
	SMChannelID json.Number `json:"SMChannelId"`
}

type streamMasterSwitchResponse struct {
	IsError      *bool `json:"isError"`
	IsErrorUpper *bool `json:"IsError"`
}

func (r streamMasterSwitchResponse) failed() bool {
	if r.IsError != nil {
		return *r.IsError
	}
	if r.IsErrorUpper != nil {
		return *r.IsErrorUpper
	}
	return false
}

// ActiveChannels returns the channel metrics, skipping failed channels.
func (c *StreamMasterClient) ActiveChannels(ctx context.Context) ([]Channel, error) {
	var metrics []streamMasterMetric
	if err := doJSON(ctx, &c.opts, http.MethodGet, c.baseURL+streamMasterPathMetrics, nil, &metrics); err != nil {
		return nil, fmt.Errorf("fetching channel metrics: %w", err)
	}

	channels := make([]Channel, 0, len(metrics))
	for _, m := range metrics {
		if m.IsFailed || m.id() == "" {
			continue
		}
		channels = append(channels, Channel{
			ID:        m.id(),
			Name:      m.name(),
			SourceRef: m.name(),
			Clients:   m.clients(),
		})
	}
	return channels, nil
}

// NextStream asks StreamMaster to move the channel to its next stream.
func (c *StreamMasterClient) NextStream(ctx context.Context, channelID string) error {
	body := streamMasterSwitchRequest{SMChannelID: json.Number(channelID)}
	var result streamMasterSwitchResponse
	if err := doJSON(ctx, &c.opts, http.MethodPatch, c.baseURL+streamMasterPathNextStream, body, &result); err != nil {
		return fmt.Errorf("switching channel %s: %w", channelID, err)
	}
	if result.failed() {
		return fmt.Errorf("%w: channel %s", ErrSwitchRejected, channelID)
	}
	return nil
}

// WatchURL returns the video proxy URL for the channel.
func (c *StreamMasterClient) WatchURL(channelID string) string {
	return c.baseURL + streamMasterPathStream + channelID
}

var _ Client = (*StreamMasterClient)(nil)
