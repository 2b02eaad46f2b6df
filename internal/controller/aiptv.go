package controller

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// AIPTV API endpoint paths.
const (
	aiptvPathActive     = "/api/proxy/streams/active"
	aiptvPathStreamBase = "/api/proxy/stream/"
	aiptvPathSwitchTail = "/switch"
	aiptvPathProxy      = "/api/proxy/"
)

// AIPTVClient talks to an AIPTV instance. AIPTV has no server-side
// "advance to next source" operation, so the client computes the next
// source itself from the channel's available stream list and requests an
// explicit switch, wrapping around to the first source after the last.
type AIPTVClient struct {
	baseURL string
	opts    clientOptions
}

// NewAIPTVClient creates a client for an AIPTV controller.
func NewAIPTVClient(baseURL string, opts ...Option) *AIPTVClient {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &AIPTVClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		opts:    o,
	}
}

type aiptvStream struct {
	ChannelID        flexString    `json:"channelId"`
	StreamName       string        `json:"streamName"`
	StreamID         flexString    `json:"streamId"`
	Clients          []aiptvViewer `json:"clients"`
	AvailableStreams []aiptvSource `json:"availableStreams"`
}

type aiptvViewer struct {
	UserAgent string `json:"userAgent"`
}

type aiptvSource struct {
	ID   flexString `json:"id"`
	Name string     `json:"name"`
}

type aiptvSwitchRequest struct {
	StreamID string `json:"streamId"`
}

// ActiveChannels returns the channels with active proxy sessions.
func (c *AIPTVClient) ActiveChannels(ctx context.Context) ([]Channel, error) {
	streams, err := c.activeStreams(ctx)
	if err != nil {
		return nil, err
	}

	channels := make([]Channel, 0, len(streams))
	for _, s := range streams {
		if s.ChannelID == "" {
			continue
		}
		clients := make([]string, 0, len(s.Clients))
		for _, viewer := range s.Clients {
			clients = append(clients, viewer.UserAgent)
		}
		name := s.StreamName
		if name == "" {
			name = "Unknown Channel"
		}
		channels = append(channels, Channel{
			ID:        s.ChannelID.String(),
			Name:      name,
			SourceRef: s.StreamID.String(),
			Clients:   clients,
		})
	}
	return channels, nil
}

// NextStream advances the channel to the source after its current one,
// wrapping to the first source at the end of the list.
func (c *AIPTVClient) NextStream(ctx context.Context, channelID string) error {
	streams, err := c.activeStreams(ctx)
	if err != nil {
		return err
	}

	var current *aiptvStream
	for i := range streams {
		if streams[i].ChannelID.String() == channelID {
			current = &streams[i]
			break
		}
	}
	if current == nil {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}

	next := nextSourceAfter(current.AvailableStreams, current.StreamID.String())
	if next == "" || next == current.StreamID.String() {
		return fmt.Errorf("%w: channel %s", ErrNoAlternateFound, channelID)
	}

	c.opts.logger.Debug("switching aiptv channel",
		slog.String("channel_id", channelID),
		slog.String("from", current.StreamID.String()),
		slog.String("to", next),
	)

	url := c.baseURL + aiptvPathStreamBase + channelID + aiptvPathSwitchTail
	if err := doJSON(ctx, &c.opts, http.MethodPost, url, aiptvSwitchRequest{StreamID: next}, nil); err != nil {
		return fmt.Errorf("switching channel %s: %w", channelID, err)
	}
	return nil
}

// WatchURL returns the proxy URL for the channel.
func (c *AIPTVClient) WatchURL(channelID string) string {
	return c.baseURL + aiptvPathProxy + channelID
}

func (c *AIPTVClient) activeStreams(ctx context.Context) ([]aiptvStream, error) {
	var streams []aiptvStream
	if err := doJSON(ctx, &c.opts, http.MethodGet, c.baseURL+aiptvPathActive, nil, &streams); err != nil {
		return nil, fmt.Errorf("fetching active streams: %w", err)
	}
	return streams, nil
}

// nextSourceAfter returns the source following current in the list,
// wrapping to the first entry after the last. Returns empty when current
// is not in the list.
func nextSourceAfter(sources []aiptvSource, current string) string {
	for i, s := range sources {
		if s.ID.String() == current {
			return sources[(i+1)%len(sources)].ID.String()
		}
	}
	return ""
}

var _ Client = (*AIPTVClient)(nil)
