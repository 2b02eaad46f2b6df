package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/guardarr/internal/watchdog"
)

// ChannelLister provides per-channel monitor snapshots. It is satisfied
// by watchdog.Orchestrator.
type ChannelLister interface {
	Statuses() []watchdog.Status
}

// ChannelsHandler serves the monitored channel listing.
type ChannelsHandler struct {
	monitors ChannelLister
}

// NewChannelsHandler creates a new channels handler.
func NewChannelsHandler(monitors ChannelLister) *ChannelsHandler {
	return &ChannelsHandler{monitors: monitors}
}

// ListChannelsInput is the input for the channel listing endpoint.
type ListChannelsInput struct{}

// ListChannelsOutput is the output for the channel listing endpoint.
type ListChannelsOutput struct {
	Body ChannelListResponse
}

// Register registers the channel routes with the API.
func (h *ChannelsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listChannels",
		Method:      "GET",
		Path:        "/api/v1/channels",
		Summary:     "List monitored channels",
		Description: "Returns every channel currently under watch with its probe state",
		Tags:        []string{"Channels"},
	}, h.ListChannels)
}

// ListChannels returns the current monitor snapshots.
func (h *ChannelsHandler) ListChannels(ctx context.Context, input *ListChannelsInput) (*ListChannelsOutput, error) {
	statuses := h.monitors.Statuses()

	channels := make([]ChannelStatusResponse, 0, len(statuses))
	for _, st := range statuses {
		channels = append(channels, channelFromStatus(st))
	}

	return &ListChannelsOutput{
		Body: ChannelListResponse{
			Count:    len(channels),
			Channels: channels,
		},
	}, nil
}

func channelFromStatus(st watchdog.Status) ChannelStatusResponse {
	return ChannelStatusResponse{
		ChannelID:      st.ChannelID,
		ChannelName:    st.ChannelName,
		SourceRef:      st.SourceRef,
		Speed:          st.Speed,
		HasSpeed:       st.HasSpeed,
		Buffering:      st.Buffering,
		BufferingSince: optionalTime(st.BufferingSince),
		ErrorCount:     st.ErrorCount,
		LastSwitchAt:   optionalTime(st.LastSwitchAt),
		ProbePID:       st.ProbePID,
		ProbeRunning:   st.ProbeRunning,
		StartedAt:      st.StartedAt,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
