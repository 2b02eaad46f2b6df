package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/guardarr/internal/models"
	"github.com/jmylchreest/guardarr/internal/repository"
)

// EventsHandler serves the persisted event history.
type EventsHandler struct {
	repo *repository.EventRepository
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(repo *repository.EventRepository) *EventsHandler {
	return &EventsHandler{repo: repo}
}

// ListEventsInput is the input for the event listing endpoint.
type ListEventsInput struct {
	ChannelID string    `query:"channel_id" doc:"Filter by channel ID"`
	Type      string    `query:"type" doc:"Filter by event type"`
	Since     time.Time `query:"since" doc:"Only events at or after this time (RFC 3339)"`
	Limit     int       `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Maximum events to return"`
	Offset    int       `query:"offset" minimum:"0" doc:"Number of events to skip"`
}

// ListEventsOutput is the output for the event listing endpoint.
type ListEventsOutput struct {
	Body EventListResponse
}

// Register registers the event routes with the API.
func (h *EventsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listEvents",
		Method:      "GET",
		Path:        "/api/v1/events",
		Summary:     "List watchdog events",
		Description: "Returns persisted failover and probe events, newest first",
		Tags:        []string{"Events"},
	}, h.ListEvents)
}

// ListEvents returns persisted events matching the filter.
func (h *EventsHandler) ListEvents(ctx context.Context, input *ListEventsInput) (*ListEventsOutput, error) {
	filter := repository.EventFilter{
		ChannelID: input.ChannelID,
		Type:      models.EventType(input.Type),
		Since:     input.Since,
		Limit:     input.Limit,
		Offset:    input.Offset,
	}

	events, err := h.repo.List(ctx, filter)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing events", err)
	}

	total, err := h.repo.Count(ctx, filter)
	if err != nil {
		return nil, huma.Error500InternalServerError("counting events", err)
	}

	responses := make([]EventResponse, 0, len(events))
	for i := range events {
		responses = append(responses, EventFromModel(&events[i]))
	}

	return &ListEventsOutput{
		Body: EventListResponse{
			Pagination: PaginationMeta{
				Total:  total,
				Limit:  input.Limit,
				Offset: input.Offset,
			},
			Events: responses,
		},
	}, nil
}
