package handlers

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jmylchreest/guardarr/internal/config"
	"github.com/jmylchreest/guardarr/internal/database"
	"github.com/jmylchreest/guardarr/internal/models"
	"github.com/jmylchreest/guardarr/internal/repository"
	"github.com/jmylchreest/guardarr/internal/watchdog"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(
		config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestHealthHandler_GetHealth(t *testing.T) {
	handler := NewHealthHandler("1.0.0")

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output.Body.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", output.Body.Status)
	}

	if output.Body.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", output.Body.Version)
	}

	if output.Body.Checks["database"] != "not_configured" {
		t.Errorf("expected database check 'not_configured', got '%s'", output.Body.Checks["database"])
	}

	if output.Body.CPUInfo.Cores <= 0 {
		t.Errorf("expected positive core count, got %d", output.Body.CPUInfo.Cores)
	}
}

func TestHealthHandler_GetHealth_WithDB(t *testing.T) {
	handler := NewHealthHandler("1.0.0").WithDB(testDB(t))

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output.Body.Components.Database.Status != "ok" {
		t.Errorf("expected database status 'ok', got '%s'", output.Body.Components.Database.Status)
	}

	if output.Body.Components.Database.Driver != "sqlite" {
		t.Errorf("expected driver 'sqlite', got '%s'", output.Body.Components.Database.Driver)
	}
}

type fakeLister struct {
	statuses []watchdog.Status
}

func (f *fakeLister) Statuses() []watchdog.Status { return f.statuses }

func TestChannelsHandler_ListChannels(t *testing.T) {
	since := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{statuses: []watchdog.Status{
		{
			ChannelID:      "101",
			ChannelName:    "News HD",
			Speed:          0.7,
			HasSpeed:       true,
			Buffering:      true,
			BufferingSince: since,
			ProbeRunning:   true,
		},
		{
			ChannelID:   "102",
			ChannelName: "Sports",
			Speed:       1.02,
			HasSpeed:    true,
		},
	}}

	handler := NewChannelsHandler(lister)
	output, err := handler.ListChannels(context.Background(), &ListChannelsInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output.Body.Count != 2 {
		t.Fatalf("expected 2 channels, got %d", output.Body.Count)
	}

	first := output.Body.Channels[0]
	if first.ChannelID != "101" || !first.Buffering {
		t.Errorf("unexpected first channel: %+v", first)
	}
	if first.BufferingSince == nil || !first.BufferingSince.Equal(since) {
		t.Errorf("expected buffering_since %v, got %v", since, first.BufferingSince)
	}

	second := output.Body.Channels[1]
	if second.BufferingSince != nil {
		t.Errorf("expected nil buffering_since for healthy channel, got %v", second.BufferingSince)
	}
	if second.LastSwitchAt != nil {
		t.Errorf("expected nil last_switch_at, got %v", second.LastSwitchAt)
	}
}

func TestChannelsHandler_ListChannels_Empty(t *testing.T) {
	handler := NewChannelsHandler(&fakeLister{})

	output, err := handler.ListChannels(context.Background(), &ListChannelsInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output.Body.Count != 0 {
		t.Errorf("expected 0 channels, got %d", output.Body.Count)
	}
	if output.Body.Channels == nil {
		t.Error("expected empty slice, got nil")
	}
}

func TestEventsHandler_ListEvents(t *testing.T) {
	db := testDB(t)
	repo := repository.NewEventRepository(db.DB)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	events := []*models.Event{
		{ChannelID: "101", ChannelName: "News HD", Type: models.EventFailoverSucceeded, Reason: models.ReasonBuffering, OccurredAt: base},
		{ChannelID: "101", ChannelName: "News HD", Type: models.EventBufferingStarted, Speed: 0.6, OccurredAt: base.Add(time.Minute)},
		{ChannelID: "102", ChannelName: "Sports", Type: models.EventMonitorStarted, OccurredAt: base.Add(2 * time.Minute)},
	}
	for _, ev := range events {
		if err := repo.Create(ctx, ev); err != nil {
			t.Fatalf("seeding event: %v", err)
		}
	}

	handler := NewEventsHandler(repo)

	t.Run("all events newest first", func(t *testing.T) {
		output, err := handler.ListEvents(ctx, &ListEventsInput{Limit: 100})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if output.Body.Pagination.Total != 3 {
			t.Errorf("expected total 3, got %d", output.Body.Pagination.Total)
		}
		if len(output.Body.Events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(output.Body.Events))
		}
		if output.Body.Events[0].Type != models.EventMonitorStarted {
			t.Errorf("expected newest event first, got %s", output.Body.Events[0].Type)
		}
	})

	t.Run("filter by channel", func(t *testing.T) {
		output, err := handler.ListEvents(ctx, &ListEventsInput{ChannelID: "101", Limit: 100})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if output.Body.Pagination.Total != 2 {
			t.Errorf("expected total 2, got %d", output.Body.Pagination.Total)
		}
		for _, ev := range output.Body.Events {
			if ev.ChannelID != "101" {
				t.Errorf("unexpected channel in results: %s", ev.ChannelID)
			}
		}
	})

	t.Run("filter by type and since", func(t *testing.T) {
		output, err := handler.ListEvents(ctx, &ListEventsInput{
			Type:  string(models.EventBufferingStarted),
			Since: base.Add(30 * time.Second),
			Limit: 100,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(output.Body.Events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(output.Body.Events))
		}
		if output.Body.Events[0].Speed != 0.6 {
			t.Errorf("expected speed 0.6, got %v", output.Body.Events[0].Speed)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		output, err := handler.ListEvents(ctx, &ListEventsInput{Limit: 2, Offset: 2})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if output.Body.Pagination.Total != 3 {
			t.Errorf("expected total 3, got %d", output.Body.Pagination.Total)
		}
		if len(output.Body.Events) != 1 {
			t.Errorf("expected 1 event on last page, got %d", len(output.Body.Events))
		}
	})
}
