package repository

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jmylchreest/guardarr/internal/config"
	"github.com/jmylchreest/guardarr/internal/database"
	"github.com/jmylchreest/guardarr/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.New(
		config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db.DB
}

func makeEvent(channelID string, typ models.EventType, at time.Time) *models.Event {
	return &models.Event{
		ChannelID:   channelID,
		ChannelName: "Channel " + channelID,
		Type:        typ,
		OccurredAt:  at,
	}
}

func TestEventRepository_CreateAndList(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, makeEvent("101", models.EventBufferingStarted, now.Add(-2*time.Minute))))
	require.NoError(t, repo.Create(ctx, makeEvent("101", models.EventFailoverRequested, now.Add(-time.Minute))))
	require.NoError(t, repo.Create(ctx, makeEvent("102", models.EventMonitorStarted, now)))

	events, err := repo.List(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "102", events[0].ChannelID, "newest first")
	assert.False(t, events[0].ID.IsZero(), "ULID assigned on create")
}

func TestEventRepository_ListFiltered(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, makeEvent("101", models.EventBufferingStarted, now.Add(-2*time.Hour))))
	require.NoError(t, repo.Create(ctx, makeEvent("101", models.EventFailoverRequested, now)))
	require.NoError(t, repo.Create(ctx, makeEvent("102", models.EventFailoverRequested, now)))

	byChannel, err := repo.List(ctx, EventFilter{ChannelID: "101"})
	require.NoError(t, err)
	assert.Len(t, byChannel, 2)

	byType, err := repo.List(ctx, EventFilter{Type: models.EventFailoverRequested})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	recent, err := repo.List(ctx, EventFilter{Since: now.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	limited, err := repo.List(ctx, EventFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestEventRepository_CreateRejectsInvalid(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	err := repo.Create(context.Background(), &models.Event{Type: models.EventBufferingStarted})
	assert.ErrorIs(t, err, models.ErrChannelIDRequired)
}

func TestEventRepository_Count(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, makeEvent("101", models.EventBufferingStarted, now)))
	require.NoError(t, repo.Create(ctx, makeEvent("102", models.EventBufferingStarted, now)))

	count, err := repo.Count(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = repo.Count(ctx, EventFilter{ChannelID: "101"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestEventRepository_DeleteOlderThan(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, makeEvent("101", models.EventBufferingStarted, now.Add(-48*time.Hour))))
	require.NoError(t, repo.Create(ctx, makeEvent("101", models.EventBufferingRecovered, now)))

	deleted, err := repo.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := repo.List(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, models.EventBufferingRecovered, remaining[0].Type)
}

func TestEventSink_RecordPersists(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	sink := NewEventSink(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	sink.Record(ctx, models.Event{
		ChannelID:  "101",
		Type:       models.EventFailoverSucceeded,
		OccurredAt: time.Now().UTC(),
	})

	events, err := repo.List(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestEventSink_RecordSwallowsErrors(t *testing.T) {
	repo := NewEventRepository(testDB(t))
	sink := NewEventSink(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Invalid event: persistence fails but nothing panics or propagates.
	sink.Record(context.Background(), models.Event{Type: models.EventBufferingStarted})
}
