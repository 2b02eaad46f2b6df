// Package repository provides data access for persisted guardarr entities.
package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/guardarr/internal/models"
)

// EventFilter narrows event listings.
type EventFilter struct {
	ChannelID string
	Type      models.EventType
	Since     time.Time
	Limit     int
	Offset    int
}

// defaultListLimit caps unbounded listings.
const defaultListLimit = 100

// EventRepository persists and queries watchdog events.
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates an event repository.
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create stores a new event.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("creating event: %w", err)
	}
	return nil
}

// List returns events matching the filter, newest first.
func (r *EventRepository) List(ctx context.Context, filter EventFilter) ([]models.Event, error) {
	query := r.db.WithContext(ctx).Model(&models.Event{})

	if filter.ChannelID != "" {
		query = query.Where("channel_id = ?", filter.ChannelID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if !filter.Since.IsZero() {
		query = query.Where("occurred_at >= ?", filter.Since)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var events []models.Event
	err := query.
		Order("occurred_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}

// Count returns the number of events matching the filter.
func (r *EventRepository) Count(ctx context.Context, filter EventFilter) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Event{})

	if filter.ChannelID != "" {
		query = query.Where("channel_id = ?", filter.ChannelID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if !filter.Since.IsZero() {
		query = query.Where("occurred_at >= ?", filter.Since)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes events that occurred before the cutoff and
// returns how many were deleted.
func (r *EventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("occurred_at < ?", cutoff).
		Delete(&models.Event{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting old events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
