package models

import "errors"

// Common validation errors for models.
var (
	// ErrChannelIDRequired indicates a required channel ID field is empty.
	ErrChannelIDRequired = errors.New("channel_id is required")

	// ErrEventTypeRequired indicates a required event type field is empty.
	ErrEventTypeRequired = errors.New("event type is required")

	// ErrEventNotFound indicates an event was not found.
	ErrEventNotFound = errors.New("event not found")
)
