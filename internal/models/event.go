package models

import "time"

// EventType identifies the kind of watchdog event recorded for a channel.
type EventType string

const (
	EventMonitorStarted     EventType = "monitor_started"
	EventMonitorStopped     EventType = "monitor_stopped"
	EventBufferingStarted   EventType = "buffering_started"
	EventBufferingRecovered EventType = "buffering_recovered"
	EventErrorsDetected     EventType = "errors_detected"
	EventFailoverRequested  EventType = "failover_requested"
	EventFailoverSucceeded  EventType = "failover_succeeded"
	EventFailoverFailed     EventType = "failover_failed"
	EventProbeRestarted     EventType = "probe_restarted"
	EventMemoryLimitKill    EventType = "memory_limit_kill"
	EventSourceChanged      EventType = "source_changed"
)

// FailoverReason identifies which detection branch triggered a failover.
type FailoverReason string

const (
	ReasonBuffering FailoverReason = "buffering"
	ReasonErrors    FailoverReason = "errors"
)

// Event is a persisted record of something the watchdog observed or did
// for a monitored channel.
type Event struct {
	BaseModel
	ChannelID   string         `gorm:"index;not null" json:"channel_id"`
	ChannelName string         `json:"channel_name"`
	Type        EventType      `gorm:"index;not null" json:"type"`
	Reason      FailoverReason `json:"reason,omitempty"`
	Speed       float64        `json:"speed,omitempty"`
	ErrorCount  int            `json:"error_count,omitempty"`
	SourceRef   string         `json:"source_ref,omitempty"`
	Detail      string         `json:"detail,omitempty"`
	OccurredAt  time.Time      `gorm:"index;not null" json:"occurred_at"`
}

// TableName overrides the default table name.
func (Event) TableName() string {
	return "events"
}

// Validate checks that the event has the minimum required fields.
func (e *Event) Validate() error {
	if e.ChannelID == "" {
		return ErrChannelIDRequired
	}
	if e.Type == "" {
		return ErrEventTypeRequired
	}
	return nil
}
