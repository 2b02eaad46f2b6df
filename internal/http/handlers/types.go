// Package handlers provides HTTP API handlers for guardarr.
package handlers

import (
	"time"

	"github.com/jmylchreest/guardarr/internal/models"
)

// PaginationMeta contains pagination metadata in responses.
type PaginationMeta struct {
	Total  int64 `json:"total" doc:"Total number of matching records"`
	Limit  int   `json:"limit" doc:"Maximum records returned"`
	Offset int   `json:"offset" doc:"Number of records skipped"`
}

// Health types

// CPUInfo describes system load relative to the core count.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// ProcessMemoryInfo describes memory usage of this process and its
// probe subprocesses.
type ProcessMemoryInfo struct {
	MainProcessMB      float64 `json:"main_process_mb"`
	ChildProcessesMB   float64 `json:"child_processes_mb"`
	ChildProcessCount  int     `json:"child_process_count"`
	TotalProcessTreeMB float64 `json:"total_process_tree_mb"`
	PercentageOfSystem float64 `json:"percentage_of_system"`
}

// MemoryInfo describes system and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64           `json:"total_memory_mb"`
	UsedMemoryMB      float64           `json:"used_memory_mb"`
	FreeMemoryMB      float64           `json:"free_memory_mb"`
	AvailableMemoryMB float64           `json:"available_memory_mb"`
	ProcessMemory     ProcessMemoryInfo `json:"process_memory"`
}

// DatabaseHealth describes the event store connection.
type DatabaseHealth struct {
	Status         string  `json:"status"`
	Driver         string  `json:"driver,omitempty"`
	ResponseTimeMS float64 `json:"response_time_ms"`
}

// ControllerHealth describes the upstream controller connection.
type ControllerHealth struct {
	Dialect      string `json:"dialect"`
	CircuitState string `json:"circuit_state"`
}

// HealthComponents groups per-component health details.
type HealthComponents struct {
	Database   DatabaseHealth    `json:"database"`
	Controller *ControllerHealth `json:"controller,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Monitors      int               `json:"monitors"`
	CPUInfo       CPUInfo           `json:"cpu_info"`
	Memory        MemoryInfo        `json:"memory"`
	Components    HealthComponents  `json:"components"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// Channel types

// ChannelStatusResponse represents one monitored channel.
type ChannelStatusResponse struct {
	ChannelID      string     `json:"channel_id"`
	ChannelName    string     `json:"channel_name"`
	SourceRef      string     `json:"source_ref,omitempty"`
	Speed          float64    `json:"speed"`
	HasSpeed       bool       `json:"has_speed"`
	Buffering      bool       `json:"buffering"`
	BufferingSince *time.Time `json:"buffering_since,omitempty"`
	ErrorCount     int        `json:"error_count"`
	LastSwitchAt   *time.Time `json:"last_switch_at,omitempty"`
	ProbePID       int        `json:"probe_pid,omitempty"`
	ProbeRunning   bool       `json:"probe_running"`
	StartedAt      time.Time  `json:"started_at"`
}

// ChannelListResponse is the response for channel status listings.
type ChannelListResponse struct {
	Count    int                     `json:"count"`
	Channels []ChannelStatusResponse `json:"channels"`
}

// Event types

// EventResponse represents a watchdog event in API responses.
type EventResponse struct {
	ID          models.ULID      `json:"id"`
	ChannelID   string           `json:"channel_id"`
	ChannelName string           `json:"channel_name,omitempty"`
	Type        models.EventType `json:"type"`
	Reason      string           `json:"reason,omitempty"`
	Speed       float64          `json:"speed,omitempty"`
	ErrorCount  int              `json:"error_count,omitempty"`
	SourceRef   string           `json:"source_ref,omitempty"`
	Detail      string           `json:"detail,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// EventFromModel converts a model to a response.
func EventFromModel(e *models.Event) EventResponse {
	return EventResponse{
		ID:          e.ID,
		ChannelID:   e.ChannelID,
		ChannelName: e.ChannelName,
		Type:        e.Type,
		Reason:      string(e.Reason),
		Speed:       e.Speed,
		ErrorCount:  e.ErrorCount,
		SourceRef:   e.SourceRef,
		Detail:      e.Detail,
		OccurredAt:  e.OccurredAt,
	}
}

// EventListResponse is the paginated response for event listings.
type EventListResponse struct {
	Pagination PaginationMeta  `json:"pagination"`
	Events     []EventResponse `json:"events"`
}
