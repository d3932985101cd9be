package shared

import (
	"time"
)

// API error bodies
type ErrorResponse struct {
	Error string `json:"error"`
}

type ValidationErrorResponse struct {
	Errors []string `json:"errors"`
}

// Event types
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Subject   string                 `json:"subject"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
}

// Health check
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// Constants
const (
	ServiceName = "inspections-api"

	// Event Types
	EventTypeCreated = "created"
	EventTypeUpdated = "updated"
	EventTypeDeleted = "deleted"

	// Client-facing messages
	MsgInvalidID      = "Invalid inspection ID."
	MsgNotFound       = "Inspection not found."
	MsgQueryRequired  = "Search query is required."
	MsgInvalidJSON    = "Invalid JSON payload."
	MsgBodyTooLarge   = "Request payload exceeds 1 MiB."
	MsgInternalError  = "Internal server error."
	MsgServiceRunning = "Environmental Inspection API is running."
)
