package client

import (
	"fmt"
	"time"
)

// Status is the body of GET /status.
type Status struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	Instance  string    `json:"instance"`
	Mode      string    `json:"mode"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
	User      string    `json:"user,omitempty"`
	UID       int       `json:"uid"`
	GID       int       `json:"gid"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// StatusError is returned for any non-200 response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Message)
}
