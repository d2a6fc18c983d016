package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Severity classifies an event log entry
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeveritySuccess Severity = "SUCCESS"
	SeverityWarn    Severity = "WARN"
	SeverityError   Severity = "ERROR"
	SeverityAlarm   Severity = "ALARM"
)

// Event is one entry of the operator-facing event log
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
}

// NewEvent stamps a new event with a fresh ID
func NewEvent(ts time.Time, severity Severity, message string) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: ts,
		Severity:  severity,
		Message:   message,
	}
}

// String renders the event the way the dashboard log shows it
func (e Event) String() string {
	return fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("15:04:05"), e.Severity, e.Message)
}
