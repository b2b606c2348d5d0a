package ws

import (
	"time"

	"github.com/google/uuid"
)

// ConnInfo carries the identity of one socket connection for lifecycle
// events and error reporting.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnID() string {
	return uuid.NewString()
}
