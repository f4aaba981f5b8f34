package ipc

import "encoding/json"

// MessageType represents the type of IPC message
type MessageType string

const (
	// MessageTypeLogEvents is sent from a local producer to the daemon
	MessageTypeLogEvents MessageType = "log_events"
	// MessageTypeAck is sent from the daemon back to the producer
	MessageTypeAck MessageType = "ack"
)

// Request carries one event or a batch of events in the wire format
// (see package wire). Events are kept raw so the daemon decodes them with
// the same parser as the HTTP endpoint.
type Request struct {
	Type   MessageType     `json:"type"`
	Events json.RawMessage `json:"events"`
}

// Response is sent from the daemon back to the producer
type Response struct {
	Type     MessageType `json:"type"`
	Status   string      `json:"status"` // "ok" or "error"
	Accepted int         `json:"accepted"`
	Error    string      `json:"error,omitempty"`
}

// ResponseStatus constants
const (
	StatusOK    = "ok"
	StatusError = "error"
)
