// Package protocol defines the WebSocket messages exchanged between a
// candidate's browser (frame ingest) and the proctoring server, and the
// events pushed to reviewer dashboards.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → Server messages
	TypeFrame MessageType = "frame" // Webcam frame

	// Server → Client messages
	TypeVerdict MessageType = "verdict" // Per-cycle fused verdict
	TypeCapture MessageType = "capture" // Sustained violation captured
	TypeSession MessageType = "session" // Session lifecycle change
	TypeError   MessageType = "error"   // Rejected message

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// FrameData contains a webcam frame
type FrameData struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Format     string `json:"format"` // "jpeg"
	Data       string `json:"data"`   // base64 encoded
	FrameID    uint64 `json:"frame_id,omitempty"`
	CapturedAt int64  `json:"captured_at,omitempty"` // Client Unix milliseconds
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// SessionData describes a session lifecycle change
type SessionData struct {
	SessionID  string `json:"session_id"`
	Status     string `json:"status"` // "running", "stopped"
	Monitoring bool   `json:"monitoring"`
	Phase      string `json:"phase,omitempty"`
}

// CaptureData describes an evidence capture
type CaptureData struct {
	SessionID string `json:"session_id"`
	Type      string `json:"type"`  // Modality log type
	Label     string `json:"label"` // Direction label or "detected"
	File      string `json:"file"`
	At        int64  `json:"at"` // Unix milliseconds
}

// ErrorData explains a rejected message
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
