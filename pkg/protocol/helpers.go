package protocol

import (
	"encoding/base64"
	"fmt"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(width, height int, jpegData []byte, frameID uint64, capturedAtMs int64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:      width,
		Height:     height,
		Format:     "jpeg",
		Data:       base64.StdEncoding.EncodeToString(jpegData),
		FrameID:    frameID,
		CapturedAt: capturedAtMs,
	})
}

// NewVerdictMessage wraps a verdict value
func NewVerdictMessage(verdict interface{}) (*Message, error) {
	return NewMessage(TypeVerdict, verdict)
}

// NewCaptureMessage creates a capture notification
func NewCaptureMessage(c CaptureData) (*Message, error) {
	return NewMessage(TypeCapture, c)
}

// NewSessionMessage creates a session lifecycle message
func NewSessionMessage(s SessionData) (*Message, error) {
	return NewMessage(TypeSession, s)
}

// NewErrorMessage creates an error message
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Code: code, Message: message})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data. Only JPEG is accepted.
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	if f.Format != "" && f.Format != "jpeg" {
		return nil, fmt.Errorf("unsupported frame format %q", f.Format)
	}
	data, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("decode frame: empty payload")
	}
	return data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
