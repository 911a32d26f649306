package protocol

import (
	"encoding/base64"
	"testing"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "frame message",
			msgType: TypeFrame,
			data:    FrameData{Width: 640, Height: 480, Format: "jpeg"},
		},
		{
			name:    "session message",
			msgType: TypeSession,
			data:    SessionData{SessionID: "abc", Status: "running", Monitoring: true},
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeVerdict,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestFrameMessage(t *testing.T) {
	payload := []byte{0xff, 0xd8, 0xff, 0xe0}
	msg, err := NewFrameMessage(640, 480, payload, 7, 1700000000123)
	if err != nil {
		t.Fatalf("NewFrameMessage() error = %v", err)
	}

	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	frame, err := parsed.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData() error = %v", err)
	}
	if frame.FrameID != 7 || frame.CapturedAt != 1700000000123 {
		t.Errorf("frame = %+v", frame)
	}

	data, err := frame.DecodeFrameData()
	if err != nil {
		t.Fatalf("DecodeFrameData() error = %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("payload mismatch: %x", data)
	}
}

func TestDecodeFrameData_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		frame FrameData
	}{
		{"bad base64", FrameData{Format: "jpeg", Data: "%%%"}},
		{"empty payload", FrameData{Format: "jpeg", Data: ""}},
		{"unsupported format", FrameData{Format: "h264", Data: base64.StdEncoding.EncodeToString([]byte{1})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.frame.DecodeFrameData(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseMessage_Invalid(t *testing.T) {
	for _, in := range []string{"", "not json", `{"data":{}}`} {
		if _, err := ParseMessage([]byte(in)); err == nil {
			t.Errorf("ParseMessage(%q) expected error", in)
		}
	}
}

func TestPongLatency(t *testing.T) {
	msg, err := NewPongMessage("p1", 1000, 1042)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}
	var pong PongData
	if err := msg.ParseData(&pong); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if pong.LatencyMs != 42 {
		t.Errorf("LatencyMs = %d, want 42", pong.LatencyMs)
	}
}
