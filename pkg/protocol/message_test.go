package protocol

import (
	"encoding/json"
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
			name:    "joined message",
			msgType: TypeJoined,
			data:    JoinedData{Room: "call-1", Codec: "opus", SampleRate: 48000},
		},
		{
			name:    "state message",
			msgType: TypeAgentState,
			data:    AgentStateData{State: "listening"},
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
		},
		{
			name:    "unmarshalable data",
			msgType: TypePing,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
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

func TestTranscriptRoundTrip(t *testing.T) {
	msg, err := NewTranscriptMessage("caller-1", "xin chào", true)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := msg.Bytes()

	parsed, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if parsed.Type != TypeTranscript {
		t.Errorf("type = %s", parsed.Type)
	}

	var td TranscriptData
	if err := parsed.ParseData(&td); err != nil {
		t.Fatal(err)
	}
	if td.Identity != "caller-1" || td.Text != "xin chào" || !td.Final {
		t.Errorf("unexpected data %+v", td)
	}
}

func TestParseMessageInvalid(t *testing.T) {
	if _, err := ParseMessage([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestPongCarriesPingTimestamp(t *testing.T) {
	msg, _ := NewPongMessage("p1", 1234)

	var pong PongData
	json.Unmarshal(msg.Data, &pong)
	if pong.ID != "p1" || pong.PingTS != 1234 || pong.PongTS == 0 {
		t.Errorf("unexpected pong %+v", pong)
	}
}
