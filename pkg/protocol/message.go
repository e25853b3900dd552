// Package protocol defines the signalling messages exchanged with room
// participants over the websocket transport. Media travels separately as
// binary RTP packets.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of signalling message
type MessageType string

const (
	// Server → Participant messages
	TypeJoined            MessageType = "joined"             // Join accepted
	TypeParticipantJoined MessageType = "participant_joined" // Someone entered the room
	TypeParticipantLeft   MessageType = "participant_left"   // Someone left the room
	TypeAgentState        MessageType = "agent_state"        // Agent lifecycle state
	TypeTranscript        MessageType = "transcript"         // User or agent speech text

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all signalling messages
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
	return &msg, nil
}

// ParticipantKind distinguishes callers from the in-process agent.
type ParticipantKind string

const (
	KindStandard ParticipantKind = "standard"
	KindAgent    ParticipantKind = "agent"
)

// ParticipantInfo describes a room member.
type ParticipantInfo struct {
	Identity string          `json:"identity"`
	SID      string          `json:"sid"`
	Name     string          `json:"name,omitempty"`
	Kind     ParticipantKind `json:"kind"`
}

// JoinedData acknowledges a join and describes the negotiated media.
type JoinedData struct {
	Room         string            `json:"room"`
	RoomSID      string            `json:"room_sid"`
	Participant  ParticipantInfo   `json:"participant"`
	Codec        string            `json:"codec"`
	PayloadType  uint8             `json:"payload_type"`
	SampleRate   int               `json:"sample_rate"`
	Participants []ParticipantInfo `json:"participants,omitempty"`
}

// AgentStateData reports the agent lifecycle state
type AgentStateData struct {
	State string `json:"state"` // "initializing", "listening", "thinking", "speaking", "ended"
}

// TranscriptData carries recognized or synthesized text
type TranscriptData struct {
	Identity string `json:"identity"`
	Text     string `json:"text"`
	Final    bool   `json:"final"`
}

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID     string `json:"id"`
	PingTS int64  `json:"ping_ts"`
	PongTS int64  `json:"pong_ts"`
}
