package protocol

import "time"

// NewJoinedMessage acknowledges a participant join.
func NewJoinedMessage(data JoinedData) (*Message, error) {
	return NewMessage(TypeJoined, data)
}

// NewParticipantJoinedMessage announces a new room member.
func NewParticipantJoinedMessage(p ParticipantInfo) (*Message, error) {
	return NewMessage(TypeParticipantJoined, p)
}

// NewParticipantLeftMessage announces a departed room member.
func NewParticipantLeftMessage(p ParticipantInfo) (*Message, error) {
	return NewMessage(TypeParticipantLeft, p)
}

// NewAgentStateMessage reports an agent state change.
func NewAgentStateMessage(state string) (*Message, error) {
	return NewMessage(TypeAgentState, AgentStateData{State: state})
}

// NewTranscriptMessage carries speech text for a participant.
func NewTranscriptMessage(identity, text string, final bool) (*Message, error) {
	return NewMessage(TypeTranscript, TranscriptData{
		Identity: identity,
		Text:     text,
		Final:    final,
	})
}

// NewPongMessage answers a ping.
func NewPongMessage(id string, pingTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:     id,
		PingTS: pingTS,
		PongTS: time.Now().UnixMilli(),
	})
}
