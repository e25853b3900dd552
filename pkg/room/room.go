// Package room hosts voice rooms over a websocket transport.
//
// Callers connect to /rtc/:room and exchange RTP audio as binary messages
// and JSON signalling (package protocol) as text messages. The agent joins a
// room in-process through Room.Connect.
package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/inbound-agent/pkg/audio"
	"github.com/teslashibe/inbound-agent/pkg/protocol"
)

var (
	// ErrRoomClosed is returned when operating on a closed room.
	ErrRoomClosed = errors.New("room: closed")

	// ErrAlreadyConnected is returned by a second Connect.
	ErrAlreadyConnected = errors.New("room: already connected")

	// ErrNotConnected is returned when publishing before Connect.
	ErrNotConnected = errors.New("room: not connected")

	// ErrDuplicateIdentity is returned when a participant identity is taken.
	ErrDuplicateIdentity = errors.New("room: identity already present")
)

// AutoSubscribe selects which remote tracks the agent receives.
type AutoSubscribe int

const (
	SubscribeAll AutoSubscribe = iota
	SubscribeNone
	AudioOnly
	VideoOnly
)

func (a AutoSubscribe) String() string {
	switch a {
	case SubscribeAll:
		return "subscribe_all"
	case SubscribeNone:
		return "subscribe_none"
	case AudioOnly:
		return "audio_only"
	case VideoOnly:
		return "video_only"
	default:
		return "unknown"
	}
}

// Audio reports whether the mode includes audio tracks.
func (a AutoSubscribe) Audio() bool {
	return a == SubscribeAll || a == AudioOnly
}

// AgentIdentity is the identity the in-process agent appears under.
const AgentIdentity = "agent"

// Room is one voice session.
type Room struct {
	name    string
	sid     string
	created time.Time
	logger  *slog.Logger

	mu           sync.Mutex
	participants map[string]*RemoteParticipant
	order        []*RemoteParticipant
	connected    bool
	subscribe    AutoSubscribe
	changed      chan struct{}
	closed       bool
	done         chan struct{}
}

func newRoom(name string, logger *slog.Logger) *Room {
	return &Room{
		name:         name,
		sid:          "RM_" + uuid.NewString()[:12],
		created:      time.Now(),
		logger:       logger.With("room", name),
		participants: make(map[string]*RemoteParticipant),
		changed:      make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Name returns the room name.
func (r *Room) Name() string { return r.name }

// SID returns the server-assigned room ID.
func (r *Room) SID() string { return r.sid }

// Done is closed when the room closes.
func (r *Room) Done() <-chan struct{} { return r.done }

// Connected reports whether the agent is connected.
func (r *Room) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// Connect joins the agent to the room with the given subscription.
func (r *Room) Connect(ctx context.Context, sub AutoSubscribe) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomClosed
	}
	if r.connected {
		r.mu.Unlock()
		return ErrAlreadyConnected
	}
	r.connected = true
	r.subscribe = sub
	for _, p := range r.order {
		p.setSubscribed(sub.Audio())
	}
	peers := r.peersLocked()
	r.mu.Unlock()

	r.logger.Info("agent connected", "auto_subscribe", sub.String())
	msg, err := protocol.NewParticipantJoinedMessage(agentInfo())
	if err == nil {
		broadcast(peers, msg)
	}
	return nil
}

// Disconnect removes the agent from the room.
func (r *Room) Disconnect() {
	r.mu.Lock()
	if !r.connected {
		r.mu.Unlock()
		return
	}
	r.connected = false
	for _, p := range r.order {
		p.setSubscribed(false)
	}
	peers := r.peersLocked()
	r.mu.Unlock()

	r.logger.Info("agent disconnected")
	msg, err := protocol.NewParticipantLeftMessage(agentInfo())
	if err == nil {
		broadcast(peers, msg)
	}
}

// WaitForParticipant blocks until a remote participant is present and
// returns the earliest one matching identity ("" matches any).
// It returns ErrRoomClosed if the room closes first.
func (r *Room) WaitForParticipant(ctx context.Context, identity string) (*RemoteParticipant, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrRoomClosed
		}
		for _, p := range r.order {
			if identity == "" || p.identity == identity {
				r.mu.Unlock()
				return p, nil
			}
		}
		changed := r.changed
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.done:
			return nil, ErrRoomClosed
		case <-changed:
		}
	}
}

// Participant returns a remote participant by identity.
func (r *Room) Participant(identity string) *RemoteParticipant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participants[identity]
}

// Participants returns remote participants in join order.
func (r *Room) Participants() []*RemoteParticipant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peersLocked()
}

// PublishAudio sends a frame to every remote participant.
func (r *Room) PublishAudio(ctx context.Context, f audio.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomClosed
	}
	if !r.connected {
		r.mu.Unlock()
		return ErrNotConnected
	}
	peers := r.peersLocked()
	r.mu.Unlock()

	for _, p := range peers {
		if err := p.writeAudio(f); err != nil {
			r.logger.Debug("audio write failed", "identity", p.identity, "error", err)
		}
	}
	return nil
}

// PublishTranscript sends speech text to every remote participant.
func (r *Room) PublishTranscript(identity, text string, final bool) error {
	msg, err := protocol.NewTranscriptMessage(identity, text, final)
	if err != nil {
		return err
	}
	return r.publish(msg)
}

// PublishState sends the agent state to every remote participant.
func (r *Room) PublishState(state string) error {
	msg, err := protocol.NewAgentStateMessage(state)
	if err != nil {
		return err
	}
	return r.publish(msg)
}

func (r *Room) publish(msg *protocol.Message) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomClosed
	}
	peers := r.peersLocked()
	r.mu.Unlock()

	broadcast(peers, msg)
	return nil
}

// Close closes the room and every participant connection.
func (r *Room) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.connected = false
	peers := r.peersLocked()
	close(r.done)
	r.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
	r.logger.Info("room closed", "lifetime", time.Since(r.created).Round(time.Millisecond))
}

// Info returns a snapshot for the REST API.
func (r *Room) Info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := RoomInfo{
		Name:           r.name,
		SID:            r.sid,
		Created:        r.created,
		AgentConnected: r.connected,
		Participants:   make([]protocol.ParticipantInfo, 0, len(r.order)),
	}
	for _, p := range r.order {
		info.Participants = append(info.Participants, p.Info())
	}
	return info
}

// join adds p, returning ErrRoomClosed or ErrDuplicateIdentity.
func (r *Room) join(p *RemoteParticipant) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomClosed
	}
	if _, ok := r.participants[p.identity]; ok {
		r.mu.Unlock()
		return ErrDuplicateIdentity
	}
	peers := r.peersLocked()
	r.participants[p.identity] = p
	r.order = append(r.order, p)
	p.setSubscribed(r.connected && r.subscribe.Audio())
	r.notifyLocked()
	r.mu.Unlock()

	r.logger.Info("participant joined", "identity", p.identity, "sid", p.sid, "codec", p.codec)
	msg, err := protocol.NewParticipantJoinedMessage(p.Info())
	if err == nil {
		broadcast(peers, msg)
	}
	return nil
}

// leave removes p and reports whether the room is now empty.
func (r *Room) leave(p *RemoteParticipant) bool {
	r.mu.Lock()
	if r.participants[p.identity] != p {
		empty := len(r.order) == 0
		r.mu.Unlock()
		return empty
	}
	delete(r.participants, p.identity)
	for i, q := range r.order {
		if q == p {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.notifyLocked()
	peers := r.peersLocked()
	empty := len(r.order) == 0
	r.mu.Unlock()

	p.close()
	r.logger.Info("participant left", "identity", p.identity)
	msg, err := protocol.NewParticipantLeftMessage(p.Info())
	if err == nil {
		broadcast(peers, msg)
	}
	return empty
}

func (r *Room) notifyLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

func (r *Room) peersLocked() []*RemoteParticipant {
	out := make([]*RemoteParticipant, len(r.order))
	copy(out, r.order)
	return out
}

func broadcast(peers []*RemoteParticipant, msg *protocol.Message) {
	for _, p := range peers {
		p.Send(msg)
	}
}

func agentInfo() protocol.ParticipantInfo {
	return protocol.ParticipantInfo{
		Identity: AgentIdentity,
		SID:      "PA_" + AgentIdentity,
		Kind:     protocol.KindAgent,
	}
}
