package room

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/teslashibe/inbound-agent/pkg/audio"
	"github.com/teslashibe/inbound-agent/pkg/protocol"
)

// frameBuffer is how many decoded frames wait for the agent (~1s at 20ms).
const frameBuffer = 50

// conn is the part of a websocket connection a participant writes to.
type conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// RemoteParticipant is a caller connected over the websocket transport.
type RemoteParticipant struct {
	identity string
	sid      string
	name     string
	codec    audio.Codec
	joined   time.Time

	conn    conn
	writeMu sync.Mutex
	enc     *audio.Encoder

	// owned by the connection read loop
	depack *audio.Depacketizer

	frames     chan audio.Frame
	subscribed atomic.Bool

	done      chan struct{}
	closeOnce sync.Once

	packetsIn     atomic.Uint64
	framesDropped atomic.Uint64
}

func newRemoteParticipant(identity, name string, codec audio.Codec, c conn) (*RemoteParticipant, error) {
	enc, err := audio.NewEncoder(codec)
	if err != nil {
		return nil, err
	}
	return &RemoteParticipant{
		identity: identity,
		sid:      "PA_" + uuid.NewString()[:12],
		name:     name,
		codec:    codec,
		joined:   time.Now(),
		conn:     c,
		enc:      enc,
		depack:   audio.NewDepacketizer(),
		frames:   make(chan audio.Frame, frameBuffer),
		done:     make(chan struct{}),
	}, nil
}

// Identity returns the caller-chosen identity.
func (p *RemoteParticipant) Identity() string { return p.identity }

// SID returns the server-assigned participant ID.
func (p *RemoteParticipant) SID() string { return p.sid }

// Name returns the display name.
func (p *RemoteParticipant) Name() string { return p.name }

// Codec returns the negotiated media codec.
func (p *RemoteParticipant) Codec() audio.Codec { return p.codec }

// AudioFrames delivers decoded microphone audio while the agent is
// subscribed. The channel is never closed; select on Done as well.
func (p *RemoteParticipant) AudioFrames() <-chan audio.Frame { return p.frames }

// Done is closed when the participant disconnects.
func (p *RemoteParticipant) Done() <-chan struct{} { return p.done }

// Info returns the signalling description of the participant.
func (p *RemoteParticipant) Info() protocol.ParticipantInfo {
	return protocol.ParticipantInfo{
		Identity: p.identity,
		SID:      p.sid,
		Name:     p.name,
		Kind:     protocol.KindStandard,
	}
}

// Subscribed reports whether audio is being delivered to the agent.
func (p *RemoteParticipant) Subscribed() bool {
	return p.subscribed.Load()
}

// Send writes a signalling message.
func (p *RemoteParticipant) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *RemoteParticipant) setSubscribed(on bool) {
	p.subscribed.Store(on)
}

// writeAudio encodes f into RTP packets for this participant's codec.
func (p *RemoteParticipant) writeAudio(f audio.Frame) error {
	select {
	case <-p.done:
		return ErrRoomClosed
	default:
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	packets, err := p.enc.Encode(f)
	if err != nil {
		return err
	}
	for _, pkt := range packets {
		if err := p.conn.WriteMessage(websocket.BinaryMessage, pkt); err != nil {
			return err
		}
	}
	return nil
}

// handleMedia decodes one RTP packet from the caller.
func (p *RemoteParticipant) handleMedia(data []byte) error {
	p.packetsIn.Add(1)

	f, err := p.depack.Depacketize(data)
	if err != nil {
		return err
	}
	if !p.subscribed.Load() {
		return nil
	}

	select {
	case p.frames <- f:
	default:
		p.framesDropped.Add(1)
	}
	return nil
}

func (p *RemoteParticipant) close() {
	p.closeOnce.Do(func() {
		p.subscribed.Store(false)
		close(p.done)
		p.conn.Close()
	})
}
