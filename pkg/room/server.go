package room

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/inbound-agent/pkg/audio"
	"github.com/teslashibe/inbound-agent/pkg/protocol"
)

// Server manages rooms and the participant websocket endpoint.
type Server struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	logger *slog.Logger

	onRoomCreated func(*Room)

	// Stats
	messagesReceived atomic.Uint64
	packetsReceived  atomic.Uint64
	roomsCreated     atomic.Uint64
}

// NewServer creates an empty room server.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		rooms:  make(map[string]*Room),
		logger: logger.With("component", "room.server"),
	}
}

// OnRoomCreated sets the callback fired once per room when its first
// participant joins. The callback must not block.
func (s *Server) OnRoomCreated(callback func(*Room)) {
	s.mu.Lock()
	s.onRoomCreated = callback
	s.mu.Unlock()
}

// RegisterRoutes registers the participant endpoint on a Fiber app
func (s *Server) RegisterRoutes(app *fiber.App) {
	app.Use("/rtc", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/rtc/:room", websocket.New(s.handleParticipant))
}

// handleParticipant serves one caller connection.
func (s *Server) handleParticipant(c *websocket.Conn) {
	roomName := c.Params("room")
	identity := c.Query("identity")
	if identity == "" {
		identity = "caller-" + uuid.NewString()[:8]
	}
	codec := audio.ParseCodec(c.Query("codec"))

	p, err := newRemoteParticipant(identity, c.Query("name"), codec, c)
	if err != nil {
		s.logger.Error("participant setup failed", "room", roomName, "error", err)
		return
	}

	r, created, err := s.join(roomName, p)
	if err != nil {
		s.logger.Warn("join rejected", "room", roomName, "identity", identity, "error", err)
		c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		return
	}
	defer s.leave(r, p)

	joined, err := protocol.NewJoinedMessage(protocol.JoinedData{
		Room:         r.Name(),
		RoomSID:      r.SID(),
		Participant:  p.Info(),
		Codec:        string(codec),
		PayloadType:  codec.PayloadType(),
		SampleRate:   codec.ClockRate(),
		Participants: participantInfos(r),
	})
	if err == nil {
		p.Send(joined)
	}

	if created {
		s.mu.RLock()
		cb := s.onRoomCreated
		s.mu.RUnlock()
		if cb != nil {
			cb(r)
		}
	}

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			s.logger.Debug("participant read ended", "room", roomName, "identity", identity, "error", err)
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			s.packetsReceived.Add(1)
			if err := p.handleMedia(data); err != nil {
				s.logger.Debug("dropping media", "identity", identity, "error", err)
			}
		case websocket.TextMessage:
			s.messagesReceived.Add(1)
			s.handleSignal(p, data)
		}
	}
}

// handleSignal processes a text message from a caller
func (s *Server) handleSignal(p *RemoteParticipant, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.logger.Debug("parse error", "identity", p.identity, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		var ping protocol.PingData
		msg.ParseData(&ping)
		ts := ping.Timestamp
		if ts == 0 {
			ts = msg.Timestamp
		}
		if pong, err := protocol.NewPongMessage(ping.ID, ts); err == nil {
			p.Send(pong)
		}
	}
}

// join adds p to the named room, creating the room if needed.
func (s *Server) join(name string, p *RemoteParticipant) (*Room, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[name]
	if !ok {
		r = newRoom(name, s.logger)
		s.rooms[name] = r
		s.roomsCreated.Add(1)
	}
	if err := r.join(p); err != nil {
		if !ok {
			delete(s.rooms, name)
		}
		return nil, false, err
	}
	return r, !ok, nil
}

// leave removes p and closes the room once it is empty.
func (s *Server) leave(r *Room, p *RemoteParticipant) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.leave(p) {
		if s.rooms[r.Name()] == r {
			delete(s.rooms, r.Name())
		}
		r.Close()
	}
}

// Room returns a room by name, or nil.
func (s *Server) Room(name string) *Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[name]
}

// Rooms returns info about all open rooms sorted by name.
func (s *Server) Rooms() []RoomInfo {
	s.mu.RLock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		infos = append(infos, r.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// CloseRoom closes a room and disconnects its participants.
func (s *Server) CloseRoom(name string) bool {
	s.mu.Lock()
	r, ok := s.rooms[name]
	if ok {
		delete(s.rooms, name)
	}
	s.mu.Unlock()

	if ok {
		r.Close()
	}
	return ok
}

// CloseAll closes every room.
func (s *Server) CloseAll() {
	s.mu.Lock()
	rooms := s.rooms
	s.rooms = make(map[string]*Room)
	s.mu.Unlock()

	for _, r := range rooms {
		r.Close()
	}
}

// Stats contains server statistics
type Stats struct {
	Rooms            int    `json:"rooms"`
	RoomsCreated     uint64 `json:"rooms_created"`
	MessagesReceived uint64 `json:"messages_received"`
	PacketsReceived  uint64 `json:"packets_received"`
}

// Stats returns server statistics
func (s *Server) Stats() Stats {
	s.mu.RLock()
	n := len(s.rooms)
	s.mu.RUnlock()

	return Stats{
		Rooms:            n,
		RoomsCreated:     s.roomsCreated.Load(),
		MessagesReceived: s.messagesReceived.Load(),
		PacketsReceived:  s.packetsReceived.Load(),
	}
}

// RoomInfo contains info about an open room
type RoomInfo struct {
	Name           string                     `json:"name"`
	SID            string                     `json:"sid"`
	Created        time.Time                  `json:"created"`
	AgentConnected bool                       `json:"agent_connected"`
	Participants   []protocol.ParticipantInfo `json:"participants"`
}

// RegisterAPIRoutes registers room management routes
func (s *Server) RegisterAPIRoutes(api fiber.Router) {
	rooms := api.Group("/rooms")

	rooms.Get("/", func(c *fiber.Ctx) error {
		infos := s.Rooms()
		return c.JSON(fiber.Map{
			"rooms": infos,
			"count": len(infos),
		})
	})

	rooms.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.Stats())
	})

	rooms.Get("/:name", func(c *fiber.Ctx) error {
		r := s.Room(c.Params("name"))
		if r == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "room not found"})
		}
		return c.JSON(r.Info())
	})

	rooms.Delete("/:name", func(c *fiber.Ctx) error {
		if !s.CloseRoom(c.Params("name")) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "room not found"})
		}
		return c.JSON(fiber.Map{"status": "closed"})
	})
}

func participantInfos(r *Room) []protocol.ParticipantInfo {
	peers := r.Participants()
	infos := make([]protocol.ParticipantInfo, 0, len(peers)+1)
	for _, p := range peers {
		infos = append(infos, p.Info())
	}
	if r.Connected() {
		infos = append(infos, agentInfo())
	}
	return infos
}
