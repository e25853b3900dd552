package room

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/inbound-agent/pkg/audio"
	"github.com/teslashibe/inbound-agent/pkg/protocol"
)

func startTestServer(t *testing.T, srv *Server, addr string) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	srv.RegisterRoutes(app)
	srv.RegisterAPIRoutes(app.Group("/api"))

	go app.Listen(addr)
	time.Sleep(100 * time.Millisecond)
	return app
}

func readMessage(t *testing.T, ws *websocket.Conn) *protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("Read error: %v", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			t.Fatal(err)
		}
		return msg
	}
}

func TestNewServer(t *testing.T) {
	srv := NewServer(nil)

	if len(srv.Rooms()) != 0 {
		t.Error("Rooms should be empty initially")
	}
	stats := srv.Stats()
	if stats.Rooms != 0 || stats.RoomsCreated != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if srv.Room("nonexistent") != nil {
		t.Error("Room should return nil for unknown name")
	}
}

func TestParticipantJoin(t *testing.T) {
	srv := NewServer(nil)

	var created atomic.Int32
	srv.OnRoomCreated(func(r *Room) {
		created.Add(1)
	})

	app := startTestServer(t, srv, ":18090")
	defer app.Shutdown()

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18090/rtc/call-1?identity=caller&codec=pcm16", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	msg := readMessage(t, ws)
	if msg.Type != protocol.TypeJoined {
		t.Fatalf("Type = %s, want joined", msg.Type)
	}
	var joined protocol.JoinedData
	msg.ParseData(&joined)
	if joined.Room != "call-1" || joined.Participant.Identity != "caller" {
		t.Errorf("joined = %+v", joined)
	}
	if joined.PayloadType != audio.PayloadTypePCM16 || joined.SampleRate != audio.SampleRate16k {
		t.Errorf("media = pt %d @ %d", joined.PayloadType, joined.SampleRate)
	}

	// A second caller joins the existing room
	ws2, _, err := websocket.DefaultDialer.Dial("ws://localhost:18090/rtc/call-1?identity=second", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	readMessage(t, ws2)

	time.Sleep(50 * time.Millisecond)
	if n := created.Load(); n != 1 {
		t.Errorf("OnRoomCreated fired %d times, want 1", n)
	}

	r := srv.Room("call-1")
	if r == nil {
		t.Fatal("room not registered")
	}
	if n := len(r.Participants()); n != 2 {
		t.Errorf("participants = %d, want 2", n)
	}

	ws2.Close()
	ws.Close()
	time.Sleep(100 * time.Millisecond)

	if srv.Room("call-1") != nil {
		t.Error("room should close after the last participant leaves")
	}
	select {
	case <-r.Done():
	default:
		t.Error("room Done not closed")
	}
}

func TestDuplicateIdentityRejected(t *testing.T) {
	srv := NewServer(nil)
	app := startTestServer(t, srv, ":18091")
	defer app.Shutdown()

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18091/rtc/dup?identity=caller", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()
	readMessage(t, ws)

	ws2, _, err := websocket.DefaultDialer.Dial("ws://localhost:18091/rtc/dup?identity=caller", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws2.Close()

	ws2.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws2.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Errorf("expected policy violation close, got %v", err)
	}
}

func TestAgentAudioRoundTrip(t *testing.T) {
	srv := NewServer(nil)

	rooms := make(chan *Room, 1)
	srv.OnRoomCreated(func(r *Room) { rooms <- r })

	app := startTestServer(t, srv, ":18092")
	defer app.Shutdown()

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18092/rtc/audio?identity=caller&codec=pcm16", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()
	readMessage(t, ws)

	var r *Room
	select {
	case r = <-rooms:
	case <-time.After(time.Second):
		t.Fatal("room not created")
	}

	ctx := context.Background()
	if err := r.Connect(ctx, AudioOnly); err != nil {
		t.Fatal(err)
	}
	p, err := r.WaitForParticipant(ctx, "caller")
	if err != nil {
		t.Fatal(err)
	}

	if msg := readMessage(t, ws); msg.Type != protocol.TypeParticipantJoined {
		t.Errorf("Type = %s, want participant_joined", msg.Type)
	}

	// Caller to agent
	pk := audio.NewPacketizer(audio.PayloadTypePCM16)
	silence := audio.Silence(audio.FrameDuration, audio.SampleRate16k)
	pkt, _ := pk.Packetize(silence.Bytes(), len(silence.Samples))
	ws.WriteMessage(websocket.BinaryMessage, pkt)

	select {
	case f := <-p.AudioFrames():
		if len(f.Samples) != len(silence.Samples) {
			t.Errorf("samples = %d, want %d", len(f.Samples), len(silence.Samples))
		}
	case <-time.After(time.Second):
		t.Fatal("no frame delivered to agent")
	}

	// Agent to caller
	if err := r.PublishAudio(ctx, audio.Silence(audio.FrameDuration, audio.SampleRate16k)); err != nil {
		t.Fatal(err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("Read error: %v", err)
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		f, err := audio.NewDepacketizer().Depacketize(data)
		if err != nil {
			t.Fatalf("Depacketize: %v", err)
		}
		if f.SampleRate != audio.SampleRate16k || f.Duration() != audio.FrameDuration {
			t.Errorf("frame = %d Hz %v", f.SampleRate, f.Duration())
		}
		break
	}

	if stats := srv.Stats(); stats.PacketsReceived < 1 {
		t.Error("PacketsReceived should be at least 1")
	}
}

func TestPing(t *testing.T) {
	srv := NewServer(nil)
	app := startTestServer(t, srv, ":18093")
	defer app.Shutdown()

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18093/rtc/ping", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()
	readMessage(t, ws)

	ping, _ := protocol.NewMessage(protocol.TypePing, protocol.PingData{ID: "p1", Timestamp: 42})
	data, _ := ping.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	msg := readMessage(t, ws)
	if msg.Type != protocol.TypePong {
		t.Fatalf("Type = %s, want pong", msg.Type)
	}
	var pong protocol.PongData
	msg.ParseData(&pong)
	if pong.ID != "p1" || pong.PingTS != 42 {
		t.Errorf("pong = %+v", pong)
	}
}

func TestAPIRooms(t *testing.T) {
	srv := NewServer(nil)
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	srv.RegisterAPIRoutes(app.Group("/api"))

	p, _ := newTestParticipant(t, "caller")
	r, created, err := srv.join("api-room", p)
	if err != nil || !created {
		t.Fatalf("join: created=%v err=%v", created, err)
	}

	req := httptest.NewRequest("GET", "/api/rooms/", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	var list struct {
		Rooms []RoomInfo `json:"rooms"`
		Count int        `json:"count"`
	}
	json.Unmarshal(body, &list)
	if list.Count != 1 || list.Rooms[0].Name != "api-room" {
		t.Errorf("list = %s", body)
	}

	req = httptest.NewRequest("GET", "/api/rooms/missing", nil)
	resp, _ = app.Test(req)
	if resp.StatusCode != 404 {
		t.Errorf("Status = %d, want 404", resp.StatusCode)
	}

	req = httptest.NewRequest("DELETE", "/api/rooms/api-room", nil)
	resp, _ = app.Test(req)
	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}
	select {
	case <-r.Done():
	default:
		t.Error("room should be closed")
	}
	if srv.Stats().Rooms != 0 {
		t.Error("room should be removed")
	}
}
