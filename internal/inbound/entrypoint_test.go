package inbound

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/inbound-agent/pkg/llm"
	"github.com/teslashibe/inbound-agent/pkg/persona"
	"github.com/teslashibe/inbound-agent/pkg/protocol"
	"github.com/teslashibe/inbound-agent/pkg/stt"
	"github.com/teslashibe/inbound-agent/pkg/tts"
	"github.com/teslashibe/inbound-agent/pkg/worker"
)

func TestEntrypointGreetsCaller(t *testing.T) {
	p, _ := persona.Get("epacific-en")
	p.Greeting = "Hello, how can I help?"

	handler := &Handler{
		Persona: p,
		Providers: func(p persona.Persona) (*Providers, error) {
			return &Providers{STT: stt.NewMock(), LLM: llm.NewMock("Sure."), TTS: tts.NewMock()}, nil
		},
	}

	w, err := worker.New(worker.Options{
		AgentName:  "inbound-agent-test",
		ListenAddr: ":18100",
		Prewarm:    Prewarm,
		Entrypoint: handler.Entrypoint,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18100/rtc/support?identity=caller", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}

	var (
		audioPackets int
		greeted      bool
	)
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for !greeted {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v (audio packets %d)", err, audioPackets)
		}
		if mt == websocket.BinaryMessage {
			audioPackets++
			continue
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil || msg.Type != protocol.TypeTranscript {
			continue
		}
		var tr protocol.TranscriptData
		msg.ParseData(&tr)
		if tr.Final && strings.Contains(tr.Text, "Hello") {
			greeted = true
		}
	}
	if audioPackets == 0 {
		t.Error("greeting produced no audio")
	}

	ws.Close()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		jobs := w.Jobs()
		if len(jobs) == 1 && jobs[0].State == worker.JobSucceeded {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job did not finish after the caller left: %+v", w.Jobs())
}
