package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/inbound-agent/pkg/audio"
)

const (
	providerDeepgram = "deepgram"

	closeTimeout = 2 * time.Second
	eventBuffer  = 64
)

// Deepgram is a live streaming recognizer.
type Deepgram struct {
	config *Config
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewDeepgram creates a Deepgram provider.
func NewDeepgram(opts ...Option) (*Deepgram, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Deepgram{
		config: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout,
		},
		logger: cfg.Logger.With("component", "stt.deepgram"),
	}, nil
}

// URL returns the listen endpoint with query parameters applied.
func (d *Deepgram) URL() string {
	c := d.config
	q := url.Values{}
	q.Set("model", c.Model)
	q.Set("language", c.Language)
	q.Set("interim_results", strconv.FormatBool(c.InterimResults))
	q.Set("smart_format", strconv.FormatBool(c.SmartFormat))
	q.Set("punctuate", strconv.FormatBool(c.Punctuate))
	q.Set("filler_words", strconv.FormatBool(c.FillerWords))
	q.Set("profanity_filter", strconv.FormatBool(c.ProfanityFilter))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(c.SampleRate))
	q.Set("channels", "1")
	q.Set("vad_events", "true")
	if c.EndpointingMs > 0 {
		q.Set("endpointing", strconv.Itoa(c.EndpointingMs))
	}
	if c.InterimResults {
		q.Set("utterance_end_ms", "1000")
	}
	for _, k := range c.Keywords {
		q.Add("keywords", k)
	}
	return c.BaseURL + "?" + q.Encode()
}

// Stream opens a live recognition session.
func (d *Deepgram) Stream(ctx context.Context) (Stream, error) {
	header := http.Header{}
	header.Set("Authorization", "Token "+d.config.APIKey)

	conn, resp, err := d.dialer.DialContext(ctx, d.URL(), header)
	if err != nil {
		if resp != nil {
			return nil, WrapError(providerDeepgram, fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode))
		}
		return nil, WrapError(providerDeepgram, fmt.Errorf("dial: %w", err))
	}

	s := &deepgramStream{
		conn:     conn,
		config:   d.config,
		logger:   d.logger,
		events:   make(chan SpeechEvent, eventBuffer),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.keepAliveLoop()

	d.logger.Debug("stream opened", "model", d.config.Model, "language", d.config.Language)
	return s, nil
}

// Close releases resources.
func (d *Deepgram) Close() error {
	return nil
}

type controlMessage struct {
	Type string `json:"type"`
}

type deepgramStream struct {
	conn   *websocket.Conn
	config *Config
	logger *slog.Logger

	events   chan SpeechEvent
	done     chan struct{}
	readDone chan struct{}
	wg       sync.WaitGroup

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu      sync.Mutex
	closed  bool
	pending time.Duration

	// owned by readLoop
	speaking  bool
	requestID string
}

func (s *deepgramStream) Events() <-chan SpeechEvent {
	return s.events
}

func (s *deepgramStream) PushFrame(f audio.Frame) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	s.mu.Unlock()

	f = f.Resample(s.config.SampleRate)

	s.writeMu.Lock()
	err := s.conn.WriteMessage(websocket.BinaryMessage, f.Bytes())
	s.writeMu.Unlock()
	if err != nil {
		return WrapError(providerDeepgram, fmt.Errorf("write audio: %w", err))
	}

	s.mu.Lock()
	s.pending += f.Duration()
	s.mu.Unlock()
	return nil
}

func (s *deepgramStream) Flush() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrStreamClosed
	}
	return s.writeJSON(controlMessage{Type: "Finalize"})
}

func (s *deepgramStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if werr := s.writeJSON(controlMessage{Type: "CloseStream"}); werr == nil {
			select {
			case <-s.readDone:
			case <-time.After(closeTimeout):
			}
		}

		close(s.done)
		err = s.conn.Close()
		s.wg.Wait()

		if u, ok := s.takeUsage(); ok {
			select {
			case s.events <- u:
			default:
			}
		}
		close(s.events)
	})
	return err
}

func (s *deepgramStream) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		return WrapError(providerDeepgram, err)
	}
	return nil
}

func (s *deepgramStream) emit(e SpeechEvent) {
	select {
	case s.events <- e:
	case <-s.done:
	}
}

func (s *deepgramStream) takeUsage() (SpeechEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending <= 0 {
		return SpeechEvent{}, false
	}
	e := SpeechEvent{Type: RecognitionUsage, RequestID: s.requestID, AudioDuration: s.pending}
	s.pending = 0
	return e, true
}

func (s *deepgramStream) keepAliveLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.writeJSON(controlMessage{Type: "KeepAlive"}); err != nil {
				s.logger.Debug("keepalive failed", "error", err)
			}
			if u, ok := s.takeUsage(); ok {
				s.emit(u)
			}
		}
	}
}

func (s *deepgramStream) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.logger.Warn("read failed", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg resultMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("skipping malformed message", "error", err)
			continue
		}
		s.handle(msg)
	}
}

func (s *deepgramStream) handle(msg resultMessage) {
	switch msg.Type {
	case "Metadata":
		s.setRequestID(msg.RequestID)

	case "SpeechStarted":
		if !s.speaking {
			s.speaking = true
			s.emit(SpeechEvent{Type: StartOfSpeech, RequestID: s.requestID})
		}

	case "Results":
		s.setRequestID(msg.Metadata.RequestID)
		alts := s.alternatives(msg)
		text := ""
		if len(alts) > 0 {
			text = alts[0].Text
		}

		if text != "" && !s.speaking {
			s.speaking = true
			s.emit(SpeechEvent{Type: StartOfSpeech, RequestID: s.requestID})
		}

		if text != "" {
			typ := InterimTranscript
			if msg.IsFinal {
				typ = FinalTranscript
			}
			s.emit(SpeechEvent{Type: typ, RequestID: s.requestID, Alternatives: alts})
		}

		if msg.SpeechFinal && s.speaking {
			s.speaking = false
			s.emit(SpeechEvent{Type: EndOfSpeech, RequestID: s.requestID})
		}

	case "UtteranceEnd":
		if s.speaking {
			s.speaking = false
			s.emit(SpeechEvent{Type: EndOfSpeech, RequestID: s.requestID})
		}
	}
}

func (s *deepgramStream) setRequestID(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.requestID = id
	s.mu.Unlock()
}

func (s *deepgramStream) alternatives(msg resultMessage) []SpeechData {
	start := seconds(msg.Start)
	end := seconds(msg.Start + msg.Duration)

	out := make([]SpeechData, 0, len(msg.Channel.Alternatives))
	for _, alt := range msg.Channel.Alternatives {
		lang := s.config.Language
		if len(alt.Languages) > 0 {
			lang = alt.Languages[0]
		}
		out = append(out, SpeechData{
			Text:       alt.Transcript,
			Language:   lang,
			Confidence: alt.Confidence,
			StartTime:  start,
			EndTime:    end,
		})
	}
	return out
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// resultMessage covers the Results, SpeechStarted, UtteranceEnd and
// Metadata server messages.
type resultMessage struct {
	Type        string  `json:"type"`
	Start       float64 `json:"start"`
	Duration    float64 `json:"duration"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string   `json:"transcript"`
			Confidence float64  `json:"confidence"`
			Languages  []string `json:"languages"`
		} `json:"alternatives"`
	} `json:"channel"`
	Metadata struct {
		RequestID string `json:"request_id"`
	} `json:"metadata"`
	RequestID string `json:"request_id"`
}

var _ Provider = (*Deepgram)(nil)
