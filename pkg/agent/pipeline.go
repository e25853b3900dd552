package agent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/inbound-agent/pkg/llm"
	"github.com/teslashibe/inbound-agent/pkg/metrics"
	"github.com/teslashibe/inbound-agent/pkg/stt"
	"github.com/teslashibe/inbound-agent/pkg/vad"
)

// ingest feeds participant audio to VAD and STT.
func (a *Agent) ingest(p Participant, s stt.Stream, out chan<- vad.Event) {
	defer a.wg.Done()

	vs := a.opts.VAD.Stream()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-p.Done():
			return
		case f, ok := <-p.AudioFrames():
			if !ok {
				return
			}
			if err := s.PushFrame(f); err != nil {
				a.logger.Debug("stt push failed", "error", err)
			}
			for _, ev := range vs.Push(f) {
				// only speaking inference results matter downstream
				if ev.Type == vad.InferenceDone && !ev.Speaking {
					continue
				}
				select {
				case out <- ev:
				case <-a.ctx.Done():
					return
				}
			}
		}
	}
}

// userTurn is the pending user utterance. Owned by run.
type userTurn struct {
	speaking    bool
	finals      []string
	language    string
	speechEndAt time.Time
	lastFinalAt time.Time
	probability float64

	timer  *time.Timer
	timerC <-chan time.Time
}

func (t *userTurn) text() string {
	return strings.TrimSpace(strings.Join(t.finals, " "))
}

func (t *userTurn) stopTimer() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = nil
	t.timerC = nil
}

func (t *userTurn) reset() {
	t.stopTimer()
	t.finals = nil
	t.speechEndAt = time.Time{}
	t.lastFinalAt = time.Time{}
	t.probability = -1
}

// run owns the user turn: it reacts to VAD and STT events, schedules
// endpointing and commits finished turns.
func (a *Agent) run(p Participant, s stt.Stream, vadEvents <-chan vad.Event) {
	defer a.wg.Done()
	defer s.Close()

	t := &userTurn{probability: -1}
	defer t.stopTimer()

	sttEvents := s.Events()
	for {
		select {
		case <-a.ctx.Done():
			return

		case ev := <-vadEvents:
			a.onVAD(t, s, ev)

		case ev, ok := <-sttEvents:
			if !ok {
				a.logger.Warn("stt stream ended")
				sttEvents = nil
				continue
			}
			a.onSTT(t, p, ev)

		case <-t.timerC:
			t.timer = nil
			t.timerC = nil
			a.commitTurn(t)
		}
	}
}

func (a *Agent) onVAD(t *userTurn, s stt.Stream, ev vad.Event) {
	switch ev.Type {
	case vad.StartOfSpeech:
		t.speaking = true
		t.stopTimer()
		a.logger.Debug("user started speaking")

	case vad.InferenceDone:
		if ev.SpeechDuration >= a.opts.InterruptSpeechDuration {
			if cur := a.currentSpeech(); cur != nil && cur.interrupt(false) {
				a.logger.Info("speech interrupted by user", "speech_id", cur.ID())
			}
		}

	case vad.EndOfSpeech:
		t.speaking = false
		t.speechEndAt = ev.Timestamp
		a.emit(metrics.VADMetrics{
			Timestamp:         ev.Timestamp,
			IdleTime:          ev.IdleTime,
			InferenceCount:    ev.InferenceCount,
			InferenceDuration: ev.InferenceDuration,
		})
		if err := s.Flush(); err != nil {
			a.logger.Debug("stt flush failed", "error", err)
		}
		a.scheduleEndOfTurn(t)
	}
}

func (a *Agent) onSTT(t *userTurn, p Participant, ev stt.SpeechEvent) {
	switch ev.Type {
	case stt.InterimTranscript:
		if text := ev.Text(); text != "" {
			a.publishTranscript(p.Identity(), text, false)
		}

	case stt.FinalTranscript:
		text := strings.TrimSpace(ev.Text())
		if text == "" {
			return
		}
		if lang := ev.Alternatives[0].Language; lang != "" {
			t.language = lang
		}
		t.finals = append(t.finals, text)
		t.lastFinalAt = time.Now()
		a.publishTranscript(p.Identity(), text, true)
		a.logger.Debug("final transcript", "text", text, "language", t.language)
		if !t.speaking {
			a.scheduleEndOfTurn(t)
		}

	case stt.EndOfSpeech:
		if !t.speaking {
			a.scheduleEndOfTurn(t)
		}

	case stt.RecognitionUsage:
		a.emit(metrics.STTMetrics{
			RequestID:     ev.RequestID,
			Timestamp:     time.Now(),
			AudioDuration: ev.AudioDuration,
			Streamed:      true,
		})
	}
}

// scheduleEndOfTurn arms the endpointing timer for the pending transcript.
func (a *Agent) scheduleEndOfTurn(t *userTurn) {
	text := t.text()
	if text == "" || t.speaking {
		return
	}
	if t.speechEndAt.IsZero() {
		t.speechEndAt = time.Now()
	}

	lang := t.language
	if lang == "" {
		lang = a.opts.Language
	}

	delay := a.opts.Endpointing.MinDelay
	t.probability = -1
	if det := a.opts.TurnDetector; det != nil && det.SupportsLanguage(lang) {
		ctx, cancel := context.WithTimeout(a.ctx, eouTimeout)
		prob, err := det.PredictEndOfTurn(ctx, a.chatCtx.Copy().Append(llm.RoleUser, text))
		cancel()
		if err != nil {
			a.logger.Warn("turn detection failed", "error", err)
		} else {
			t.probability = prob
			if threshold, ok := det.UnlikelyThreshold(lang); ok {
				delay = a.opts.Endpointing.Delay(prob, threshold)
			}
		}
	}

	wait := delay - time.Since(t.speechEndAt)
	if wait < 0 {
		wait = 0
	}
	t.stopTimer()
	t.timer = time.NewTimer(wait)
	t.timerC = t.timer.C
	a.logger.Debug("end of turn scheduled", "probability", t.probability, "delay", delay, "wait", wait)
}

// commitTurn adds the user message to the chat context and queues a reply.
func (a *Agent) commitTurn(t *userTurn) {
	text := t.text()
	if text == "" {
		t.reset()
		return
	}

	now := time.Now()
	transcriptionDelay := t.lastFinalAt.Sub(t.speechEndAt)
	if transcriptionDelay < 0 {
		transcriptionDelay = 0
	}
	eou := metrics.EOUMetrics{
		SpeechID:            "SP_" + uuid.NewString()[:12],
		Timestamp:           now,
		EndOfUtteranceDelay: now.Sub(t.speechEndAt),
		TranscriptionDelay:  transcriptionDelay,
		Probability:         t.probability,
	}
	t.reset()

	a.chatCtx.Append(llm.RoleUser, text)
	a.logger.Info("user turn committed", "text", text, "eou_delay", eou.EndOfUtteranceDelay.Round(time.Millisecond))

	// a reply still thinking about the previous turn is stale now
	if cur := a.currentSpeech(); cur != nil && cur.reply && !cur.playing.Load() {
		cur.interrupt(false)
	}

	h := newSpeechHandle(a.ctx, "", true, true)
	h.id = eou.SpeechID
	a.emit(eou)

	select {
	case a.speechQ <- h:
	default:
		a.logger.Warn("dropping reply", "error", ErrSpeechQueueFull)
		h.finish(true)
	}
}
