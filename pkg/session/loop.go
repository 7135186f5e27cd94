package session

import (
	"context"
	"errors"
	"time"

	"github.com/teslashibe/go-companion/pkg/calibration"
	"github.com/teslashibe/go-companion/pkg/playback"
	"github.com/teslashibe/go-companion/pkg/recognition"
	"github.com/teslashibe/go-companion/pkg/response"
	"github.com/teslashibe/go-companion/pkg/transcript"
	"github.com/teslashibe/go-companion/pkg/voice"
)

// Everything in this file runs on the loop goroutine unless it is inside
// a go statement. Workers report back through post and carry the
// generation they were started under.

func (o *Orchestrator) publish() {
	flagsFor(&o.st)
	st := o.st

	o.snapMu.Lock()
	o.snapshot = st
	o.snapMu.Unlock()

	o.broadcast(Update{Status: &st})
}

func (o *Orchestrator) broadcast(u Update) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, s := range o.subs {
		s.push(u)
	}
}

func (o *Orchestrator) setPhase(p Phase) {
	if o.st.Phase != p {
		o.logger.Debug("phase", "from", o.st.Phase, "to", p)
	}
	o.st.Phase = p
	o.publish()
}

func (o *Orchestrator) appendMessage(msg voice.Message) {
	o.snapMu.Lock()
	o.messages = append(o.messages, msg)
	o.snapMu.Unlock()

	if o.log != nil {
		o.log.Append(msg)
	}
	o.broadcast(Update{Message: &msg})
}

// advance supersedes all in-flight work.
func (o *Orchestrator) advance() uint64 {
	o.gen++
	o.cancelWork()
	o.work, o.cancelWork = context.WithCancel(o.base)
	o.cancelAutoListen()
	return o.gen
}

func (o *Orchestrator) clearError() {
	o.lastErr = nil
	o.st.ErrorMessage = ""
	o.st.ErrorKind = voice.KindUnknown
	o.st.Recoverable = false
}

func (o *Orchestrator) acquireMic(ctx context.Context) bool {
	select {
	case o.mic <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) releaseMic() {
	<-o.mic
}

func (o *Orchestrator) startListening() error {
	if o.recognizer == nil {
		return ErrNoRecognizer
	}
	switch o.st.Phase {
	case PhaseError:
		return ErrRetryRequired
	case PhaseAggregating, PhaseResponding:
		return ErrBusy
	case PhaseCalibrating, PhaseListening:
		return nil
	case PhaseSpeaking:
		o.speaker.Cancel()
	}

	gen := o.advance()
	ctx := o.work
	o.clearError()
	o.st.InterimText = ""
	o.st.ReplyText = ""
	o.st.Warning = ""
	o.st.AudioLevel = 0
	o.st.Capability = ""
	o.userStopped = false
	o.metrics.MarkStart()

	if o.calibrator == nil || !(o.needCalibrate || o.cfg.CalibrateEveryAttempt) {
		o.setPhase(PhaseListening)
		o.listen(gen)
		return nil
	}

	o.setPhase(PhaseCalibrating)
	window := o.cfg.CalibrationWindow
	go func() {
		if !o.acquireMic(ctx) {
			return
		}
		res, err := o.calibrator.Calibrate(ctx, window)
		o.releaseMic()
		o.post(func() { o.calibrated(gen, res, err) })
	}()
	return nil
}

func (o *Orchestrator) calibrated(gen uint64, res calibration.Result, err error) {
	if gen != o.gen {
		return
	}
	if err != nil {
		o.listenFailed(voice.AsError(err))
		return
	}
	o.needCalibrate = false
	o.metrics.MarkCalibrated()
	if !res.Usable {
		o.st.Warning = res.Warning
	}
	o.setPhase(PhaseListening)
	o.listen(gen)
}

func (o *Orchestrator) listen(gen uint64) {
	ctx := o.work
	lang := o.st.Language
	opts := recognition.ListenOptions{ForceCloud: o.forceCloud}

	go func() {
		if !o.acquireMic(ctx) {
			return
		}
		s, err := o.recognizer.Listen(ctx, lang, opts)
		if err != nil {
			o.releaseMic()
		} else {
			go func() {
				<-s.Done()
				o.releaseMic()
			}()
		}
		o.post(func() { o.listening(gen, s, err) })
	}()
}

func (o *Orchestrator) listening(gen uint64, s *recognition.Stream, err error) {
	if gen != o.gen {
		if s != nil {
			s.Abort()
		}
		return
	}
	if err != nil {
		o.listenFailed(voice.AsError(err))
		return
	}

	o.stream = s
	o.st.Capability = s.Capability
	o.publish()

	ctx := o.work
	hooks := transcript.Hooks{
		Interim: func(text string) {
			o.post(func() {
				if gen == o.gen && o.st.Phase.Busy() {
					o.st.InterimText = text
					o.publish()
				}
			})
		},
		Level: func(level uint8) {
			o.post(func() {
				if gen == o.gen && o.stream != nil {
					o.st.AudioLevel = level
					o.publish()
				}
			})
		},
	}
	go func() {
		out := o.aggregator.Run(ctx, s, hooks)
		o.post(func() { o.aggregated(gen, out) })
	}()
}

func (o *Orchestrator) stopListening() {
	switch o.st.Phase {
	case PhaseCalibrating:
		o.userCancel()
	case PhaseListening:
		if o.stream == nil {
			o.userCancel()
			return
		}
		o.userStopped = true
		o.stream.Stop()
		o.setPhase(PhaseAggregating)
	}
}

func (o *Orchestrator) aggregated(gen uint64, out transcript.Outcome) {
	if gen != o.gen {
		return
	}
	o.stream = nil
	o.st.AudioLevel = 0

	if out.Finalized {
		o.metrics.MarkTranscript()
		o.st.InterimText = ""
		o.respond(out.Text)
		return
	}

	cause := out.Cause
	if cause == nil {
		cause = voice.NewError(voice.KindNoSpeech, nil)
	}
	if o.userStopped && (cause.Kind == voice.KindNoSpeech || cause.Kind == voice.KindAborted) {
		o.st.InterimText = ""
		o.setPhase(PhaseIdle)
		return
	}
	o.listenFailed(cause)
}

// listenFailed routes a calibration or recognition error. Fatal kinds
// park the session in PhaseError until Retry.
func (o *Orchestrator) listenFailed(e *voice.Error) {
	o.stream = nil
	o.st.InterimText = ""
	o.st.AudioLevel = 0
	o.lastErr = e
	o.st.ErrorMessage = e.Message
	o.st.ErrorKind = e.Kind
	o.st.Recoverable = e.Recoverable

	switch e.Kind {
	case voice.KindPermissionDenied, voice.KindDeviceNotFound, voice.KindDeviceBusy, voice.KindConfigurationRejected:
		o.needCalibrate = true
	}

	o.logger.Warn("listening failed", "kind", e.Kind, "code", e.Code, "recoverable", e.Recoverable)
	if e.Kind.Fatal() {
		o.setPhase(PhaseError)
		return
	}
	o.setPhase(PhaseIdle)
}

func (o *Orchestrator) sendTyped(text string) error {
	if o.st.Phase == PhaseError {
		return ErrRetryRequired
	}
	if o.stream != nil {
		o.stream.Abort()
		o.stream = nil
	}
	if o.st.Phase == PhaseSpeaking {
		o.speaker.Cancel()
	}
	o.st.InterimText = ""
	o.st.AudioLevel = 0
	o.metrics.MarkStart()
	o.metrics.MarkTranscript()
	o.respond(text)
	return nil
}

func (o *Orchestrator) respond(text string) {
	history := o.Messages()
	o.appendMessage(voice.NewMessage(text, true, o.clock.Next()))

	gen := o.advance()
	ctx := o.work
	o.clearError()
	o.st.ReplyText = ""
	o.setPhase(PhaseResponding)

	go func() {
		res, err := o.responder.Stream(ctx, text, history, func(_, revealed string) {
			o.post(func() {
				if gen == o.gen {
					o.st.ReplyText = revealed
					o.publish()
				}
			})
		})
		o.post(func() { o.responded(gen, res, err) })
	}()
}

func (o *Orchestrator) responded(gen uint64, res response.Result, err error) {
	if gen != o.gen {
		return
	}
	if err != nil {
		// Only cancellation ends Stream with an error.
		o.logger.Debug("reply abandoned", "error", err)
		o.st.ReplyText = ""
		o.setPhase(PhaseIdle)
		return
	}

	o.metrics.MarkReply(res.Tier)
	o.logger.Info("reply ready", "tier", res.Tier, "crisis", res.Crisis, "category", res.Category)
	o.appendMessage(voice.NewMessage(res.Text, false, o.clock.Next()))
	o.st.ReplyText = ""

	if o.st.VoiceOutput && o.speaker != nil {
		o.speak(gen, res.Text)
		return
	}
	o.finishTurn()
}

func (o *Orchestrator) speak(gen uint64, text string) {
	u, err := o.speaker.Speak(o.work, text)
	if err != nil {
		if !errors.Is(err, playback.ErrNothingToSay) {
			e := voice.AsError(err)
			o.logger.Warn("speech unavailable", "kind", e.Kind, "error", err)
			o.st.ErrorMessage = e.Message
			o.st.ErrorKind = e.Kind
			o.st.Recoverable = true
		}
		o.finishTurn()
		return
	}

	o.setPhase(PhaseSpeaking)
	go func() {
		for ev := range u.Events() {
			o.post(func() { o.playbackEvent(gen, ev) })
		}
	}()
}

func (o *Orchestrator) playbackEvent(gen uint64, ev playback.Event) {
	if gen != o.gen || o.st.Phase != PhaseSpeaking {
		return
	}
	switch ev.Type {
	case playback.EventStarted:
		o.metrics.MarkFirstAudio()
	case playback.EventEnded:
		o.finishTurn()
	case playback.EventError:
		if ev.Err != nil {
			o.logger.Warn("playback failed", "kind", ev.Err.Kind, "error", ev.Err)
			o.st.ErrorMessage = ev.Err.Message
			o.st.ErrorKind = ev.Err.Kind
			o.st.Recoverable = true
		}
		o.finishTurn()
	case playback.EventCancelled:
		o.setPhase(PhaseIdle)
	}
}

func (o *Orchestrator) finishTurn() {
	o.metrics.MarkDone()
	if last, ok := o.metrics.Last(); ok {
		o.logger.Info("turn complete", "latency", last.FormatLatency(), "tier", last.Tier)
	}
	o.setPhase(PhaseIdle)
	o.scheduleAutoListen()
}

func (o *Orchestrator) scheduleAutoListen() {
	if !o.st.AutoListen || o.recognizer == nil {
		return
	}
	o.cancelAutoListen()
	gen := o.gen
	o.autoTimer = time.AfterFunc(o.cfg.AutoListenDelay, func() {
		o.post(func() {
			if gen != o.gen || o.st.Phase != PhaseIdle || !o.st.AutoListen {
				return
			}
			o.autoTimer = nil
			if err := o.startListening(); err != nil {
				o.logger.Warn("auto-listen failed", "error", err)
			}
		})
	})
}

func (o *Orchestrator) cancelAutoListen() {
	if o.autoTimer != nil {
		o.autoTimer.Stop()
		o.autoTimer = nil
	}
}

// userCancel tears down listening, the pending reply and playback, then
// returns to Idle. PhaseError is kept.
func (o *Orchestrator) userCancel() {
	o.cancelAutoListen()
	if o.stream != nil {
		o.stream.Abort()
		o.stream = nil
	}
	if o.speaker != nil {
		o.speaker.Cancel()
	}
	o.advance()
	o.st.InterimText = ""
	o.st.ReplyText = ""
	o.st.AudioLevel = 0
	if o.st.Phase == PhaseError {
		o.publish()
		return
	}
	o.setPhase(PhaseIdle)
}
