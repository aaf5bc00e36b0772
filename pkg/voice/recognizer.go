package voice

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// TranscriptEvent is one recognition result.
type TranscriptEvent struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Final      bool    `json:"final"`
}

// SessionHandler receives the events of one recognition session.
type SessionHandler struct {
	OnTranscript func(TranscriptEvent)
	OnError      func(error)
	OnEnd        func()
}

// RecognitionSession is a running single-shot recognition.
type RecognitionSession interface {
	ID() string
	Stop()
}

// Listener is the Transcript Listener capability.
type Listener interface {
	Supported() bool
	Listen(lang string, h SessionHandler) (RecognitionSession, error)
}

// Recognizer owns at most one recognition session. Starting a new one stops the previous session
// first, and events from stopped sessions are discarded.
type Recognizer struct {
	listener Listener
	tracker  Tracker
	logger   *logrus.Logger
	language func() string

	mu     sync.Mutex
	active RecognitionSession
	gen    uint64
}

func NewRecognizer(listener Listener, tracker Tracker, logger *logrus.Logger, language func() string) *Recognizer {
	if language == nil {
		language = func() string { return "en" }
	}
	return &Recognizer{
		listener: listener,
		tracker:  tracker,
		logger:   logger,
		language: language,
	}
}

// StartListening begins a new recognition session.
func (r *Recognizer) StartListening() error {
	if !r.listener.Supported() {
		return ErrNotSupported
	}

	gen := r.supersede()

	if err := r.tracker.Fire(EventListen, func(st *State) {
		st.CurrentTranscript = ""
		st.FinalTranscript = ""
		st.Confidence = 0
		st.Error = ""
	}); err != nil {
		return fmt.Errorf("failed to enter listening: %w", err)
	}

	h := SessionHandler{
		OnTranscript: func(ev TranscriptEvent) { r.onTranscript(gen, ev) },
		OnError:      func(err error) { r.onError(gen, err) },
		OnEnd:        func() { r.onEnd(gen) },
	}
	sess, err := r.listener.Listen(r.language(), h)
	if err != nil {
		r.fire(EventRecognitionError, func(st *State) { st.Error = err.Error() })
		return fmt.Errorf("failed to start recognition: %w", err)
	}

	r.mu.Lock()
	if r.gen != gen {
		// Superseded while Listen was in flight
		r.mu.Unlock()
		sess.Stop()
		return nil
	}
	r.active = sess
	r.mu.Unlock()

	r.logger.WithField("session_id", sess.ID()).Debug("Recognition session started")
	return nil
}

// StopListening stops the active session, if any, and leaves the listening phase.
func (r *Recognizer) StopListening() {
	r.supersede()
	r.fire(EventRecognitionEnd, nil)
}

// Active returns the running session or nil.
func (r *Recognizer) Active() RecognitionSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// supersede invalidates the current session and stops it outside the lock.
func (r *Recognizer) supersede() uint64 {
	r.mu.Lock()
	prev := r.active
	r.active = nil
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	if prev != nil {
		prev.Stop()
		r.logger.WithField("session_id", prev.ID()).Debug("Recognition session stopped")
	}
	return gen
}

func (r *Recognizer) isCurrent(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen == gen
}

func (r *Recognizer) finish(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return false
	}
	r.active = nil
	return true
}

func (r *Recognizer) onTranscript(gen uint64, ev TranscriptEvent) {
	if !r.isCurrent(gen) {
		return
	}
	if ev.Final {
		r.fire(EventFinal, func(st *State) {
			st.CurrentTranscript = ev.Text
			st.FinalTranscript = ev.Text
			st.Confidence = ev.Confidence
		})
		return
	}
	r.fire(EventInterim, func(st *State) {
		st.CurrentTranscript = ev.Text
		st.Confidence = ev.Confidence
	})
}

func (r *Recognizer) onError(gen uint64, err error) {
	if !r.finish(gen) {
		return
	}
	r.fire(EventRecognitionError, func(st *State) { st.Error = err.Error() })
}

func (r *Recognizer) onEnd(gen uint64) {
	if !r.finish(gen) {
		return
	}
	r.fire(EventRecognitionEnd, nil)
}

func (r *Recognizer) fire(ev Event, mutate func(*State)) {
	if err := r.tracker.Fire(ev, mutate); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			r.logger.WithError(err).Debug("Ignored recognition event")
			return
		}
		r.logger.WithError(err).WithField("event", ev).Warn("Failed to apply recognition event")
	}
}
