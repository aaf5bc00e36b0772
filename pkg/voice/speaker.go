package voice

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Utterance is one text-to-speech request.
type Utterance struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Lang string `json:"lang"`
}

// Callbacks carry the renderer's lifecycle signals back to the core.
type Callbacks struct {
	OnStart func()
	OnEnd   func()
}

// Renderer is the Utterance Renderer capability. Speak must not block until playback ends.
type Renderer interface {
	Supported() bool
	Speak(u Utterance, cb Callbacks) error
	Cancel()
}

// Speaker keeps at most one utterance active: each Speak preempts the previous one and the
// preempted utterance's callbacks are discarded.
type Speaker struct {
	renderer Renderer
	tracker  Tracker
	logger   *logrus.Logger
	language func() string

	mu      sync.Mutex
	current string
}

func NewSpeaker(renderer Renderer, tracker Tracker, logger *logrus.Logger, language func() string) *Speaker {
	if language == nil {
		language = func() string { return "en" }
	}
	return &Speaker{
		renderer: renderer,
		tracker:  tracker,
		logger:   logger,
		language: language,
	}
}

// Speak starts speaking text and returns the utterance id.
func (s *Speaker) Speak(text string) (string, error) {
	if !s.renderer.Supported() {
		return "", ErrNotSupported
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
	s.renderer.Cancel()

	cb := Callbacks{
		OnStart: func() { s.onStart(id) },
		OnEnd:   func() { s.onEnd(id) },
	}
	if err := s.renderer.Speak(Utterance{ID: id, Text: text, Lang: s.language()}, cb); err != nil {
		s.release(id)
		return "", fmt.Errorf("failed to speak utterance: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"utterance_id": id,
		"chars":        len(text),
	}).Debug("Utterance dispatched")
	return id, nil
}

// Cancel stops the active utterance without touching voice state.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	s.current = ""
	s.mu.Unlock()
	s.renderer.Cancel()
}

// Interrupt cancels speech and reports it to the tracker.
func (s *Speaker) Interrupt() error {
	s.Cancel()
	return s.tracker.Fire(EventInterrupt, nil)
}

// Active returns the id of the utterance currently allowed to report, if any.
func (s *Speaker) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Speaker) release(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != id {
		return false
	}
	s.current = ""
	return true
}

func (s *Speaker) isCurrent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == id
}

func (s *Speaker) onStart(id string) {
	if !s.isCurrent(id) {
		s.logger.WithField("utterance_id", id).Debug("Dropping start of preempted utterance")
		return
	}
	s.fire(EventSpeechStart, nil)
}

func (s *Speaker) onEnd(id string) {
	if !s.release(id) {
		s.logger.WithField("utterance_id", id).Debug("Dropping end of preempted utterance")
		return
	}
	s.fire(EventSpeechEnd, func(st *State) { st.IsWakeWordActive = true })
}

func (s *Speaker) fire(ev Event, mutate func(*State)) {
	if err := s.tracker.Fire(ev, mutate); err != nil {
		s.logger.WithError(err).WithField("event", ev).Debug("Ignored speech event")
	}
}
