package hub

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Arjun-57561/Veena/pkg/voice"
)

// Renderer returns the hub's Utterance Renderer view.
func (h *Hub) Renderer() voice.Renderer { return renderer{h} }

// Listener returns the hub's Transcript Listener view.
func (h *Hub) Listener() voice.Listener { return listener{h} }

// pendingUtterance and pendingSession remember which page owns a command. Reports from any other
// page are dropped.
type pendingUtterance struct {
	owner *client
	cb    voice.Callbacks
}

type pendingSession struct {
	owner *client
	sh    voice.SessionHandler
}

type renderer struct{ h *Hub }

func (r renderer) Supported() bool { return r.h.anyClient(canSpeak) }

// Speak sends the utterance to the most recently connected page that can speak.
func (r renderer) Speak(u voice.Utterance, cb voice.Callbacks) error {
	data, err := json.Marshal(Outbound{Type: TypeSpeak, Utterance: &u})
	if err != nil {
		return fmt.Errorf("failed to encode utterance %s: %w", u.ID, err)
	}

	r.h.mu.Lock()
	defer r.h.mu.Unlock()
	target := r.h.newestLocked(canSpeak)
	if target == nil {
		return fmt.Errorf("no page can speak utterance %s", u.ID)
	}
	r.h.utterances[u.ID] = pendingUtterance{owner: target, cb: cb}
	r.h.enqueueLocked(target, data)
	return nil
}

// Cancel stops playback on every page. Pending callbacks are forgotten.
func (r renderer) Cancel() {
	r.h.mu.Lock()
	r.h.utterances = make(map[string]pendingUtterance)
	r.h.mu.Unlock()
	r.h.broadcast(Outbound{Type: TypeCancelSpeech}, canSpeak)
}

type listener struct{ h *Hub }

func (l listener) Supported() bool { return l.h.anyClient(canListen) }

// Listen starts recognition on the most recently connected page that can listen.
func (l listener) Listen(lang string, sh voice.SessionHandler) (voice.RecognitionSession, error) {
	id := uuid.NewString()
	data, err := json.Marshal(Outbound{Type: TypeStartRecognition, SessionID: id, Lang: lang})
	if err != nil {
		return nil, fmt.Errorf("failed to encode recognition session %s: %w", id, err)
	}

	l.h.mu.Lock()
	defer l.h.mu.Unlock()
	target := l.h.newestLocked(canListen)
	if target == nil {
		return nil, fmt.Errorf("no page can start recognition session %s", id)
	}
	l.h.sessions[id] = pendingSession{owner: target, sh: sh}
	l.h.enqueueLocked(target, data)
	return &session{id: id, h: l.h}, nil
}

type session struct {
	id string
	h  *Hub
}

func (s *session) ID() string { return s.id }

// Stop ends the browser session and drops any events it still reports.
func (s *session) Stop() {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	p, live := s.h.sessions[s.id]
	if !live {
		return
	}
	delete(s.h.sessions, s.id)

	data, err := json.Marshal(Outbound{Type: TypeStopRecognition, SessionID: s.id})
	if err != nil {
		s.h.logger.WithError(err).WithField("session_id", s.id).Error("Failed to encode frame")
		return
	}
	s.h.enqueueLocked(p.owner, data)
}
