package voice

import (
	"errors"
	"fmt"
)

// Phase is the single source of truth for the voice activity flags.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseListening  Phase = "listening"
	PhaseProcessing Phase = "processing"
	PhaseSpeaking   Phase = "speaking"
)

// Event drives Phase transitions.
type Event string

const (
	EventListen           Event = "listen"
	EventInterim          Event = "interim"
	EventFinal            Event = "final"
	EventRecognitionError Event = "recognition_error"
	EventRecognitionEnd   Event = "recognition_end"
	EventSpeechStart      Event = "speech_start"
	EventSpeechEnd        Event = "speech_end"
	EventInterrupt        Event = "interrupt"
	EventReset            Event = "reset"
)

var (
	ErrInvalidTransition = errors.New("invalid voice transition")
	ErrNotSupported      = errors.New("capability not supported")
)

var transitions = map[Phase]map[Event]Phase{
	PhaseIdle: {
		EventListen:      PhaseListening,
		EventSpeechStart: PhaseSpeaking,
		EventInterrupt:   PhaseIdle,
		EventReset:       PhaseIdle,
	},
	PhaseListening: {
		EventListen:           PhaseListening,
		EventInterim:          PhaseListening,
		EventFinal:            PhaseProcessing,
		EventRecognitionError: PhaseIdle,
		EventRecognitionEnd:   PhaseIdle,
		EventSpeechStart:      PhaseSpeaking,
		EventInterrupt:        PhaseListening,
		EventReset:            PhaseIdle,
	},
	PhaseProcessing: {
		EventListen:           PhaseListening,
		EventRecognitionError: PhaseIdle,
		EventRecognitionEnd:   PhaseIdle,
		EventSpeechStart:      PhaseSpeaking,
		EventInterrupt:        PhaseProcessing,
		EventReset:            PhaseIdle,
	},
	PhaseSpeaking: {
		EventListen:      PhaseListening,
		EventSpeechStart: PhaseSpeaking,
		EventSpeechEnd:   PhaseIdle,
		EventInterrupt:   PhaseIdle,
		EventReset:       PhaseIdle,
	},
}

// Next returns the phase reached from p on ev.
func Next(p Phase, ev Event) (Phase, error) {
	if to, ok := transitions[p][ev]; ok {
		return to, nil
	}
	return p, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, p, ev)
}

// State is the transient voice session record.
type State struct {
	Phase             Phase   `json:"phase"`
	IsListening       bool    `json:"isListening"`
	IsProcessing      bool    `json:"isProcessing"`
	IsSpeaking        bool    `json:"isSpeaking"`
	IsWakeWordActive  bool    `json:"isWakeWordActive"`
	CurrentTranscript string  `json:"currentTranscript"`
	FinalTranscript   string  `json:"finalTranscript"`
	Confidence        float64 `json:"confidence"`
	Error             string  `json:"error,omitempty"`
}

func DefaultState() State {
	s := State{IsWakeWordActive: true}
	s.SetPhase(PhaseIdle)
	return s
}

// SetPhase sets the phase and the whole flag tuple together.
func (s *State) SetPhase(p Phase) {
	s.Phase = p
	s.IsListening = p == PhaseListening
	s.IsProcessing = p == PhaseProcessing
	s.IsSpeaking = p == PhaseSpeaking
}

// Tracker applies voice events to whoever owns the State.
type Tracker interface {
	Fire(ev Event, mutate func(*State)) error
}
