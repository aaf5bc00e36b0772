package hub

import (
	"github.com/Arjun-57561/Veena/pkg/models"
	"github.com/Arjun-57561/Veena/pkg/voice"
)

// Commands sent to the browser
const (
	TypeSnapshot         = "snapshot"
	TypeEvent            = "event"
	TypeSpeak            = "speak"
	TypeCancelSpeech     = "cancel_speech"
	TypeStartRecognition = "start_recognition"
	TypeStopRecognition  = "stop_recognition"
)

// Reports sent by the browser
const (
	TypeCapabilities     = "capabilities"
	TypeSpeechStart      = "speech_start"
	TypeSpeechEnd        = "speech_end"
	TypeTranscript       = "transcript"
	TypeRecognitionError = "recognition_error"
	TypeRecognitionEnd   = "recognition_end"
)

// Outbound is one frame written to the browser.
type Outbound struct {
	Type      string           `json:"type"`
	Utterance *voice.Utterance `json:"utterance,omitempty"`
	SessionID string           `json:"sessionId,omitempty"`
	Lang      string           `json:"lang,omitempty"`
	Event     *models.Event    `json:"event,omitempty"`
	State     interface{}      `json:"state,omitempty"`
}

// Inbound is one frame read from the browser.
type Inbound struct {
	Type        string  `json:"type"`
	Speech      bool    `json:"speech,omitempty"`
	Recognition bool    `json:"recognition,omitempty"`
	UtteranceID string  `json:"utteranceId,omitempty"`
	SessionID   string  `json:"sessionId,omitempty"`
	Text        string  `json:"text,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Final       bool    `json:"final,omitempty"`
	Error       string  `json:"error,omitempty"`
}
