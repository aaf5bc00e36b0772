package models

import (
	"time"

	"github.com/Arjun-57561/Veena/pkg/constants"
)

// DialogNode is one entry of the Dialog Source. Nodes are loaded once and never mutated.
type DialogNode struct {
	ID      string            `json:"id" yaml:"id"`
	Title   string            `json:"title,omitempty" yaml:"title,omitempty"`
	Prompts map[string]string `json:"prompt_template" yaml:"prompt_template"`
}

// Prompt returns the template for locale, falling back to the default locale.
func (n DialogNode) Prompt(locale string) string {
	if p, ok := n.Prompts[locale]; ok && p != "" {
		return p
	}
	return n.Prompts[constants.DefaultLocale]
}

type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// ConversationTurn is one rendered line of dialog
type ConversationTurn struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// EventType identifies a State Store mutation
type EventType string

const (
	EventVoiceChanged       EventType = "voice_changed"
	EventTurnsAppended      EventType = "turns_appended"
	EventMetricsUpdated     EventType = "metrics_updated"
	EventConversationReset  EventType = "conversation_reset"
	EventCustomerUpdated    EventType = "customer_updated"
	EventLanguageChanged    EventType = "language_changed"
	EventScriptStateChanged EventType = "script_state_changed"
	EventAssistantReply     EventType = "assistant_reply"
)

// Event is emitted by the State Store after every mutation.
type Event struct {
	Type    EventType   `json:"type"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload,omitempty"`
}

// AssistantReply is the payload of EventAssistantReply
type AssistantReply struct {
	Text     string  `json:"text"`
	AudioURL *string `json:"audioUrl,omitempty"`
	Lang     string  `json:"lang"`
}
