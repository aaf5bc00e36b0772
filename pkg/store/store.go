package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/Arjun-57561/Veena/pkg/constants"
	"github.com/Arjun-57561/Veena/pkg/models"
	"github.com/Arjun-57561/Veena/pkg/voice"
)

// Snapshot is a consistent copy of everything the Store owns.
type Snapshot struct {
	Voice        voice.State               `json:"voiceState"`
	Conversation []models.ConversationTurn `json:"conversation"`
	Customer     models.CustomerData       `json:"customerData"`
	Metrics      models.Metrics            `json:"metrics"`
	Language     string                    `json:"language"`
	Running      bool                      `json:"isRunning"`
}

// Defaults seed a new Store.
type Defaults struct {
	Customer models.CustomerData
	Language string
}

// VoiceTransition is the payload of models.EventVoiceChanged.
type VoiceTransition struct {
	Event voice.Event `json:"event"`
	From  voice.Phase `json:"from"`
	State voice.State `json:"state"`
}

// Store owns the voice state, conversation log, customer record and metrics of one session.
// Subscribers run synchronously under the store lock, so they must not block or call back into the Store.
type Store struct {
	mu           sync.Mutex
	voice        voice.State
	conversation []models.ConversationTurn
	customer     models.CustomerData
	metrics      models.Metrics
	language     string
	running      bool

	subs   map[int]func(models.Event)
	nextID int
	now    func() time.Time
}

func New(d Defaults) *Store {
	lang := d.Language
	if lang == "" {
		lang = constants.DefaultLocale
	}
	return &Store{
		voice:    voice.DefaultState(),
		customer: d.Customer.Clone(),
		metrics:  models.DefaultMetrics(),
		language: lang,
		subs:     make(map[int]func(models.Event)),
		now:      time.Now,
	}
}

// Subscribe registers fn for every subsequent mutation and returns its unsubscribe func.
func (s *Store) Subscribe(fn func(models.Event)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// emit must be called with s.mu held.
func (s *Store) emit(t models.EventType, payload interface{}) {
	ev := models.Event{Type: t, At: s.now(), Payload: payload}
	for _, fn := range s.subs {
		fn(ev)
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Voice:        s.voice,
		Conversation: s.conversationLocked(),
		Customer:     s.customer.Clone(),
		Metrics:      s.metrics,
		Language:     s.language,
		Running:      s.running,
	}
}

func (s *Store) Voice() voice.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voice
}

func (s *Store) Conversation() []models.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationLocked()
}

func (s *Store) conversationLocked() []models.ConversationTurn {
	out := make([]models.ConversationTurn, len(s.conversation))
	copy(out, s.conversation)
	return out
}

func (s *Store) Customer() models.CustomerData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customer.Clone()
}

func (s *Store) Metrics() models.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

func (s *Store) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

func (s *Store) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Fire applies a voice FSM event. mutate runs before the phase flags are set, so it cannot
// leave the flag tuple inconsistent.
func (s *Store) Fire(ev voice.Event, mutate func(*voice.State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.voice.Phase
	next, err := voice.Next(from, ev)
	if err != nil {
		return err
	}
	if mutate != nil {
		mutate(&s.voice)
	}
	s.voice.SetPhase(next)
	s.emit(models.EventVoiceChanged, VoiceTransition{Event: ev, From: from, State: s.voice})
	return nil
}

// SetVoiceError records err on the voice state without a phase change.
func (s *Store) SetVoiceError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voice.Error = msg
	s.emit(models.EventVoiceChanged, VoiceTransition{From: s.voice.Phase, State: s.voice})
}

// AppendTurns appends turns in order. Ids must be unique within the current log.
func (s *Store) AppendTurns(turns ...models.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(s.conversation)+len(turns))
	for _, t := range s.conversation {
		seen[t.ID] = true
	}
	for _, t := range turns {
		if seen[t.ID] {
			return fmt.Errorf("duplicate conversation turn id %q", t.ID)
		}
		seen[t.ID] = true
	}

	s.conversation = append(s.conversation, turns...)
	appended := make([]models.ConversationTurn, len(turns))
	copy(appended, turns)
	s.emit(models.EventTurnsAppended, appended)
	return nil
}

// RecordLatency folds one step latency into the metrics.
func (s *Store) RecordLatency(latencyMs float64) models.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = s.metrics.Record(latencyMs)
	s.emit(models.EventMetricsUpdated, s.metrics)
	return s.metrics
}

// ResetConversation clears the log and restores default metrics.
func (s *Store) ResetConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = nil
	s.metrics = models.DefaultMetrics()
	s.emit(models.EventConversationReset, s.metrics)
}

// ResetVoice returns the voice state to idle with empty transcripts.
func (s *Store) ResetVoice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := s.voice.Phase
	s.voice = voice.DefaultState()
	s.emit(models.EventVoiceChanged, VoiceTransition{Event: voice.EventReset, From: from, State: s.voice})
}

func (s *Store) SetCustomer(c models.CustomerData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customer = c.Clone()
	s.emit(models.EventCustomerUpdated, s.customer.Clone())
}

func (s *Store) UpdateCustomerField(field, value string) models.CustomerData {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customer.Set(field, value)
	s.emit(models.EventCustomerUpdated, s.customer.Clone())
	return s.customer.Clone()
}

// MergeCustomer overwrites with the non-empty fields of patch, or only fills empty fields when fillOnly is set.
func (s *Store) MergeCustomer(patch models.CustomerData, fillOnly bool) models.CustomerData {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fillOnly {
		s.customer.FillMissing(patch)
	} else {
		s.customer.Merge(patch)
	}
	s.emit(models.EventCustomerUpdated, s.customer.Clone())
	return s.customer.Clone()
}

func (s *Store) SetLanguage(lang string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.language == lang {
		return
	}
	s.language = lang
	s.emit(models.EventLanguageChanged, lang)
}

// SetRunning mirrors the sequencer's running flag.
func (s *Store) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == running {
		return
	}
	s.running = running
	s.emit(models.EventScriptStateChanged, running)
}

// Announce forwards an event that carries no store mutation, such as an assistant reply.
func (s *Store) Announce(t models.EventType, payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(t, payload)
}
