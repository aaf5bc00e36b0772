package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Arjun-57561/Veena/pkg/assistant"
	"github.com/Arjun-57561/Veena/pkg/config"
	"github.com/Arjun-57561/Veena/pkg/constants"
	"github.com/Arjun-57561/Veena/pkg/handlers"
	"github.com/Arjun-57561/Veena/pkg/hub"
	"github.com/Arjun-57561/Veena/pkg/metrics"
	"github.com/Arjun-57561/Veena/pkg/models"
	"github.com/Arjun-57561/Veena/pkg/report"
	"github.com/Arjun-57561/Veena/pkg/sequencer"
	"github.com/Arjun-57561/Veena/pkg/server"
	"github.com/Arjun-57561/Veena/pkg/store"
	"github.com/Arjun-57561/Veena/pkg/voice"
)

// EventSink receives every store event. It must not block.
type EventSink interface {
	Enqueue(ev models.Event)
}

// Deps are the collaborators a Service is built from. Nil adapters fall back to the hub.
type Deps struct {
	Nodes     []models.DialogNode
	Assistant assistant.Client
	Renderer  voice.Renderer
	Listener  voice.Listener
	Sink      EventSink
}

// Service owns one voice session: its store, sequencer, speech adapters and HTTP surface.
type Service struct {
	config    *config.Config
	logger    *logrus.Logger
	metrics   *metrics.Metrics
	store     *store.Store
	sequencer *sequencer.Sequencer
	speaker   *voice.Speaker
	listener  *voice.Recognizer
	assistant assistant.Client
	hub       *hub.Hub
	reporter  *report.Reporter
	server    *http.Server

	runCtx      context.Context
	cancelRun   context.CancelFunc
	unsubscribe []func()
}

func NewService(cfg *config.Config, logger *logrus.Logger, m *metrics.Metrics, deps Deps) *Service {
	st := store.New(store.Defaults{
		Customer: models.DefaultCustomer(),
		Language: cfg.Language,
	})
	h := hub.New(logger, m)

	renderer := deps.Renderer
	if renderer == nil {
		renderer = h.Renderer()
	}
	listener := deps.Listener
	if listener == nil {
		listener = h.Listener()
	}
	client := deps.Assistant
	if client == nil {
		client = assistant.NewMock()
	}

	speaker := voice.NewSpeaker(renderer, st, logger, st.Language)
	seq := sequencer.New(deps.Nodes, st, speaker, logger, m, sequencer.Options{
		Interval:        cfg.StepInterval(),
		CompletionDelay: cfg.CompletionDelay(),
		FallbackName:    cfg.DefaultName,
	})

	runCtx, cancelRun := context.WithCancel(context.Background())
	s := &Service{
		config:    cfg,
		logger:    logger,
		metrics:   m,
		store:     st,
		sequencer: seq,
		speaker:   speaker,
		listener:  voice.NewRecognizer(listener, st, logger, st.Language),
		assistant: assistant.WithMetrics(client, m),
		hub:       h,
		runCtx:    runCtx,
		cancelRun: cancelRun,
	}
	s.reporter = report.New(logger, s.Summary)

	h.SetSnapshot(func() interface{} { return st.Snapshot() })
	s.unsubscribe = append(s.unsubscribe,
		st.Subscribe(h.Publish),
		st.Subscribe(s.observe),
	)
	if deps.Sink != nil {
		s.unsubscribe = append(s.unsubscribe, st.Subscribe(deps.Sink.Enqueue))
	}
	return s
}

func (s *Service) observe(ev models.Event) {
	if s.metrics == nil {
		return
	}
	if tr, ok := ev.Payload.(store.VoiceTransition); ok && tr.Event != "" {
		s.metrics.VoiceTransitions.WithLabelValues(string(tr.Event), string(tr.State.Phase)).Inc()
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting Veena session service")

	if err := s.reporter.Start(s.config.ReportSchedule); err != nil {
		return fmt.Errorf("failed to start reporter: %w", err)
	}

	s.server = server.NewHTTPServer(s.config, handlers.NewHandler(s, s.config.InstanceID, s.logger), s.hub, s.logger)
	go func() {
		s.logger.WithField("port", s.config.Port).Info("Starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	s.logger.WithFields(logrus.Fields{
		"instance_id": s.config.InstanceID,
		"steps":       s.sequencer.Len(),
	}).Info("Veena session service started")
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info("Stopping Veena session service")

	s.sequencer.Reset()
	s.speaker.Cancel()
	s.cancelRun()
	s.reporter.Stop()
	s.hub.Close()
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}

	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Error("Failed to shutdown HTTP server gracefully")
			return err
		}
	}

	s.logger.Info("Veena session service stopped")
	return nil
}

func (s *Service) Store() *store.Store { return s.store }

func (s *Service) Hub() *hub.Hub { return s.hub }

func (s *Service) Snapshot() store.Snapshot { return s.store.Snapshot() }

// Summary is the status view shared by the reporter and GET /status.
func (s *Service) Summary() report.Summary {
	snap := s.store.Snapshot()
	return report.Summary{
		InstanceID:     s.config.InstanceID,
		Running:        s.sequencer.Running(),
		Cursor:         s.sequencer.Cursor(),
		Steps:          s.sequencer.Len(),
		Turns:          len(snap.Conversation),
		Metrics:        snap.Metrics,
		Phase:          snap.Voice.Phase,
		Language:       snap.Language,
		ConnectedPages: s.hub.Clients(),
	}
}

// RunScript starts scripted playback; false means a run is already active.
func (s *Service) RunScript() bool {
	return s.sequencer.Start(s.runCtx)
}

func (s *Service) StopScript() {
	s.sequencer.Stop()
}

// Reset clears the conversation and returns every voice activity to idle.
func (s *Service) Reset() {
	s.speaker.Cancel()
	s.listener.StopListening()
	s.sequencer.Reset()
	s.store.ResetVoice()
}

func (s *Service) Interrupt() error {
	return s.speaker.Interrupt()
}

func (s *Service) StartListening() error {
	return s.listener.StartListening()
}

func (s *Service) StopListening() {
	s.listener.StopListening()
}

func (s *Service) ChangeLanguage(lang string) error {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if !constants.IsSupportedLanguage(lang) {
		return fmt.Errorf("%w: %q", models.ErrUnsupportedLanguage, lang)
	}
	s.store.SetLanguage(lang)
	return nil
}

func (s *Service) UpdateCustomer(patch models.CustomerData) models.CustomerData {
	return s.store.MergeCustomer(patch, false)
}

func (s *Service) UpdateField(field, value string) (models.CustomerData, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return models.CustomerData{}, models.ErrInvalidField
	}
	return s.store.UpdateCustomerField(field, value), nil
}

// SubmitCustomer validates and saves the profile, then asks for a welcome.
func (s *Service) SubmitCustomer(ctx context.Context) (assistant.Reply, error) {
	customer := s.store.Customer()
	if err := models.Validate(customer); err != nil {
		return assistant.Reply{}, err
	}
	if err := s.assistant.SaveCustomer(ctx, customer); err != nil {
		s.logger.WithError(err).Warn("Failed to save customer")
		return assistant.Reply{}, err
	}
	s.logger.Info("Customer saved")
	return s.Welcome(ctx)
}

// Welcome greets the customer by name and speaks the greeting when no audio is attached.
func (s *Service) Welcome(ctx context.Context) (assistant.Reply, error) {
	customer := s.store.Customer()
	reply, err := s.assistant.Welcome(ctx, assistant.WelcomeRequest{
		Lang:     s.store.Language(),
		UserID:   s.config.UserID,
		FullName: customer.DisplayName(constants.WelcomeFallbackName),
	})
	if err != nil {
		s.store.SetVoiceError(err.Error())
		return assistant.Reply{}, err
	}

	s.appendTurns(agentTurn(reply.Response))
	s.announce(reply)
	if reply.AudioURL == nil && reply.Response != "" {
		if _, err := s.speaker.Speak(reply.Response); err != nil {
			s.logSpeechError(err)
		}
	}
	return reply, nil
}

// Query sends free text to the assistant. The mic resumes afterwards unless the reply carries
// audio, in which case the page resumes it when playback ends.
func (s *Service) Query(ctx context.Context, text string) (assistant.Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return assistant.Reply{}, models.ErrEmptyQuery
	}

	reply, err := s.assistant.Query(ctx, assistant.QueryRequest{
		Text:         text,
		UserID:       s.config.UserID,
		CustomerData: s.store.Customer(),
		Lang:         s.store.Language(),
	})
	if err != nil {
		s.store.SetVoiceError(err.Error())
		s.resumeListening()
		return assistant.Reply{}, err
	}

	s.appendTurns(userTurn(text), agentTurn(reply.Response))
	if reply.CustomerData != nil {
		s.store.MergeCustomer(*reply.CustomerData, true)
	}
	s.announce(reply)
	if reply.AudioURL == nil {
		s.resumeListening()
	}
	return reply, nil
}

// SubmitProfileQuery sends the filled profile fields as a spoken-style statement.
func (s *Service) SubmitProfileQuery(ctx context.Context) (assistant.Reply, error) {
	return s.Query(ctx, models.BuildQuery(s.store.Customer()))
}

func (s *Service) appendTurns(turns ...models.ConversationTurn) {
	if err := s.store.AppendTurns(turns...); err != nil {
		s.logger.WithError(err).Warn("Failed to append conversation turns")
	}
}

func (s *Service) announce(reply assistant.Reply) {
	s.store.Announce(models.EventAssistantReply, models.AssistantReply{
		Text:     reply.Response,
		AudioURL: reply.AudioURL,
		Lang:     reply.Lang,
	})
}

func (s *Service) resumeListening() {
	if err := s.listener.StartListening(); err != nil {
		s.logSpeechError(err)
	}
}

func (s *Service) logSpeechError(err error) {
	if errors.Is(err, voice.ErrNotSupported) {
		s.logger.Debug("Speech capability not available")
		return
	}
	s.logger.WithError(err).Warn("Speech capability failed")
}

func userTurn(text string) models.ConversationTurn {
	return models.ConversationTurn{ID: "user-" + uuid.NewString(), Speaker: models.SpeakerUser, Text: text, Timestamp: time.Now()}
}

func agentTurn(text string) models.ConversationTurn {
	return models.ConversationTurn{ID: "agent-" + uuid.NewString(), Speaker: models.SpeakerAgent, Text: text, Timestamp: time.Now()}
}
