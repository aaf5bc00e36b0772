package sequencer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Arjun-57561/Veena/pkg/constants"
	"github.com/Arjun-57561/Veena/pkg/dialog"
	"github.com/Arjun-57561/Veena/pkg/metrics"
	"github.com/Arjun-57561/Veena/pkg/models"
	"github.com/Arjun-57561/Veena/pkg/voice"
)

// Store is the part of the State Store the sequencer writes through.
type Store interface {
	Customer() models.CustomerData
	Language() string
	AppendTurns(turns ...models.ConversationTurn) error
	RecordLatency(latencyMs float64) models.Metrics
	ResetConversation()
	SetRunning(running bool)
}

// Speaker is the Utterance Renderer adapter as seen by the sequencer.
type Speaker interface {
	Speak(text string) (string, error)
}

type Options struct {
	Interval        time.Duration
	CompletionDelay time.Duration
	// Latency returns the per-step latency in milliseconds. Defaults to uniform [500, 1500).
	Latency      func() float64
	FallbackName string
}

type tickerFunc func(d time.Duration) (<-chan time.Time, func())

func newTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Sequencer plays the Dialog Source on a fixed cadence. Every Start, Stop and Reset issues a new
// epoch; ticks and delayed completions carrying an older epoch are discarded.
type Sequencer struct {
	nodes   []models.DialogNode
	store   Store
	speaker Speaker
	logger  *logrus.Logger
	metrics *metrics.Metrics
	opts    Options
	ticker  tickerFunc
	now     func() time.Time

	mu      sync.Mutex
	cursor  int
	running bool
	ticking bool
	epoch   uint64
	stopCh  chan struct{}
}

func New(nodes []models.DialogNode, store Store, speaker Speaker, logger *logrus.Logger, m *metrics.Metrics, opts Options) *Sequencer {
	if opts.Interval <= 0 {
		opts.Interval = constants.MillisecondsToDuration(constants.DefaultStepIntervalMS)
	}
	if opts.CompletionDelay < 0 {
		opts.CompletionDelay = 0
	}
	if opts.Latency == nil {
		opts.Latency = func() float64 {
			return constants.MinSimulatedLatencyMS + rand.Float64()*constants.SimulatedLatencySpreadMS
		}
	}
	if opts.FallbackName == "" {
		opts.FallbackName = constants.DefaultCustomerName
	}
	return &Sequencer{
		nodes:   nodes,
		store:   store,
		speaker: speaker,
		logger:  logger,
		metrics: m,
		opts:    opts,
		ticker:  newTicker,
		now:     time.Now,
	}
}

// Start begins a scripted run. It returns false without effect if a run is already active.
func (s *Sequencer) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return false
	}

	s.epoch++
	s.cursor = 0
	s.running = true
	s.ticking = true
	s.stopCh = make(chan struct{})
	s.store.ResetConversation()
	s.store.SetRunning(true)
	if s.metrics != nil {
		s.metrics.ScriptRuns.WithLabelValues("started").Inc()
		s.metrics.ObserveConversation(models.DefaultMetrics())
	}

	go s.loop(ctx, s.epoch, s.stopCh)

	s.logger.WithFields(logrus.Fields{
		"epoch": s.epoch,
		"steps": len(s.nodes),
	}).Info("Scripted run started")
	return true
}

func (s *Sequencer) loop(ctx context.Context, epoch uint64, stop <-chan struct{}) {
	ticks, release := s.ticker(s.opts.Interval)
	defer release()

	for {
		select {
		case <-ctx.Done():
			s.cancel(epoch)
			return
		case <-stop:
			return
		case <-ticks:
			if !s.tick(epoch) {
				return
			}
		}
	}
}

// cancel finishes the run of epoch when its context ends first.
func (s *Sequencer) cancel(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || !s.ticking {
		return
	}
	s.finishLocked("cancelled")
}

// tick runs one timer-driven step and reports whether the loop should continue.
func (s *Sequencer) tick(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch || !s.ticking {
		s.logger.WithField("epoch", epoch).Debug("Discarding stale tick")
		return false
	}

	if s.cursor < len(s.nodes) {
		s.stepLocked()
	}
	if s.cursor >= len(s.nodes) {
		s.finishLocked("completed")
		return false
	}
	return true
}

// Step plays the node at the cursor. It returns false when the sequence is exhausted.
func (s *Sequencer) Step() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor >= len(s.nodes) {
		return false
	}
	s.stepLocked()
	return true
}

func (s *Sequencer) stepLocked() {
	node := s.nodes[s.cursor]
	prompt := dialog.ResolveNode(node, s.store.Language(), s.store.Customer(), s.opts.FallbackName)
	now := s.now()

	logger := s.logger.WithFields(logrus.Fields{
		"epoch":   s.epoch,
		"cursor":  s.cursor,
		"node_id": node.ID,
	})

	err := s.store.AppendTurns(
		models.ConversationTurn{
			ID:        fmt.Sprintf("user-%d", s.cursor),
			Speaker:   models.SpeakerUser,
			Text:      fmt.Sprintf("Response to step %s", node.ID),
			Timestamp: now,
		},
		models.ConversationTurn{
			ID:        fmt.Sprintf("agent-%d", s.cursor),
			Speaker:   models.SpeakerAgent,
			Text:      prompt,
			Timestamp: now,
		},
	)
	if err != nil {
		logger.WithError(err).Warn("Failed to append scripted turns")
	}

	if prompt != "" {
		if _, err := s.speaker.Speak(prompt); err != nil {
			if errors.Is(err, voice.ErrNotSupported) {
				logger.Debug("Speech output not available, step continues silently")
			} else {
				logger.WithError(err).Warn("Failed to speak scripted prompt")
			}
		}
	}

	latency := s.opts.Latency()
	agg := s.store.RecordLatency(latency)
	if s.metrics != nil {
		s.metrics.ScriptedSteps.Inc()
		s.metrics.StepLatency.Observe(latency / 1000)
		s.metrics.ObserveConversation(agg)
	}

	s.cursor++

	logger.WithFields(logrus.Fields{
		"latency_ms":   latency,
		"success_rate": agg.SuccessRate,
	}).Debug("Scripted step played")
}

// Stop cancels the timer at once and reports the run finished after the completion delay.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ticking {
		return
	}
	s.finishLocked("stopped")
}

// finishLocked cancels the ticker under a new epoch and schedules the running flag to drop.
func (s *Sequencer) finishLocked(outcome string) {
	s.cancelLocked()
	epoch := s.epoch

	time.AfterFunc(s.opts.CompletionDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch {
			return
		}
		s.running = false
		s.store.SetRunning(false)
	})

	if s.metrics != nil {
		s.metrics.ScriptRuns.WithLabelValues(outcome).Inc()
	}
	s.logger.WithFields(logrus.Fields{
		"epoch":   epoch,
		"cursor":  s.cursor,
		"outcome": outcome,
	}).Info("Scripted run finished")
}

func (s *Sequencer) cancelLocked() {
	s.epoch++
	s.ticking = false
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

// Reset cancels any run and restores an empty conversation with default metrics.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.cursor = 0
	s.running = false
	s.store.ResetConversation()
	s.store.SetRunning(false)
	if s.metrics != nil {
		s.metrics.ObserveConversation(models.DefaultMetrics())
	}

	s.logger.WithField("epoch", s.epoch).Info("Sequencer reset")
}

func (s *Sequencer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sequencer) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Len returns the number of nodes in the Dialog Source.
func (s *Sequencer) Len() int {
	return len(s.nodes)
}
