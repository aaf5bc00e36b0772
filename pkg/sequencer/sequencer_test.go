package sequencer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arjun-57561/Veena/pkg/metrics"
	"github.com/Arjun-57561/Veena/pkg/models"
	"github.com/Arjun-57561/Veena/pkg/store"
	"github.com/Arjun-57561/Veena/pkg/voice"
)

type recordingSpeaker struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (r *recordingSpeaker) Speak(text string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.texts = append(r.texts, text)
	return "u", nil
}

func (r *recordingSpeaker) spoken() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func node(id, prompt string) models.DialogNode {
	return models.DialogNode{ID: id, Prompts: map[string]string{"en": prompt}}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func fixedLatencies(values ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := values[i%len(values)]
		i++
		return v
	}
}

func manualTicker(ch chan time.Time) tickerFunc {
	return func(time.Duration) (<-chan time.Time, func()) { return ch, func() {} }
}

type fixture struct {
	seq     *Sequencer
	store   *store.Store
	speaker *recordingSpeaker
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, nodes []models.DialogNode, customer models.CustomerData, opts Options) fixture {
	t.Helper()
	st := store.New(store.Defaults{Customer: customer})
	sp := &recordingSpeaker{}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	if opts.Latency == nil {
		opts.Latency = fixedLatencies(1000)
	}
	return fixture{
		seq:     New(nodes, st, sp, testLogger(), m, opts),
		store:   st,
		speaker: sp,
		metrics: m,
	}
}

func (f fixture) epoch() uint64 {
	f.seq.mu.Lock()
	defer f.seq.mu.Unlock()
	return f.seq.epoch
}

func TestStep_CompletesWithAlternatingTurns(t *testing.T) {
	nodes := []models.DialogNode{
		node("1.0", "Hello {policy_holder_name}"),
		node("2.0", "Your premium is due, {name}."),
		node("3.0", "Thank you."),
	}
	f := newFixture(t, nodes, models.CustomerData{FullName: "Priya"}, Options{})

	steps := 0
	for f.seq.Step() {
		steps++
	}
	assert.Equal(t, len(nodes), steps)
	assert.False(t, f.seq.Step(), "exhausted sequence is a no-op")

	conv := f.store.Conversation()
	require.Len(t, conv, 2*len(nodes))
	for i, turn := range conv {
		if i%2 == 0 {
			assert.Equal(t, models.SpeakerUser, turn.Speaker)
			assert.Equal(t, "Response to step "+nodes[i/2].ID, turn.Text)
		} else {
			assert.Equal(t, models.SpeakerAgent, turn.Speaker)
		}
	}
	assert.Equal(t, "Hello Priya", conv[1].Text)
	assert.Equal(t, "Your premium is due, Priya.", conv[3].Text)
	assert.Equal(t, "user-2", conv[4].ID)
	assert.Equal(t, "agent-2", conv[5].ID)

	assert.Equal(t, len(nodes), f.store.Metrics().TotalTurns)
	assert.Equal(t, len(nodes), f.seq.Cursor())
	assert.Equal(t, []string{"Hello Priya", "Your premium is due, Priya.", "Thank you."}, f.speaker.spoken())
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.ScriptedSteps))
}

func TestStep_AverageLatencyIsMean(t *testing.T) {
	latencies := []float64{600, 900, 1400, 510}
	nodes := []models.DialogNode{node("a", "x"), node("b", "y"), node("c", "z"), node("d", "w")}
	f := newFixture(t, nodes, models.DefaultCustomer(), Options{Latency: fixedLatencies(latencies...)})

	for f.seq.Step() {
	}

	sum := 0.0
	for _, l := range latencies {
		sum += l
	}
	m := f.store.Metrics()
	assert.InDelta(t, sum/float64(len(latencies)), m.AverageLatency, 1e-9)
	assert.InDelta(t, models.SuccessRate(m.AverageLatency), m.SuccessRate, 1e-9)
	assert.GreaterOrEqual(t, m.SuccessRate, 80.0)
	assert.LessOrEqual(t, m.SuccessRate, 100.0)
}

func TestStep_ResolvesNamePlaceholder(t *testing.T) {
	f := newFixture(t, []models.DialogNode{node("a", "Hello {name}")}, models.CustomerData{Name: "Priya"}, Options{})

	require.True(t, f.seq.Step())
	conv := f.store.Conversation()
	require.Len(t, conv, 2)
	assert.Equal(t, "Hello Priya", conv[1].Text)
}

func TestStep_FallbackNameAndLocale(t *testing.T) {
	nodes := []models.DialogNode{{ID: "a", Prompts: map[string]string{
		"en": "Hello {name}",
		"hi": "नमस्ते {name}",
	}}}
	f := newFixture(t, nodes, models.CustomerData{}, Options{})
	f.store.SetLanguage("hi")

	require.True(t, f.seq.Step())
	assert.Equal(t, "नमस्ते Ajay", f.store.Conversation()[1].Text)
}

func TestStep_NameChangeAffectsOnlyLaterSteps(t *testing.T) {
	nodes := []models.DialogNode{node("a", "Hello {name}"), node("b", "Bye {name}")}
	f := newFixture(t, nodes, models.CustomerData{FullName: "Priya"}, Options{})

	require.True(t, f.seq.Step())
	f.store.UpdateCustomerField(models.FieldFullName, "Meera")
	require.True(t, f.seq.Step())

	conv := f.store.Conversation()
	assert.Equal(t, "Hello Priya", conv[1].Text)
	assert.Equal(t, "Bye Meera", conv[3].Text)
}

func TestStep_EmptyPromptSkipsSpeechOnly(t *testing.T) {
	f := newFixture(t, []models.DialogNode{node("a", ""), node("b", "Hi")}, models.DefaultCustomer(), Options{})

	for f.seq.Step() {
	}
	assert.Equal(t, []string{"Hi"}, f.speaker.spoken())
	assert.Equal(t, 2, f.store.Metrics().TotalTurns)
	assert.Len(t, f.store.Conversation(), 4)
}

func TestStep_ContinuesWithoutSpeechCapability(t *testing.T) {
	f := newFixture(t, []models.DialogNode{node("a", "Hi")}, models.DefaultCustomer(), Options{})
	f.speaker.err = voice.ErrNotSupported

	require.True(t, f.seq.Step())
	assert.Len(t, f.store.Conversation(), 2)
	assert.Equal(t, 1, f.store.Metrics().TotalTurns)
}

func TestStart_IsIdempotentWhileRunning(t *testing.T) {
	ticks := make(chan time.Time, 1)
	f := newFixture(t, []models.DialogNode{node("a", "Hi")}, models.DefaultCustomer(), Options{})
	f.seq.ticker = manualTicker(ticks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.True(t, f.seq.Start(ctx))
	assert.False(t, f.seq.Start(ctx))
	assert.True(t, f.seq.Running())
	assert.True(t, f.store.Running())
	f.seq.Reset()
}

func TestStart_ClearsPreviousConversation(t *testing.T) {
	ticks := make(chan time.Time, 1)
	f := newFixture(t, []models.DialogNode{node("a", "Hi"), node("b", "Bye")}, models.DefaultCustomer(), Options{})
	f.seq.ticker = manualTicker(ticks)
	f.seq.Step()

	require.True(t, f.seq.Start(context.Background()))
	assert.Empty(t, f.store.Conversation())
	assert.Equal(t, models.DefaultMetrics(), f.store.Metrics())
	assert.Equal(t, 0, f.seq.Cursor())
	f.seq.Reset()
}

func TestRun_CompletesOnTimer(t *testing.T) {
	nodes := []models.DialogNode{node("a", "one"), node("b", "two"), node("c", "three")}
	f := newFixture(t, nodes, models.DefaultCustomer(), Options{
		Interval:        5 * time.Millisecond,
		CompletionDelay: 10 * time.Millisecond,
	})

	require.True(t, f.seq.Start(context.Background()))
	require.Eventually(t, func() bool { return !f.seq.Running() }, time.Second, 5*time.Millisecond)

	assert.Len(t, f.store.Conversation(), 6)
	assert.Equal(t, 3, f.store.Metrics().TotalTurns)
	assert.False(t, f.store.Running())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ScriptRuns.WithLabelValues("completed")))
}

func TestRun_EmptySourceProducesNoTurns(t *testing.T) {
	ticks := make(chan time.Time, 1)
	f := newFixture(t, nil, models.DefaultCustomer(), Options{})
	f.seq.ticker = manualTicker(ticks)

	require.True(t, f.seq.Start(context.Background()))
	ticks <- time.Now()

	require.Eventually(t, func() bool { return !f.seq.Running() }, time.Second, 5*time.Millisecond)
	assert.Empty(t, f.store.Conversation())
	assert.Equal(t, 0, f.store.Metrics().TotalTurns)
	assert.Empty(t, f.speaker.spoken())
}

func TestStop_PendingTickNeverSteps(t *testing.T) {
	ticks := make(chan time.Time, 1)
	nodes := []models.DialogNode{node("a", "one"), node("b", "two"), node("c", "three")}
	f := newFixture(t, nodes, models.DefaultCustomer(), Options{CompletionDelay: time.Millisecond})
	f.seq.ticker = manualTicker(ticks)

	require.True(t, f.seq.Start(context.Background()))
	runEpoch := f.epoch()

	ticks <- time.Now()
	require.Eventually(t, func() bool { return f.seq.Cursor() == 1 }, time.Second, time.Millisecond)

	f.seq.Stop()
	select {
	case ticks <- time.Now():
	default:
	}
	// A tick captured before Stop is stale even if it is delivered
	assert.False(t, f.seq.tick(runEpoch))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.seq.Cursor())
	assert.Len(t, f.store.Conversation(), 2)
	assert.Equal(t, 1, f.store.Metrics().TotalTurns)
	assert.False(t, f.seq.Running())
}

func TestStop_RunningDropsAfterCompletionDelay(t *testing.T) {
	ticks := make(chan time.Time, 1)
	f := newFixture(t, []models.DialogNode{node("a", "Hi")}, models.DefaultCustomer(), Options{CompletionDelay: 30 * time.Millisecond})
	f.seq.ticker = manualTicker(ticks)

	require.True(t, f.seq.Start(context.Background()))
	f.seq.Stop()
	assert.True(t, f.seq.Running(), "running stays set during the completion delay")

	require.Eventually(t, func() bool { return !f.seq.Running() }, time.Second, 5*time.Millisecond)
	assert.False(t, f.store.Running())
}

func TestStop_DelayedCompletionIgnoredAfterRestart(t *testing.T) {
	ticks := make(chan time.Time, 1)
	f := newFixture(t, []models.DialogNode{node("a", "Hi")}, models.DefaultCustomer(), Options{CompletionDelay: 30 * time.Millisecond})
	f.seq.ticker = manualTicker(ticks)

	require.True(t, f.seq.Start(context.Background()))
	f.seq.Stop()
	f.seq.Reset()
	require.True(t, f.seq.Start(context.Background()))

	time.Sleep(80 * time.Millisecond)
	assert.True(t, f.seq.Running())
	assert.True(t, f.store.Running())
	f.seq.Reset()
}

func TestReset_RestoresInitialState(t *testing.T) {
	ticks := make(chan time.Time, 1)
	nodes := []models.DialogNode{node("a", "one"), node("b", "two")}
	f := newFixture(t, nodes, models.DefaultCustomer(), Options{Latency: fixedLatencies(1500)})
	f.seq.ticker = manualTicker(ticks)

	require.True(t, f.seq.Start(context.Background()))
	ticks <- time.Now()
	require.Eventually(t, func() bool { return f.seq.Cursor() == 1 }, time.Second, time.Millisecond)

	f.seq.Reset()

	assert.Equal(t, 0, f.seq.Cursor())
	assert.False(t, f.seq.Running())
	assert.False(t, f.store.Running())
	assert.Empty(t, f.store.Conversation())
	assert.Equal(t, models.DefaultMetrics(), f.store.Metrics())

	// Reset on an idle sequencer is harmless
	f.seq.Reset()
	assert.Equal(t, 0, f.seq.Cursor())
}

func TestRun_StopsWhenContextCancelled(t *testing.T) {
	ticks := make(chan time.Time)
	f := newFixture(t, []models.DialogNode{node("a", "Hi")}, models.DefaultCustomer(), Options{CompletionDelay: 10 * time.Millisecond})
	f.seq.ticker = manualTicker(ticks)

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, f.seq.Start(ctx))
	cancel()

	time.Sleep(10 * time.Millisecond)
	select {
	case ticks <- time.Now():
		t.Fatal("loop still consuming ticks after cancellation")
	default:
	}
	assert.Equal(t, 0, f.seq.Cursor())

	require.Eventually(t, func() bool { return !f.seq.Running() }, time.Second, 5*time.Millisecond)
	assert.False(t, f.store.Running())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ScriptRuns.WithLabelValues("cancelled")))

	// the run is not stuck: a new one can start
	require.True(t, f.seq.Start(context.Background()))
	f.seq.Reset()
}
