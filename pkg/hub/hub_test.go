package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arjun-57561/Veena/pkg/metrics"
	"github.com/Arjun-57561/Veena/pkg/models"
	"github.com/Arjun-57561/Veena/pkg/voice"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type page struct {
	t    *testing.T
	conn *websocket.Conn
}

func (p *page) send(msg Inbound) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(msg))
}

// readType skips frames until one of type typ arrives.
func (p *page) readType(typ string) Outbound {
	p.t.Helper()
	for {
		require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg Outbound
		require.NoError(p.t, p.conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func setupPages(t *testing.T, n int) (*Hub, *metrics.Metrics, []*page) {
	t.Helper()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	h := New(testLogger(), m)
	h.SetSnapshot(func() interface{} { return map[string]string{"language": "en"} })

	server := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	pages := make([]*page, 0, n)
	for i := 0; i < n; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })

		p := &page{t: t, conn: conn}
		snap := p.readType(TypeSnapshot)
		assert.NotNil(t, snap.State)
		pages = append(pages, p)
	}
	return h, m, pages
}

func setup(t *testing.T) (*Hub, *metrics.Metrics, *page) {
	t.Helper()
	h, m, pages := setupPages(t, 1)
	return h, m, pages[0]
}

func withCapabilities(t *testing.T, h *Hub, p *page, speech, recognition bool) {
	t.Helper()
	p.send(Inbound{Type: TypeCapabilities, Speech: speech, Recognition: recognition})
	require.Eventually(t, func() bool {
		return h.Renderer().Supported() == speech && h.Listener().Supported() == recognition
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHub_NoPageMeansNotSupported(t *testing.T) {
	h := New(testLogger(), nil)
	assert.False(t, h.Renderer().Supported())
	assert.False(t, h.Listener().Supported())

	err := h.Renderer().Speak(voice.Utterance{ID: "u1", Text: "hi"}, voice.Callbacks{})
	assert.Error(t, err)
	_, err = h.Listener().Listen("en", voice.SessionHandler{})
	assert.Error(t, err)
}

func TestHub_TracksClients(t *testing.T) {
	h, m, p := setup(t)
	assert.Equal(t, 1, h.Clients())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HubClients))

	p.conn.Close()
	require.Eventually(t, func() bool { return h.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HubClients))
}

func TestHub_SpeakRoundTrip(t *testing.T) {
	h, _, p := setup(t)
	withCapabilities(t, h, p, true, false)

	var mu sync.Mutex
	var seen []string
	record := func(s string) func() {
		return func() {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		}
	}

	u := voice.Utterance{ID: "u1", Text: "Hello Ajay", Lang: "en"}
	require.NoError(t, h.Renderer().Speak(u, voice.Callbacks{OnStart: record("start"), OnEnd: record("end")}))

	cmd := p.readType(TypeSpeak)
	require.NotNil(t, cmd.Utterance)
	assert.Equal(t, u, *cmd.Utterance)

	p.send(Inbound{Type: TypeSpeechStart, UtteranceID: "u1"})
	p.send(Inbound{Type: TypeSpeechEnd, UtteranceID: "u1"})
	// Second end for the same utterance is ignored
	p.send(Inbound{Type: TypeSpeechEnd, UtteranceID: "u1"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"start", "end"}, seen)
	mu.Unlock()
}

func TestHub_CancelForgetsCallbacks(t *testing.T) {
	h, _, p := setup(t)
	withCapabilities(t, h, p, true, false)

	called := make(chan struct{}, 1)
	require.NoError(t, h.Renderer().Speak(voice.Utterance{ID: "u1"}, voice.Callbacks{OnEnd: func() { called <- struct{}{} }}))
	p.readType(TypeSpeak)

	h.Renderer().Cancel()
	p.readType(TypeCancelSpeech)

	p.send(Inbound{Type: TypeSpeechEnd, UtteranceID: "u1"})
	select {
	case <-called:
		t.Fatal("callback of cancelled utterance ran")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_RecognitionSession(t *testing.T) {
	h, _, p := setup(t)
	withCapabilities(t, h, p, false, true)

	transcripts := make(chan voice.TranscriptEvent, 4)
	ended := make(chan struct{}, 1)
	sess, err := h.Listener().Listen("hi", voice.SessionHandler{
		OnTranscript: func(ev voice.TranscriptEvent) { transcripts <- ev },
		OnEnd:        func() { ended <- struct{}{} },
	})
	require.NoError(t, err)

	cmd := p.readType(TypeStartRecognition)
	assert.Equal(t, sess.ID(), cmd.SessionID)
	assert.Equal(t, "hi", cmd.Lang)

	p.send(Inbound{Type: TypeTranscript, SessionID: sess.ID(), Text: "policy", Confidence: 0.9, Final: true})
	select {
	case ev := <-transcripts:
		assert.Equal(t, voice.TranscriptEvent{Text: "policy", Confidence: 0.9, Final: true}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("transcript not delivered")
	}

	p.send(Inbound{Type: TypeRecognitionEnd, SessionID: sess.ID()})
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("end not delivered")
	}
}

func TestHub_StoppedSessionIsSilenced(t *testing.T) {
	h, _, p := setup(t)
	withCapabilities(t, h, p, false, true)

	transcripts := make(chan voice.TranscriptEvent, 1)
	sess, err := h.Listener().Listen("en", voice.SessionHandler{
		OnTranscript: func(ev voice.TranscriptEvent) { transcripts <- ev },
	})
	require.NoError(t, err)
	p.readType(TypeStartRecognition)

	sess.Stop()
	stop := p.readType(TypeStopRecognition)
	assert.Equal(t, sess.ID(), stop.SessionID)

	p.send(Inbound{Type: TypeTranscript, SessionID: sess.ID(), Text: "late"})
	select {
	case <-transcripts:
		t.Fatal("stopped session still delivered a transcript")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_PublishFansOutEvents(t *testing.T) {
	h, _, p := setup(t)

	h.Publish(models.Event{Type: models.EventLanguageChanged, At: time.Now(), Payload: "hi"})

	msg := p.readType(TypeEvent)
	require.NotNil(t, msg.Event)
	assert.Equal(t, models.EventLanguageChanged, msg.Event.Type)
	assert.Equal(t, "hi", msg.Event.Payload)
}

func TestHub_CloseDisconnects(t *testing.T) {
	h, _, p := setup(t)
	h.Close()

	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 0, h.Clients())
}

// typesUntilEvent reads frames up to the next event frame and returns the types seen before it.
func (p *page) typesUntilEvent() []string {
	p.t.Helper()
	var types []string
	for {
		require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg Outbound
		require.NoError(p.t, p.conn.ReadJSON(&msg))
		if msg.Type == TypeEvent {
			return types
		}
		types = append(types, msg.Type)
	}
}

func TestHub_CommandsGoToNewestCapablePage(t *testing.T) {
	h, _, pages := setupPages(t, 2)
	older, newer := pages[0], pages[1]
	for _, p := range pages {
		p.send(Inbound{Type: TypeCapabilities, Speech: true, Recognition: true})
	}
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		n := 0
		for c := range h.clients {
			if c.speech && c.recognition {
				n++
			}
		}
		return n == 2
	}, 2*time.Second, 5*time.Millisecond)

	transcripts := make(chan string, 4)
	starts := make(chan struct{}, 4)
	sess, err := h.Listener().Listen("en", voice.SessionHandler{
		OnTranscript: func(ev voice.TranscriptEvent) { transcripts <- ev.Text },
	})
	require.NoError(t, err)
	require.NoError(t, h.Renderer().Speak(voice.Utterance{ID: "u1", Text: "Hello"}, voice.Callbacks{
		OnStart: func() { starts <- struct{}{} },
	}))
	h.Publish(models.Event{Type: models.EventLanguageChanged, At: time.Now()})

	assert.Equal(t, []string{TypeStartRecognition, TypeSpeak}, newer.typesUntilEvent())
	assert.Empty(t, older.typesUntilEvent())

	older.send(Inbound{Type: TypeTranscript, SessionID: sess.ID(), Text: "from older", Final: true})
	older.send(Inbound{Type: TypeSpeechStart, UtteranceID: "u1"})
	newer.send(Inbound{Type: TypeTranscript, SessionID: sess.ID(), Text: "from newer", Final: true})
	newer.send(Inbound{Type: TypeSpeechStart, UtteranceID: "u1"})

	select {
	case text := <-transcripts:
		assert.Equal(t, "from newer", text)
	case <-time.After(2 * time.Second):
		t.Fatal("owner transcript not delivered")
	}
	select {
	case <-starts:
	case <-time.After(2 * time.Second):
		t.Fatal("owner speech start not delivered")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, transcripts)
	assert.Empty(t, starts)
}

func TestHub_DisconnectEndsOwnedSession(t *testing.T) {
	h, _, p := setup(t)
	withCapabilities(t, h, p, true, true)

	ended := make(chan string, 2)
	_, err := h.Listener().Listen("en", voice.SessionHandler{OnEnd: func() { ended <- "recognition" }})
	require.NoError(t, err)
	require.NoError(t, h.Renderer().Speak(voice.Utterance{ID: "u1"}, voice.Callbacks{OnEnd: func() { ended <- "speech" }}))
	p.readType(TypeSpeak)

	p.conn.Close()

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case e := <-ended:
			got = append(got, e)
		case <-time.After(2 * time.Second):
			t.Fatal("pending command not released on disconnect")
		}
	}
	assert.ElementsMatch(t, []string{"recognition", "speech"}, got)
}
