package hub

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Arjun-57561/Veena/pkg/metrics"
	"github.com/Arjun-57561/Veena/pkg/models"
	"github.com/Arjun-57561/Veena/pkg/voice"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	id          string
	seq         uint64
	conn        *websocket.Conn
	send        chan []byte
	speech      bool
	recognition bool
}

// Hub connects browser pages to the session. The browser hosts the native speech capabilities,
// so the hub doubles as the Utterance Renderer and the Transcript Listener.
type Hub struct {
	logger  *logrus.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	clients    map[*client]struct{}
	nextSeq    uint64
	utterances map[string]pendingUtterance
	sessions   map[string]pendingSession
	snapshot   func() interface{}
	closed     bool
}

func New(logger *logrus.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		logger:     logger,
		metrics:    m,
		clients:    make(map[*client]struct{}),
		utterances: make(map[string]pendingUtterance),
		sessions:   make(map[string]pendingSession),
	}
}

// SetSnapshot installs the function whose result greets every new connection.
func (h *Hub) SetSnapshot(fn func() interface{}) {
	h.mu.Lock()
	h.snapshot = fn
	h.mu.Unlock()
}

// ServeWS upgrades the request and serves the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.nextSeq++
	c.seq = h.nextSeq
	h.clients[c] = struct{}{}
	count := len(h.clients)
	snapshot := h.snapshot
	h.mu.Unlock()

	h.observeClients(count)
	h.logger.WithField("client_id", c.id).Info("Browser connected")

	if snapshot != nil {
		h.sendTo(c, Outbound{Type: TypeSnapshot, State: snapshot()})
	}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)

	var ends []func()
	for id, p := range h.utterances {
		if p.owner == c {
			delete(h.utterances, id)
			if p.cb.OnEnd != nil {
				ends = append(ends, p.cb.OnEnd)
			}
		}
	}
	for id, p := range h.sessions {
		if p.owner == c {
			delete(h.sessions, id)
			if p.sh.OnEnd != nil {
				ends = append(ends, p.sh.OnEnd)
			}
		}
	}
	h.mu.Unlock()

	h.observeClients(count)
	h.logger.WithFields(logrus.Fields{
		"client_id": c.id,
		"released":  len(ends),
	}).Info("Browser disconnected")

	// a page that goes away mid-utterance or mid-recognition never reports the end itself
	for _, end := range ends {
		end()
	}
}

func (h *Hub) observeClients(n int) {
	if h.metrics != nil {
		h.metrics.HubClients.Set(float64(n))
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).WithField("client_id", c.id).Warn("WebSocket read failed")
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.WithError(err).WithField("client_id", c.id).Debug("Ignoring malformed frame")
			continue
		}
		h.dispatch(c, msg)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one browser report. Callbacks run without the hub lock held because they
// write to the store, whose subscribers broadcast back through the hub.
func (h *Hub) dispatch(c *client, msg Inbound) {
	switch strings.ToLower(msg.Type) {
	case TypeCapabilities:
		h.mu.Lock()
		c.speech = msg.Speech
		c.recognition = msg.Recognition
		h.mu.Unlock()
		h.logger.WithFields(logrus.Fields{
			"client_id":   c.id,
			"speech":      msg.Speech,
			"recognition": msg.Recognition,
		}).Info("Browser capabilities reported")

	case TypeSpeechStart:
		if cb, ok := h.utterance(c, msg.UtteranceID, false); ok && cb.OnStart != nil {
			cb.OnStart()
		}
	case TypeSpeechEnd:
		if cb, ok := h.utterance(c, msg.UtteranceID, true); ok && cb.OnEnd != nil {
			cb.OnEnd()
		}

	case TypeTranscript:
		if sh, ok := h.session(c, msg.SessionID, false); ok && sh.OnTranscript != nil {
			sh.OnTranscript(voice.TranscriptEvent{Text: msg.Text, Confidence: msg.Confidence, Final: msg.Final})
		}
	case TypeRecognitionError:
		if sh, ok := h.session(c, msg.SessionID, true); ok && sh.OnError != nil {
			sh.OnError(errors.New(msg.Error))
		}
	case TypeRecognitionEnd:
		if sh, ok := h.session(c, msg.SessionID, true); ok && sh.OnEnd != nil {
			sh.OnEnd()
		}

	default:
		h.logger.WithField("type", msg.Type).Debug("Ignoring unknown frame type")
	}
}

// utterance looks up the callbacks of id if c owns it.
func (h *Hub) utterance(c *client, id string, remove bool) (voice.Callbacks, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.utterances[id]
	if !ok {
		return voice.Callbacks{}, false
	}
	if p.owner != c {
		h.logger.WithFields(logrus.Fields{"client_id": c.id, "utterance_id": id}).Debug("Ignoring speech report from non-owning page")
		return voice.Callbacks{}, false
	}
	if remove {
		delete(h.utterances, id)
	}
	return p.cb, true
}

// session looks up the handler of id if c owns it.
func (h *Hub) session(c *client, id string, remove bool) (voice.SessionHandler, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.sessions[id]
	if !ok {
		return voice.SessionHandler{}, false
	}
	if p.owner != c {
		h.logger.WithFields(logrus.Fields{"client_id": c.id, "session_id": id}).Debug("Ignoring recognition report from non-owning page")
		return voice.SessionHandler{}, false
	}
	if remove {
		delete(h.sessions, id)
	}
	return p.sh, true
}

func (h *Hub) sendTo(c *client, msg Outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).WithField("type", msg.Type).Error("Failed to encode frame")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enqueueLocked(c, data)
}

func (h *Hub) enqueueLocked(c *client, data []byte) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.WithField("client_id", c.id).Warn("Client send buffer full, dropping frame")
	}
}

// broadcast writes msg to every client that passes filter; filter nil means all.
func (h *Hub) broadcast(msg Outbound, filter func(*client) bool) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).WithField("type", msg.Type).Error("Failed to encode frame")
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	sent := 0
	for c := range h.clients {
		if filter != nil && !filter(c) {
			continue
		}
		h.enqueueLocked(c, data)
		sent++
	}
	return sent
}

// Publish fans a store event out to every connected page. It never blocks.
func (h *Hub) Publish(ev models.Event) {
	h.broadcast(Outbound{Type: TypeEvent, Event: &ev}, nil)
}

// Clients returns the number of connected pages.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every page and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

func (h *Hub) anyClient(pred func(*client) bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if pred(c) {
			return true
		}
	}
	return false
}

// newestLocked returns the most recently connected client passing pred, or nil.
func (h *Hub) newestLocked(pred func(*client) bool) *client {
	var newest *client
	for c := range h.clients {
		if pred(c) && (newest == nil || c.seq > newest.seq) {
			newest = c
		}
	}
	return newest
}

func canSpeak(c *client) bool  { return c.speech }
func canListen(c *client) bool { return c.recognition }
