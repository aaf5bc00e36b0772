package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Arjun-57561/Veena/pkg/assistant"
	"github.com/Arjun-57561/Veena/pkg/models"
	"github.com/Arjun-57561/Veena/pkg/report"
	"github.com/Arjun-57561/Veena/pkg/store"
	"github.com/Arjun-57561/Veena/pkg/voice"
)

// Session is the set of presentation intents the HTTP surface forwards.
type Session interface {
	Snapshot() store.Snapshot
	Summary() report.Summary
	RunScript() bool
	StopScript()
	Reset()
	Interrupt() error
	StartListening() error
	StopListening()
	ChangeLanguage(lang string) error
	UpdateCustomer(patch models.CustomerData) models.CustomerData
	UpdateField(field, value string) (models.CustomerData, error)
	SubmitCustomer(ctx context.Context) (assistant.Reply, error)
	Welcome(ctx context.Context) (assistant.Reply, error)
	Query(ctx context.Context, text string) (assistant.Reply, error)
	SubmitProfileQuery(ctx context.Context) (assistant.Reply, error)
}

type Handler struct {
	session    Session
	instanceID string
	logger     *logrus.Logger
}

func NewHandler(session Session, instanceID string, logger *logrus.Logger) *Handler {
	return &Handler{
		session:    session,
		instanceID: instanceID,
		logger:     logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps session errors onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	case errors.Is(err, voice.ErrNotSupported):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, models.ErrUnsupportedLanguage),
		errors.Is(err, models.ErrEmptyQuery),
		errors.Is(err, models.ErrInvalidField):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, assistant.ErrRequestFailed):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}

	h.logger.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Warn("Request failed")
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"instance_id": h.instanceID,
		"timestamp":   time.Now(),
	})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Summary())
}

func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *Handler) StartScript(w http.ResponseWriter, r *http.Request) {
	started := h.session.RunScript()
	writeJSON(w, http.StatusOK, map[string]bool{"started": started})

	h.logger.WithField("started", started).Debug("Scripted run requested")
}

func (h *Handler) StopScript(w http.ResponseWriter, r *http.Request) {
	h.session.StopScript()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.session.Reset()
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *Handler) Interrupt(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Interrupt(); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot().Voice)
}

func (h *Handler) StartListening(w http.ResponseWriter, r *http.Request) {
	if err := h.session.StartListening(); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot().Voice)
}

func (h *Handler) StopListening(w http.ResponseWriter, r *http.Request) {
	h.session.StopListening()
	writeJSON(w, http.StatusOK, h.session.Snapshot().Voice)
}

func (h *Handler) ChangeLanguage(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.session.ChangeLanguage(request.Language); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"language": h.session.Snapshot().Language})
}

func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var patch models.CustomerData
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.session.UpdateCustomer(patch))
}

func (h *Handler) UpdateField(w http.ResponseWriter, r *http.Request) {
	field := mux.Vars(r)["field"]

	var request struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	customer, err := h.session.UpdateField(field, request.Value)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (h *Handler) SubmitCustomer(w http.ResponseWriter, r *http.Request) {
	h.reply(w, r, h.session.SubmitCustomer)
}

func (h *Handler) Welcome(w http.ResponseWriter, r *http.Request) {
	h.reply(w, r, h.session.Welcome)
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	h.reply(w, r, func(ctx context.Context) (assistant.Reply, error) {
		return h.session.Query(ctx, request.Text)
	})
}

func (h *Handler) ProfileQuery(w http.ResponseWriter, r *http.Request) {
	h.reply(w, r, h.session.SubmitProfileQuery)
}

func (h *Handler) reply(w http.ResponseWriter, r *http.Request, call func(context.Context) (assistant.Reply, error)) {
	reply, err := call(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
