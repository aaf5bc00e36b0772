package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Arjun-57561/Veena/pkg/config"
	"github.com/Arjun-57561/Veena/pkg/handlers"
)

// NewRouter wires the session routes. ws serves the browser WebSocket.
func NewRouter(handler *handlers.Handler, ws http.HandlerFunc, logger *logrus.Logger) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", handler.Health).Methods("GET")
	router.HandleFunc("/status", handler.Status).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s := router.PathPrefix("/session").Subrouter()
	s.HandleFunc("", handler.Snapshot).Methods("GET")
	s.HandleFunc("/ws", ws).Methods("GET")
	s.HandleFunc("/script/start", handler.StartScript).Methods("POST")
	s.HandleFunc("/script/stop", handler.StopScript).Methods("POST")
	s.HandleFunc("/reset", handler.Reset).Methods("POST")
	s.HandleFunc("/interrupt", handler.Interrupt).Methods("POST")
	s.HandleFunc("/listen", handler.StartListening).Methods("POST")
	s.HandleFunc("/listen/stop", handler.StopListening).Methods("POST")
	s.HandleFunc("/language", handler.ChangeLanguage).Methods("PUT")
	s.HandleFunc("/customer", handler.UpdateCustomer).Methods("PATCH")
	s.HandleFunc("/customer/submit", handler.SubmitCustomer).Methods("POST")
	s.HandleFunc("/customer/{field}", handler.UpdateField).Methods("PUT")
	s.HandleFunc("/welcome", handler.Welcome).Methods("POST")
	s.HandleFunc("/query", handler.Query).Methods("POST")
	s.HandleFunc("/query/profile", handler.ProfileQuery).Methods("POST")

	router.Use(loggingMiddleware(logger))
	return router
}

// Hub serves the browser WebSocket.
type Hub interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

func NewHTTPServer(cfg *config.Config, handler *handlers.Handler, hub Hub, logger *logrus.Logger) *http.Server {
	return &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     NewRouter(handler, hub.ServeWS, logger),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the WebSocket connection manages its own write deadlines
		IdleTimeout: 60 * time.Second,
	}
}

// statusRecorder keeps the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			entry := logger.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			if rec.status >= http.StatusInternalServerError {
				entry.Warn("HTTP request failed")
				return
			}
			entry.Debug("HTTP request processed")
		})
	}
}
