package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Arjun-57561/Veena/pkg/config"
	"github.com/Arjun-57561/Veena/pkg/constants"
	"github.com/Arjun-57561/Veena/pkg/metrics"
	"github.com/Arjun-57561/Veena/pkg/models"
)

// ErrRequestFailed wraps every transport or non-success failure of the external assistant.
var ErrRequestFailed = errors.New("assistant request failed")

type WelcomeRequest struct {
	Lang     string `json:"lang"`
	UserID   string `json:"user_id"`
	FullName string `json:"full_name"`
}

type QueryRequest struct {
	Text         string              `json:"text"`
	UserID       string              `json:"user_id"`
	CustomerData models.CustomerData `json:"customerData"`
	Lang         string              `json:"lang,omitempty"`
}

// Reply is the response shape shared by the welcome and query calls.
type Reply struct {
	Response     string               `json:"response"`
	AudioURL     *string              `json:"audio_url"`
	Lang         string               `json:"lang"`
	CustomerData *models.CustomerData `json:"customerData,omitempty"`
}

type Client interface {
	Welcome(ctx context.Context, req WelcomeRequest) (Reply, error)
	Query(ctx context.Context, req QueryRequest) (Reply, error)
	SaveCustomer(ctx context.Context, customer models.CustomerData) error
}

// New builds the client selected by cfg.AssistantMode.
func New(cfg *config.Config, nodes []models.DialogNode, logger *logrus.Logger) (Client, error) {
	switch strings.ToLower(cfg.AssistantMode) {
	case "", constants.AssistantModeMock:
		return NewMock(), nil
	case constants.AssistantModeHTTP:
		return NewHTTPClient(cfg.AssistantBaseURL, cfg.AssistantRequestTimeout()), nil
	case constants.AssistantModeLLM:
		if cfg.LLMAPIKey == "" {
			return nil, fmt.Errorf("assistant mode %q requires LLM_API_KEY", cfg.AssistantMode)
		}
		return NewLLMClient(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, nodes, logger), nil
	default:
		return nil, fmt.Errorf("unknown assistant mode: %s", cfg.AssistantMode)
	}
}

func failed(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrRequestFailed, op, err)
}

type instrumented struct {
	next    Client
	metrics *metrics.Metrics
}

// WithMetrics records duration and failures of every call made through c. A nil m returns c as is.
func WithMetrics(c Client, m *metrics.Metrics) Client {
	if m == nil {
		return c
	}
	return &instrumented{next: c, metrics: m}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.metrics.AssistantRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		i.metrics.AssistantFailures.WithLabelValues(op).Inc()
	}
}

func (i *instrumented) Welcome(ctx context.Context, req WelcomeRequest) (Reply, error) {
	start := time.Now()
	reply, err := i.next.Welcome(ctx, req)
	i.observe("welcome", start, err)
	return reply, err
}

func (i *instrumented) Query(ctx context.Context, req QueryRequest) (Reply, error) {
	start := time.Now()
	reply, err := i.next.Query(ctx, req)
	i.observe("query", start, err)
	return reply, err
}

func (i *instrumented) SaveCustomer(ctx context.Context, customer models.CustomerData) error {
	start := time.Now()
	err := i.next.SaveCustomer(ctx, customer)
	i.observe("save_customer", start, err)
	return err
}
