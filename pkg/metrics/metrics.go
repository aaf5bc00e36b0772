package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Arjun-57561/Veena/pkg/models"
)

type Metrics struct {
	ScriptedSteps            prometheus.Counter
	ScriptRuns               *prometheus.CounterVec
	StepLatency              prometheus.Histogram
	AverageLatency           prometheus.Gauge
	SuccessRate              prometheus.Gauge
	TotalTurns               prometheus.Gauge
	VoiceTransitions         *prometheus.CounterVec
	AssistantRequestDuration *prometheus.HistogramVec
	AssistantFailures        *prometheus.CounterVec
	RedisOperationDuration   *prometheus.HistogramVec
	HubClients               prometheus.Gauge
}

// NewMetrics registers the collectors on reg. Pass prometheus.DefaultRegisterer to expose them
// through promhttp.Handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ScriptedSteps: factory.NewCounter(prometheus.CounterOpts{
			Name: "veena_scripted_steps_total",
			Help: "Total number of scripted dialog steps played",
		}),
		ScriptRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "veena_script_runs_total",
			Help: "Scripted runs by outcome",
		}, []string{"outcome"}),
		StepLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "veena_step_latency_seconds",
			Help:    "Per-step latency recorded by the dialog sequencer",
			Buckets: prometheus.LinearBuckets(0.5, 0.25, 5),
		}),
		AverageLatency: factory.NewGauge(prometheus.GaugeOpts{
			Name: "veena_average_latency_milliseconds",
			Help: "Running mean of step latencies in the current conversation",
		}),
		SuccessRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "veena_success_rate_percent",
			Help: "Derived success rate of the current conversation",
		}),
		TotalTurns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "veena_total_turns",
			Help: "Steps counted in the current conversation",
		}),
		VoiceTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "veena_voice_transitions_total",
			Help: "Voice state transitions by event and target phase",
		}, []string{"event", "phase"}),
		AssistantRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "veena_assistant_request_duration_seconds",
			Help:    "Time taken for assistant requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		AssistantFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "veena_assistant_failures_total",
			Help: "Total number of failed assistant requests",
		}, []string{"operation"}),
		RedisOperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "veena_redis_operation_duration_seconds",
			Help:    "Time taken for Redis operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		HubClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "veena_hub_clients",
			Help: "Connected browser clients",
		}),
	}
}

// ObserveConversation mirrors the session aggregate into the gauges.
func (m *Metrics) ObserveConversation(agg models.Metrics) {
	m.AverageLatency.Set(agg.AverageLatency)
	m.SuccessRate.Set(agg.SuccessRate)
	m.TotalTurns.Set(float64(agg.TotalTurns))
}
