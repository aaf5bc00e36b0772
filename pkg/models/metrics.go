package models

import "github.com/Arjun-57561/Veena/pkg/constants"

// Metrics is the rolling session aggregate. AverageLatency is in milliseconds.
type Metrics struct {
	AverageLatency float64 `json:"averageLatency"`
	TotalTurns     int     `json:"totalTurns"`
	SuccessRate    float64 `json:"successRate"`
}

func DefaultMetrics() Metrics {
	return Metrics{SuccessRate: constants.MaxSuccessRate}
}

// Record folds one step latency into the aggregate and returns the new value.
func (m Metrics) Record(latencyMs float64) Metrics {
	total := m.TotalTurns + 1
	avg := (m.AverageLatency*float64(m.TotalTurns) + latencyMs) / float64(total)
	return Metrics{
		AverageLatency: avg,
		TotalTurns:     total,
		SuccessRate:    SuccessRate(avg),
	}
}

// SuccessRate applies the linear latency penalty clamped to [80, 100].
func SuccessRate(avgLatencyMs float64) float64 {
	rate := constants.MaxSuccessRate - (avgLatencyMs/1000)*constants.SuccessPenaltyPerSecond
	if rate < constants.MinSuccessRate {
		return constants.MinSuccessRate
	}
	if rate > constants.MaxSuccessRate {
		return constants.MaxSuccessRate
	}
	return rate
}
