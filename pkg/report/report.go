package report

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Arjun-57561/Veena/pkg/models"
	"github.com/Arjun-57561/Veena/pkg/voice"
)

// Summary is one periodic view of the session.
type Summary struct {
	InstanceID     string         `json:"instanceId"`
	Running        bool           `json:"isRunning"`
	Cursor         int            `json:"cursor"`
	Steps          int            `json:"steps"`
	Turns          int            `json:"turns"`
	Metrics        models.Metrics `json:"metrics"`
	Phase          voice.Phase    `json:"voicePhase"`
	Language       string         `json:"language"`
	ConnectedPages int            `json:"connectedPages"`
}

// Reporter logs a session summary on a cron schedule.
type Reporter struct {
	cron    *cron.Cron
	logger  *logrus.Logger
	collect func() Summary
}

func New(logger *logrus.Logger, collect func() Summary) *Reporter {
	return &Reporter{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		logger:  logger,
		collect: collect,
	}
}

// Start schedules the report. An empty schedule disables reporting.
func (r *Reporter) Start(schedule string) error {
	if schedule == "" {
		r.logger.Info("Session reports disabled")
		return nil
	}
	if _, err := r.cron.AddFunc(schedule, r.Report); err != nil {
		return fmt.Errorf("invalid report schedule %q: %w", schedule, err)
	}
	r.cron.Start()
	r.logger.WithField("schedule", schedule).Info("Session reports scheduled")
	return nil
}

func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
}

// Report logs the current summary once.
func (r *Reporter) Report() {
	s := r.collect()
	r.logger.WithFields(logrus.Fields{
		"instance_id":     s.InstanceID,
		"running":         s.Running,
		"cursor":          s.Cursor,
		"steps":           s.Steps,
		"turns":           s.Turns,
		"total_turns":     s.Metrics.TotalTurns,
		"average_latency": s.Metrics.AverageLatency,
		"success_rate":    s.Metrics.SuccessRate,
		"voice_phase":     s.Phase,
		"language":        s.Language,
		"connected_pages": s.ConnectedPages,
	}).Info("Session summary")
}

// Scheduled reports whether a schedule is active.
func (r *Reporter) Scheduled() bool {
	return len(r.cron.Entries()) > 0
}
