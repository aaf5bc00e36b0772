package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/Arjun-57561/Veena/pkg/metrics"
	"github.com/Arjun-57561/Veena/pkg/models"
)

const publishQueueSize = 256

type PublisherConfig struct {
	Channel string
	// Stream, when set, also appends each event to a capped Redis stream.
	Stream       string
	StreamMaxLen int64
	Source       string
}

// Envelope is the wire form of a published store event.
type Envelope struct {
	Source string       `json:"source"`
	Event  models.Event `json:"event"`
}

// Publisher forwards store events to Redis from a background loop. Enqueue never blocks;
// events are dropped when the queue is full.
type Publisher struct {
	rdb     *redis.Client
	cfg     PublisherConfig
	logger  *logrus.Logger
	metrics *metrics.Metrics

	queue  chan models.Event
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func NewPublisher(rdb *redis.Client, cfg PublisherConfig, logger *logrus.Logger, m *metrics.Metrics) *Publisher {
	return &Publisher{
		rdb:     rdb,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		queue:   make(chan models.Event, publishQueueSize),
		stopCh:  make(chan struct{}),
	}
}

func (p *Publisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.loop(ctx)

	p.logger.WithFields(logrus.Fields{
		"channel": p.cfg.Channel,
		"stream":  p.cfg.Stream,
	}).Info("Event publisher started")
}

// Stop flushes queued events and waits for the loop to exit.
func (p *Publisher) Stop() {
	p.once.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Publisher) Enqueue(ev models.Event) {
	select {
	case p.queue <- ev:
	default:
		p.logger.WithField("type", ev.Type).Warn("Event queue full, dropping event")
	}
}

func (p *Publisher) loop(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			p.drain()
			return
		case ev := <-p.queue:
			if err := p.Publish(ctx, ev); err != nil {
				p.logger.WithError(err).WithField("type", ev.Type).Error("Failed to publish event")
			}
		}
	}
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-p.queue:
			if err := p.Publish(ctx, ev); err != nil {
				p.logger.WithError(err).WithField("type", ev.Type).Error("Failed to flush event")
			}
		default:
			return
		}
	}
}

// Publish writes one event synchronously.
func (p *Publisher) Publish(ctx context.Context, ev models.Event) error {
	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.RedisOperationDuration.WithLabelValues("publish_event").Observe(time.Since(start).Seconds())
		}
	}()

	data, err := json.Marshal(Envelope{Source: p.cfg.Source, Event: ev})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := p.rdb.Pipeline()
	pipe.Publish(ctx, p.cfg.Channel, data)
	if p.cfg.Stream != "" {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.cfg.Stream,
			MaxLen: p.cfg.StreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"type":   string(ev.Type),
				"source": p.cfg.Source,
				"at":     ev.At.UnixMilli(),
				"data":   data,
			},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
