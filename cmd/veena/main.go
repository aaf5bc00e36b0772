package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/Arjun-57561/Veena/pkg/assistant"
	"github.com/Arjun-57561/Veena/pkg/config"
	"github.com/Arjun-57561/Veena/pkg/dialog"
	"github.com/Arjun-57561/Veena/pkg/metrics"
	redisClient "github.com/Arjun-57561/Veena/pkg/redis"
	"github.com/Arjun-57561/Veena/pkg/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"instance_id":    cfg.InstanceID,
		"assistant_mode": cfg.AssistantMode,
	}).Info("Starting Veena")

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	nodes, err := dialog.Load(cfg.DialogPath)
	if err != nil {
		logger.WithError(err).WithField("path", cfg.DialogPath).Fatal("Failed to load dialog source")
	}

	client, err := assistant.New(cfg, nodes, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create assistant client")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := session.Deps{Nodes: nodes, Assistant: client}

	var publisher *redisClient.Publisher
	if cfg.RedisURL != "" {
		redis, err := redisClient.NewClient(ctx, redisClient.DefaultOptions(cfg.RedisURL), logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redis.Close()

		publisher = redisClient.NewPublisher(redis.Redis(), redisClient.PublisherConfig{
			Channel:      cfg.EventsChannel,
			Stream:       cfg.EventsStream,
			StreamMaxLen: cfg.EventsStreamLen,
			Source:       cfg.InstanceID,
		}, logger, m)
		publisher.Start(ctx)
		deps.Sink = publisher
	} else {
		logger.Info("REDIS_URL not set, event feed disabled")
	}

	service := session.NewService(cfg, logger, m, deps)
	if err := service.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start service")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := service.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error during service shutdown")
	}
	if publisher != nil {
		publisher.Stop()
	}

	logger.Info("Veena shutdown complete")
}
