package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/alert"
	"github.com/ntanwir10/AI-Anamoly-Detector/shared/config"
	"github.com/ntanwir10/AI-Anamoly-Detector/shared/logging"
)

func main() {
	logging.Infof("starting alert-sink bootstrap")

	redisAddr := config.Get("REDIS_ADDR", "localhost:6379")
	channel := config.Get("ALERT_CHANNEL", alert.DefaultChannel)
	dbURL := config.Get("ALERT_DB_URL", "")

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		logging.Fatalf("redis ping %s: %v", redisAddr, err)
	}
	cancel()

	var history *alert.History
	if dbURL != "" {
		h, err := alert.OpenHistory(dbURL)
		if err != nil {
			logging.Fatalf("open alert history: %v", err)
		}
		defer h.Close()
		history = h
		logging.Infof("alert history persistence enabled")
	} else {
		logging.Warnf("ALERT_DB_URL unset, alerts are logged only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	msgs, err := alert.NewRedis(rdb, channel).Listen(ctx)
	if err != nil {
		logging.Fatalf("subscribe %s: %v", channel, err)
	}
	logging.Infof("alert-sink subscribed to %s", channel)

	for msg := range msgs {
		a, err := alert.ParseMessage(msg)
		if err != nil {
			logging.Warnf("unparseable alert dropped: %v", err)
			continue
		}
		logging.Infof("alert id=%s stream_id=%s score=%.4f", a.ID, a.StreamID, a.Score)
		if history == nil {
			continue
		}
		saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := history.Save(saveCtx, a); err != nil {
			logging.Errorf("persist alert %s: %v", a.ID, err)
		}
		cancel()
	}
	logging.Infof("alert-sink shutdown complete")
}
