package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/alert"
	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/detector"
	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/fingerprint"
	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/ml"
	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/stream"
	"github.com/ntanwir10/AI-Anamoly-Detector/shared/config"
	"github.com/ntanwir10/AI-Anamoly-Detector/shared/logging"
)

func main() {
	logging.Infof("starting ai-service bootstrap")

	redisAddr := config.Get("REDIS_ADDR", "localhost:6379")
	streamKey := config.Get("STREAM_KEY", stream.DefaultKey)
	channel := config.Get("ALERT_CHANNEL", alert.DefaultChannel)
	port := config.Get("AI_PORT", "8098")

	schema := fingerprint.Schema{
		Endpoints: config.GetStrings("ENDPOINT_LABELS", fingerprint.DefaultEndpoints),
		Statuses:  config.GetStrings("STATUS_LABELS", fingerprint.DefaultStatuses),
	}

	cfg := detector.DefaultConfig(schema.Dim())
	cfg.TrainingTarget = config.GetInt("TRAINING_TARGET", cfg.TrainingTarget)
	cfg.MaxTraining = config.GetDuration("TRAINING_MAX_SECONDS", cfg.MaxTraining)
	cfg.Block = config.GetDuration("READ_BLOCK_SECONDS", cfg.Block)

	opts := []ml.Option{
		ml.WithSeed(int64(config.GetInt("DETECTOR_SEED", 42))),
		ml.WithContamination(config.GetFloat("DETECTOR_CONTAMINATION", 0.1)),
	}
	if t := config.GetFloat("DETECTOR_THRESHOLD", 0); t > 0 {
		opts = append(opts, ml.WithThreshold(t))
	}
	model := ml.New(opts...)

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		logging.Fatalf("redis ping %s: %v", redisAddr, err)
	}
	cancel()

	d := detector.New(cfg, stream.NewRedis(rdb, streamKey), model, alert.NewRedis(rdb, channel))

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logging.Infof("ai-service listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorf("server stopped: %v", err)
		}
	}()

	err := d.Run(runCtx)
	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	_ = srv.Shutdown(shutCtx)
	cancelShut()

	if errors.Is(err, detector.ErrNoTrainingData) {
		logging.Fatalf("ai-service: %v", err)
	}
	if err != nil {
		logging.Errorf("detector stopped: %v", err)
		os.Exit(1)
	}
	logging.Infof("ai-service shutdown complete")
}
