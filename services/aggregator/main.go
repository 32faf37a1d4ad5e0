package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/fingerprint"
	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/sketch"
	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/stream"
	"github.com/ntanwir10/AI-Anamoly-Detector/shared/config"
	"github.com/ntanwir10/AI-Anamoly-Detector/shared/logging"
)

const (
	endpointCMSKey = "endpoint-frequency"
	statusCMSKey   = "status-codes"
)

func main() {
	logging.Infof("starting aggregator bootstrap")

	redisAddr := config.Get("REDIS_ADDR", "localhost:6379")
	interval := config.GetDuration("AGG_INTERVAL_SECONDS", 5*time.Second)
	policy := fingerprint.ParseResetPolicy(config.Get("AGG_RESET_POLICY", "windowed"))
	streamKey := config.Get("STREAM_KEY", stream.DefaultKey)
	port := config.Get("AGG_PORT", "8097")

	schema := fingerprint.Schema{
		Endpoints: config.GetStrings("ENDPOINT_LABELS", fingerprint.DefaultEndpoints),
		Statuses:  config.GetStrings("STATUS_LABELS", fingerprint.DefaultStatuses),
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		logging.Fatalf("redis ping %s: %v", redisAddr, err)
	}
	cancel()

	endpoints := sketch.NewRedisCMS(rdb, endpointCMSKey)
	statuses := sketch.NewRedisCMS(rdb, statusCMSKey)
	for _, c := range []*sketch.RedisCMS{endpoints, statuses} {
		if err := c.Init(context.Background()); err != nil {
			logging.Fatalf("init sketch: %v", err)
		}
	}

	builder := fingerprint.NewBuilder(schema, endpoints, statuses,
		stream.NewRedis(rdb, streamKey), policy, interval)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go builder.Run(runCtx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("redis unreachable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-runCtx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logging.Errorf("shutdown: %v", err)
		}
	}()

	logging.Infof("aggregator listening on :%s (interval=%s policy=%s dim=%d)",
		port, interval, policy, schema.Dim())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Errorf("server stopped: %v", err)
		os.Exit(1)
	}
	logging.Infof("aggregator shutdown complete")
}
