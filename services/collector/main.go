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

	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/sketch"
	"github.com/ntanwir10/AI-Anamoly-Detector/shared/config"
	"github.com/ntanwir10/AI-Anamoly-Detector/shared/logging"
)

const (
	endpointCMSKey  = "endpoint-frequency"
	statusCMSKey    = "status-codes"
	serviceCallsKey = "service-calls"
	cuckooCapacity  = 10000
)

func main() {
	logging.Infof("starting collector bootstrap")

	redisAddr := config.Get("REDIS_ADDR", "localhost:6379")
	port := config.Get("COLLECTOR_PORT", "4000")

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		logging.Fatalf("redis ping %s: %v", redisAddr, err)
	}
	cancel()

	endpoints := sketch.NewRedisCMS(rdb, endpointCMSKey)
	statuses := sketch.NewRedisCMS(rdb, statusCMSKey)
	pairs := sketch.NewRedisCuckoo(rdb, serviceCallsKey, cuckooCapacity)
	if err := endpoints.Init(context.Background()); err != nil {
		logging.Fatalf("init endpoint sketch: %v", err)
	}
	if err := statuses.Init(context.Background()); err != nil {
		logging.Fatalf("init status sketch: %v", err)
	}
	if err := pairs.Init(context.Background()); err != nil {
		logging.Fatalf("init cuckoo filter: %v", err)
	}

	srvLogic := NewServer(endpoints, statuses, pairs, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/", srvLogic.InfoHandler)
	mux.HandleFunc("/api/metrics", srvLogic.MetricsHandler)
	mux.HandleFunc("/health", srvLogic.HealthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-runCtx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logging.Errorf("shutdown: %v", err)
		}
	}()

	logging.Infof("collector listening on :%s", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Errorf("server stopped: %v", err)
		os.Exit(1)
	}
	logging.Infof("collector shutdown complete")
}
