// Package detector consumes the fingerprint stream, learns a baseline
// from an initial window, and classifies every later fingerprint
// against that fixed baseline.
package detector

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/alert"
	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/fingerprint"
	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/ml"
	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/stream"
	"github.com/ntanwir10/AI-Anamoly-Detector/shared/logging"
)

// ErrNoTrainingData is the fatal startup condition: the training time
// bound elapsed without a single usable fingerprint.
var ErrNoTrainingData = errors.New("detector: no training data collected within time bound")

// Config controls the training window and the read loop.
type Config struct {
	// Dim is the expected fingerprint dimensionality. Entries with a
	// different dimensionality are skipped.
	Dim int
	// TrainingTarget is the number of fingerprints to accumulate
	// before fitting the baseline.
	TrainingTarget int
	// MaxTraining bounds the elapsed training time; on expiry the
	// window is cut short (fatal if still empty).
	MaxTraining time.Duration
	// Block is the per-read timeout keeping the loop responsive.
	Block time.Duration
}

// DefaultConfig mirrors the reference deployment.
func DefaultConfig(dim int) Config {
	return Config{
		Dim:            dim,
		TrainingTarget: 10,
		MaxTraining:    10 * time.Minute,
		Block:          10 * time.Second,
	}
}

var (
	mConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "detector", Name: "entries_consumed_total",
		Help: "Stream entries read.",
	})
	mSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "detector", Name: "entries_skipped_total",
		Help: "Malformed or wrong-dimension entries skipped.",
	})
	mAnomalies = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "detector", Name: "anomalies_total",
		Help: "Fingerprints classified anomalous.",
	})
	mPublishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "detector", Name: "alert_publish_errors_total",
		Help: "Alert publishes that failed and were dropped.",
	})
	mState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "detector", Name: "state",
		Help: "0 while training, 1 while detecting.",
	})
)

func init() {
	_ = prometheus.Register(mConsumed)
	_ = prometheus.Register(mSkipped)
	_ = prometheus.Register(mAnomalies)
	_ = prometheus.Register(mPublishErrors)
	_ = prometheus.Register(mState)
}

// Detector runs the two-state loop: Training, then Detecting until
// the process exits. The baseline is never refit; restart the process
// to re-baseline after distribution drift.
type Detector struct {
	cfg    Config
	src    stream.Stream
	model  *ml.IsolationForest
	alerts alert.Publisher
	cursor string
}

// New wires a Detector. model must be unfitted; the Detector fits it
// exactly once.
func New(cfg Config, src stream.Stream, model *ml.IsolationForest, alerts alert.Publisher) *Detector {
	return &Detector{cfg: cfg, src: src, model: model, alerts: alerts, cursor: stream.Tail}
}

// Run executes Training then Detecting. It returns ErrNoTrainingData
// on the fatal empty-window condition, ctx.Err() on cancellation
// during training, and nil when cancelled while detecting.
func (d *Detector) Run(ctx context.Context) error {
	if err := d.train(ctx); err != nil {
		return err
	}
	d.detect(ctx)
	return nil
}

// sleep waits up to d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// next reads one entry and advances the cursor. A timeout yields
// (nil, nil) with the cursor unchanged; the caller just retries.
func (d *Detector) next(ctx context.Context) (*stream.Entry, error) {
	entry, cursor, err := d.src.Read(ctx, d.cursor, d.cfg.Block)
	if err != nil {
		return nil, err
	}
	d.cursor = cursor
	return entry, nil
}

// parse validates one entry, counting and logging skips.
func (d *Detector) parse(e *stream.Entry) ([]float64, bool) {
	mConsumed.Inc()
	vec, err := fingerprint.Parse(e.Data)
	if err != nil {
		mSkipped.Inc()
		logging.Warnf("detector: skipping malformed entry %s: %v", e.ID, err)
		return nil, false
	}
	if d.cfg.Dim > 0 && len(vec) != d.cfg.Dim {
		mSkipped.Inc()
		logging.Warnf("detector: skipping entry %s: dim %d, want %d", e.ID, len(vec), d.cfg.Dim)
		return nil, false
	}
	return vec, true
}

func (d *Detector) train(ctx context.Context) error {
	mState.Set(0)
	logging.Infof("detector: collecting training data, target=%d max=%s", d.cfg.TrainingTarget, d.cfg.MaxTraining)
	deadline := time.Now().Add(d.cfg.MaxTraining)
	var samples [][]float64
	for len(samples) < d.cfg.TrainingTarget && time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := d.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Warnf("detector: stream read failed, retrying: %v", err)
			sleep(ctx, time.Second)
			continue
		}
		if entry == nil {
			continue // timed out, retry
		}
		vec, ok := d.parse(entry)
		if !ok {
			continue
		}
		samples = append(samples, vec)
		logging.Infof("detector: collected %d/%d", len(samples), d.cfg.TrainingTarget)
	}
	if len(samples) == 0 {
		return ErrNoTrainingData
	}
	if err := d.model.Fit(samples); err != nil {
		return err
	}
	logging.Infof("detector: baseline fitted on %d samples, threshold=%.4f; entering detection mode", len(samples), d.model.Threshold)
	return nil
}

func (d *Detector) detect(ctx context.Context) {
	mState.Set(1)
	for {
		if ctx.Err() != nil {
			logging.Infof("detector: shutting down")
			return
		}
		entry, err := d.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logging.Warnf("detector: stream read failed, retrying: %v", err)
			sleep(ctx, time.Second)
			continue
		}
		if entry == nil {
			continue
		}
		vec, ok := d.parse(entry)
		if !ok {
			continue
		}
		score := d.model.Score(vec)
		if score <= d.model.Threshold {
			continue
		}
		mAnomalies.Inc()
		a := alert.New(entry.ID, score, vec)
		logging.Infof("detector: %s", a)
		if err := d.alerts.Publish(ctx, a); err != nil {
			mPublishErrors.Inc()
			logging.Warnf("detector: alert publish failed, dropped: %v", err)
		}
	}
}
