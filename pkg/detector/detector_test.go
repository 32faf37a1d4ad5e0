package detector

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/alert"
	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/ml"
	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/stream"
)

// jittered returns the base fingerprint with small deterministic
// noise on every coordinate.
func jittered(base []float64, rng *rand.Rand) []float64 {
	out := make([]float64, len(base))
	for i, v := range base {
		out[i] = v + 0.05*(rng.Float64()*2-1)
	}
	return out
}

func testModel() *ml.IsolationForest {
	return ml.New(ml.WithSeed(42), ml.WithSampleSize(20), ml.WithContamination(0.1))
}

func TestTrainThenDetectFlagsOutlier(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := stream.NewMemory()
	bus := alert.NewBus()
	sub := bus.Subscribe()

	cfg := Config{Dim: 5, TrainingTarget: 20, MaxTraining: time.Minute, Block: 50 * time.Millisecond}
	d := New(cfg, src, testModel(), bus)
	d.cursor = stream.Start // deterministic: consume everything the test appends

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// Training window: 20 near-identical fingerprints.
	rng := rand.New(rand.NewSource(1))
	base := []float64{0.5, 0.5, 0.8, 0.2, 0.0}
	for i := 0; i < 20; i++ {
		if _, err := src.Append(ctx, jittered(base, rng)); err != nil {
			t.Fatal(err)
		}
	}
	waitForModel(t, d)

	// A fingerprint far outside the training range must alert.
	if _, err := src.Append(ctx, []float64{0.0, 5.0, 0.0, 0.0, 5.0}); err != nil {
		t.Fatal(err)
	}
	select {
	case a := <-sub:
		if len(a.Fingerprint) != 5 {
			t.Errorf("alert fingerprint dim = %d, want 5", len(a.Fingerprint))
		}
		if a.Score <= d.model.Threshold {
			t.Errorf("alert score %f not above threshold %f", a.Score, d.model.Threshold)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no alert for outlier fingerprint")
	}

	// A normal fingerprint must pass silently: exactly one alert total.
	if _, err := src.Append(ctx, jittered(base, rng)); err != nil {
		t.Fatal(err)
	}
	select {
	case a := <-sub:
		t.Fatalf("unexpected second alert %s score=%f", a.ID, a.Score)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after cancel while detecting, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func waitForModel(t *testing.T, d *Detector) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if d.model.Fitted() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("model never fitted")
}

func TestMalformedEntriesDoNotCountTowardTraining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := stream.NewMemory()
	cfg := Config{Dim: 2, TrainingTarget: 3, MaxTraining: time.Minute, Block: 50 * time.Millisecond}
	d := New(cfg, src, testModel(), alert.NewBus())
	d.cursor = stream.Start

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	src.AppendRaw("not a fingerprint")
	src.AppendRaw("[0.100000,0.900000")     // missing bracket
	src.AppendRaw("[1.000000]")             // wrong dimensionality
	_, _ = src.Append(ctx, []float64{1, 0}) // 1 of 3
	_, _ = src.Append(ctx, []float64{0.9, 0.1})
	if d.model.Fitted() {
		t.Fatal("model fitted before target reached")
	}
	_, _ = src.Append(ctx, []float64{0.8, 0.2}) // 3 of 3
	waitForModel(t, d)

	cancel()
	<-done
}

func TestZeroTrainingSamplesIsFatal(t *testing.T) {
	src := stream.NewMemory()
	cfg := Config{Dim: 2, TrainingTarget: 5, MaxTraining: 100 * time.Millisecond, Block: 20 * time.Millisecond}
	d := New(cfg, src, testModel(), alert.NewBus())

	err := d.Run(context.Background())
	if !errors.Is(err, ErrNoTrainingData) {
		t.Fatalf("Run = %v, want ErrNoTrainingData", err)
	}
}

func TestMalformedOnlyWindowIsFatal(t *testing.T) {
	src := stream.NewMemory()
	src.AppendRaw("garbage")
	src.AppendRaw("[bad]")

	cfg := Config{Dim: 2, TrainingTarget: 5, MaxTraining: 150 * time.Millisecond, Block: 20 * time.Millisecond}
	d := New(cfg, src, testModel(), alert.NewBus())
	d.cursor = stream.Start // see the malformed history

	err := d.Run(context.Background())
	if !errors.Is(err, ErrNoTrainingData) {
		t.Fatalf("Run = %v, want ErrNoTrainingData", err)
	}
}

func TestCancelDuringTraining(t *testing.T) {
	src := stream.NewMemory()
	cfg := Config{Dim: 2, TrainingTarget: 5, MaxTraining: time.Minute, Block: 20 * time.Millisecond}
	d := New(cfg, src, testModel(), alert.NewBus())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel during training")
	}
}

// publishCounter fails on demand and counts successes.
type publishCounter struct {
	mu   sync.Mutex
	fail bool
	n    int
}

func (p *publishCounter) Publish(_ context.Context, _ alert.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("channel down")
	}
	p.n++
	return nil
}

func (p *publishCounter) setFail(v bool) {
	p.mu.Lock()
	p.fail = v
	p.mu.Unlock()
}

func (p *publishCounter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

func TestPublishFailureDoesNotStopDetection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := stream.NewMemory()
	pub := &publishCounter{fail: true}
	cfg := Config{Dim: 5, TrainingTarget: 20, MaxTraining: time.Minute, Block: 50 * time.Millisecond}
	d := New(cfg, src, testModel(), pub)
	d.cursor = stream.Start

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	rng := rand.New(rand.NewSource(2))
	base := []float64{0.5, 0.5, 0.8, 0.2, 0.0}
	for i := 0; i < 20; i++ {
		_, _ = src.Append(ctx, jittered(base, rng))
	}
	waitForModel(t, d)

	// First outlier: publish fails, loop must keep going.
	_, _ = src.Append(ctx, []float64{0.0, 5.0, 0.0, 0.0, 5.0})
	time.Sleep(200 * time.Millisecond)

	pub.setFail(false)
	_, _ = src.Append(ctx, []float64{5.0, 0.0, 5.0, 5.0, 0.0})

	deadline := time.Now().Add(5 * time.Second)
	for pub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if pub.count() == 0 {
		t.Fatal("detection loop stopped after publish failure")
	}
	cancel()
	<-done
}
