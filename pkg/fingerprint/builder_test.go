package fingerprint

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/sketch"
)

// appendLog records appended vectors; optionally fails.
type appendLog struct {
	vecs [][]float64
	fail bool
}

func (a *appendLog) Append(_ context.Context, vec []float64) (string, error) {
	if a.fail {
		return "", errors.New("stream unavailable")
	}
	a.vecs = append(a.vecs, vec)
	return "1", nil
}

// brokenCounter always fails queries.
type brokenCounter struct{}

func (brokenCounter) IncrBy(context.Context, string, int64) error { return nil }
func (brokenCounter) Query(context.Context, []string) ([]int64, error) {
	return nil, errors.New("counter unavailable")
}
func (brokenCounter) Reset(context.Context) error { return errors.New("counter unavailable") }

func seeded(t *testing.T, endpoints, statuses map[string]int64) (*sketch.Memory, *sketch.Memory) {
	t.Helper()
	ctx := context.Background()
	e, s := sketch.NewMemory(), sketch.NewMemory()
	for k, v := range endpoints {
		if err := e.IncrBy(ctx, k, v); err != nil {
			t.Fatal(err)
		}
	}
	for k, v := range statuses {
		if err := s.IncrBy(ctx, k, v); err != nil {
			t.Fatal(err)
		}
	}
	return e, s
}

func TestBuildConcatenatesNormalizedSegments(t *testing.T) {
	e, s := seeded(t,
		map[string]int64{"GET:/api/data": 10, "GET:/api/error": 0},
		map[string]int64{"200": 8, "500": 2, "599": 0},
	)
	b := NewBuilder(DefaultSchema(), e, s, &appendLog{}, Windowed, time.Second)

	vec := b.Build(context.Background())
	want := []float64{1.0, 0.0, 0.8, 0.2, 0.0}
	if len(vec) != len(want) {
		t.Fatalf("dim = %d, want %d", len(vec), len(want))
	}
	for i := range want {
		if math.Abs(vec[i]-want[i]) > 1e-9 {
			t.Errorf("vec[%d] = %f, want %f", i, vec[i], want[i])
		}
	}
}

func TestBuildAllZeroCounts(t *testing.T) {
	e, s := sketch.NewMemory(), sketch.NewMemory()
	b := NewBuilder(DefaultSchema(), e, s, &appendLog{}, Windowed, time.Second)

	vec := b.Build(context.Background())
	if len(vec) != DefaultSchema().Dim() {
		t.Fatalf("dim = %d, want %d", len(vec), DefaultSchema().Dim())
	}
	for i, v := range vec {
		if v != 0 {
			t.Errorf("vec[%d] = %f, want 0", i, v)
		}
	}
}

func TestBuildFailedQueryZeroSubstitutes(t *testing.T) {
	_, s := seeded(t, nil, map[string]int64{"200": 4, "500": 1})
	b := NewBuilder(DefaultSchema(), brokenCounter{}, s, &appendLog{}, Windowed, time.Second)

	vec := b.Build(context.Background())
	if len(vec) != 5 {
		t.Fatalf("dim = %d, want 5", len(vec))
	}
	// Endpoint segment degraded to zeros, status segment intact.
	if vec[0] != 0 || vec[1] != 0 {
		t.Errorf("endpoint segment = %v, want zeros", vec[:2])
	}
	if math.Abs(vec[2]-0.8) > 1e-9 || math.Abs(vec[3]-0.2) > 1e-9 {
		t.Errorf("status segment = %v, want [0.8 0.2 0]", vec[2:])
	}
}

func TestTickWindowedResetsCounters(t *testing.T) {
	ctx := context.Background()
	e, s := seeded(t,
		map[string]int64{"GET:/api/data": 3},
		map[string]int64{"200": 3},
	)
	log := &appendLog{}
	b := NewBuilder(DefaultSchema(), e, s, log, Windowed, time.Second)

	b.Tick(ctx)
	if len(log.vecs) != 1 {
		t.Fatalf("appended %d vectors, want 1", len(log.vecs))
	}
	counts, _ := e.Query(ctx, []string{"GET:/api/data"})
	if counts[0] != 0 {
		t.Errorf("endpoint count after windowed tick = %d, want 0", counts[0])
	}

	// Second tick sees the cleared counters and emits all-zero.
	b.Tick(ctx)
	for i, v := range log.vecs[1] {
		if v != 0 {
			t.Errorf("second tick vec[%d] = %f, want 0", i, v)
		}
	}
}

func TestTickCumulativeKeepsCounters(t *testing.T) {
	ctx := context.Background()
	e, s := seeded(t,
		map[string]int64{"GET:/api/data": 3},
		map[string]int64{"200": 3},
	)
	b := NewBuilder(DefaultSchema(), e, s, &appendLog{}, Cumulative, time.Second)

	b.Tick(ctx)
	counts, _ := e.Query(ctx, []string{"GET:/api/data"})
	if counts[0] != 3 {
		t.Errorf("endpoint count after cumulative tick = %d, want 3", counts[0])
	}
}

func TestTickAppendFailureDoesNotReset(t *testing.T) {
	ctx := context.Background()
	e, s := seeded(t, map[string]int64{"GET:/api/data": 3}, nil)
	log := &appendLog{fail: true}
	b := NewBuilder(DefaultSchema(), e, s, log, Windowed, time.Second)

	b.Tick(ctx) // must not panic, tick is lost
	counts, _ := e.Query(ctx, []string{"GET:/api/data"})
	if counts[0] != 3 {
		t.Errorf("counts reset after failed append, got %d want 3", counts[0])
	}

	log.fail = false
	b.Tick(ctx)
	if len(log.vecs) != 1 {
		t.Fatalf("appended %d vectors after recovery, want 1", len(log.vecs))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	e, s := sketch.NewMemory(), sketch.NewMemory()
	b := NewBuilder(DefaultSchema(), e, s, &appendLog{}, Windowed, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestParseResetPolicy(t *testing.T) {
	if ParseResetPolicy("cumulative") != Cumulative {
		t.Error("cumulative not recognized")
	}
	if ParseResetPolicy("windowed") != Windowed {
		t.Error("windowed not recognized")
	}
	if ParseResetPolicy("bogus") != Windowed {
		t.Error("unknown policy should default to windowed")
	}
}
