package fingerprint

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/sketch"
	"github.com/ntanwir10/AI-Anamoly-Detector/shared/logging"
)

// ResetPolicy decides what happens to the counters after each emit.
type ResetPolicy int

const (
	// Windowed clears the counters after every emit so each
	// fingerprint covers only the interval just elapsed.
	Windowed ResetPolicy = iota
	// Cumulative never resets; fingerprints represent the slowly
	// drifting lifetime distribution.
	Cumulative
)

// ParseResetPolicy maps a config string onto a ResetPolicy,
// defaulting to Windowed.
func ParseResetPolicy(s string) ResetPolicy {
	if s == "cumulative" {
		return Cumulative
	}
	return Windowed
}

func (p ResetPolicy) String() string {
	if p == Cumulative {
		return "cumulative"
	}
	return "windowed"
}

// Appender is the slice of the fingerprint stream the builder needs.
type Appender interface {
	Append(ctx context.Context, vec []float64) (string, error)
}

var (
	mTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fingerprint", Subsystem: "builder", Name: "ticks_total",
		Help: "Builder ticks executed.",
	})
	mQueryErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fingerprint", Subsystem: "builder", Name: "query_errors_total",
		Help: "Counter queries that failed and were zero-substituted.",
	})
	mAppendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fingerprint", Subsystem: "builder", Name: "append_errors_total",
		Help: "Stream appends that failed; the tick's fingerprint is dropped.",
	})
)

func init() {
	_ = prometheus.Register(mTicks)
	_ = prometheus.Register(mQueryErrors)
	_ = prometheus.Register(mAppendErrors)
}

// Builder emits one fingerprint per interval from the two counters.
type Builder struct {
	schema    Schema
	endpoints sketch.Counter
	statuses  sketch.Counter
	stream    Appender
	policy    ResetPolicy
	interval  time.Duration
}

// NewBuilder wires a Builder. interval must be positive.
func NewBuilder(schema Schema, endpoints, statuses sketch.Counter, stream Appender, policy ResetPolicy, interval time.Duration) *Builder {
	return &Builder{
		schema:    schema,
		endpoints: endpoints,
		statuses:  statuses,
		stream:    stream,
		policy:    policy,
		interval:  interval,
	}
}

// Build queries both label sets and returns the concatenated
// normalized fingerprint. A failed query degrades that segment to
// zeros rather than aborting the tick.
func (b *Builder) Build(ctx context.Context) []float64 {
	ec := b.query(ctx, b.endpoints, b.schema.Endpoints)
	sc := b.query(ctx, b.statuses, b.schema.Statuses)
	vec := make([]float64, 0, b.schema.Dim())
	vec = append(vec, Normalize(ec)...)
	vec = append(vec, Normalize(sc)...)
	return vec
}

func (b *Builder) query(ctx context.Context, c sketch.Counter, labels []string) []int64 {
	counts, err := c.Query(ctx, labels)
	if err != nil {
		mQueryErrors.Inc()
		logging.Warnf("builder: counter query failed, substituting zeros: %v", err)
		return make([]int64, len(labels))
	}
	return counts
}

// Tick performs one build-emit-reset cycle. Emission is at most once:
// an append failure drops this tick's fingerprint and the next tick
// proceeds independently.
func (b *Builder) Tick(ctx context.Context) {
	mTicks.Inc()
	vec := b.Build(ctx)
	id, err := b.stream.Append(ctx, vec)
	if err != nil {
		mAppendErrors.Inc()
		logging.Errorf("builder: stream append failed: %v", err)
		return
	}
	logging.Infof("builder: emitted fingerprint id=%s dim=%d", id, len(vec))
	if b.policy == Windowed {
		// Increments landing between Query and Reset are lost. That
		// loss is bounded by the tick interval and accepted as
		// measurement noise; do not add locking here.
		b.reset(ctx)
	}
}

func (b *Builder) reset(ctx context.Context) {
	if err := b.endpoints.Reset(ctx); err != nil {
		logging.Warnf("builder: endpoint counter reset failed: %v", err)
	}
	if err := b.statuses.Reset(ctx); err != nil {
		logging.Warnf("builder: status counter reset failed: %v", err)
	}
}

// Run ticks until ctx is cancelled, finishing the current tick first.
func (b *Builder) Run(ctx context.Context) {
	logging.Infof("builder: starting, interval=%s policy=%s dim=%d", b.interval, b.policy, b.schema.Dim())
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Infof("builder: shutting down")
			return
		case <-ticker.C:
			b.Tick(ctx)
		}
	}
}
