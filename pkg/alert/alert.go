// Package alert carries anomaly announcements from the detector to
// whoever is listening. Delivery is fire-and-forget: no queueing, no
// confirmation, and nothing is kept for absent subscribers.
package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/fingerprint"
)

// Alert describes one fingerprint judged anomalous. Immutable after
// construction; ownership ends at publish time.
type Alert struct {
	ID          string
	StreamID    string
	Score       float64
	Fingerprint []float64
	At          time.Time
}

// New builds an Alert for the given stream entry.
func New(streamID string, score float64, vec []float64) Alert {
	return Alert{
		ID:          uuid.NewString(),
		StreamID:    streamID,
		Score:       score,
		Fingerprint: vec,
		At:          time.Now().UTC(),
	}
}

// String renders the single-line message published on the channel.
func (a Alert) String() string {
	return fmt.Sprintf("Anomaly detected: outlier fingerprint observed. id=%s stream_id=%s score=%.4f fingerprint=%s",
		a.ID, a.StreamID, a.Score, fingerprint.Format(a.Fingerprint))
}

// ParseMessage recovers an Alert from its published line. Subscribers
// that persist history use it; anything unparseable is rejected.
func ParseMessage(msg string) (Alert, error) {
	var a Alert
	fields := strings.Fields(msg)
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		switch k {
		case "id":
			a.ID = v
		case "stream_id":
			a.StreamID = v
		case "score":
			if _, err := fmt.Sscanf(v, "%f", &a.Score); err != nil {
				return Alert{}, fmt.Errorf("alert: bad score %q", v)
			}
		case "fingerprint":
			vec, err := fingerprint.Parse(v)
			if err != nil {
				return Alert{}, fmt.Errorf("alert: bad fingerprint: %w", err)
			}
			a.Fingerprint = vec
		}
	}
	if a.ID == "" {
		return Alert{}, fmt.Errorf("alert: no id in message %q", msg)
	}
	a.At = time.Now().UTC()
	return a, nil
}

// Publisher announces alerts. Implementations must not block on slow
// or missing consumers; a lost alert is acceptable.
type Publisher interface {
	Publish(ctx context.Context, a Alert) error
}
