// Package fingerprint turns approximate traffic counts into the
// normalized feature vectors the detector consumes.
package fingerprint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Default label sets. Order is significant: it fixes the meaning of
// every vector position for both the builder and the detector.
var (
	DefaultEndpoints = []string{"GET:/api/data", "GET:/api/error"}
	DefaultStatuses  = []string{"200", "500", "599"}
)

// Schema is the pair of ordered label sets a deployment fingerprints
// over. It is fixed for the lifetime of a deployment; the model's
// dimensionality depends on it.
type Schema struct {
	Endpoints []string
	Statuses  []string
}

// DefaultSchema returns the reference label sets.
func DefaultSchema() Schema {
	return Schema{Endpoints: DefaultEndpoints, Statuses: DefaultStatuses}
}

// Dim returns the fingerprint dimensionality for this schema.
func (s Schema) Dim() int { return len(s.Endpoints) + len(s.Statuses) }

// Normalize converts a count vector into a probability distribution.
// A zero-total vector maps to the all-zero vector of the same length,
// never to NaN.
func Normalize(counts []int64) []float64 {
	out := make([]float64, len(counts))
	var total int64
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = float64(c) / float64(total)
	}
	return out
}

// Format serializes a vector as the stream wire form: bracketed,
// comma-separated, six decimal places.
func Format(vec []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// ErrMalformed is returned by Parse for payloads that are not a
// bracketed, comma-separated decimal sequence.
var ErrMalformed = errors.New("fingerprint: malformed payload")

// Parse decodes the wire form produced by Format.
func Parse(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, ErrMalformed
	}
	body := s[1 : len(s)-1]
	if strings.TrimSpace(body) == "" {
		return nil, ErrMalformed
	}
	parts := strings.Split(body, ",")
	vec := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, p)
		}
		vec = append(vec, v)
	}
	return vec, nil
}
