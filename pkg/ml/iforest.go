// Package ml implements the isolation-forest baseline model. Points
// that isolate with fewer random partitioning splits score as more
// anomalous.
package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
)

// Defaults mirror the common isolation-forest parameterization.
const (
	DefaultTrees         = 100
	DefaultSampleSize    = 256
	DefaultContamination = 0.1
	DefaultSeed          = 42
)

// IsolationForest is fitted once on a training matrix and never
// mutated afterwards; scoring is read-only.
type IsolationForest struct {
	mu sync.RWMutex

	Trees      []*iTree `json:"trees"`
	NumTrees   int      `json:"num_trees"`
	SampleSize int      `json:"sample_size"`
	HeightLim  int      `json:"height_limit"`
	Dim        int      `json:"dim"`
	Threshold  float64  `json:"threshold"`

	contamination float64
	fixedThresh   bool
	rng           *rand.Rand
}

type iTree struct {
	Root *iNode `json:"root"`
}

type iNode struct {
	Leaf     bool    `json:"leaf"`
	Size     int     `json:"size"`
	Dim      int     `json:"dim"`
	SplitVal float64 `json:"split_val"`
	Left     *iNode  `json:"left,omitempty"`
	Right    *iNode  `json:"right,omitempty"`
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the ensemble size.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		if n > 0 {
			f.NumTrees = n
		}
	}
}

// WithSampleSize sets the per-tree subsample size.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		if n > 0 {
			f.SampleSize = n
		}
	}
}

// WithSeed pins the RNG so fitting is reproducible.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) { f.rng = rand.New(rand.NewSource(seed)) }
}

// WithContamination sets the expected anomaly fraction used to
// calibrate the score threshold from the training data.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		if c > 0 && c < 1 {
			f.contamination = c
		}
	}
}

// WithThreshold fixes the decision threshold directly, bypassing
// contamination calibration.
func WithThreshold(t float64) Option {
	return func(f *IsolationForest) {
		f.Threshold = t
		f.fixedThresh = true
	}
}

// New constructs an unfitted forest.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		NumTrees:      DefaultTrees,
		SampleSize:    DefaultSampleSize,
		contamination: DefaultContamination,
		rng:           rand.New(rand.NewSource(DefaultSeed)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fit builds the ensemble from X and calibrates the threshold.
func (f *IsolationForest) Fit(X [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(X) == 0 {
		return errors.New("iforest: empty training set")
	}
	f.Dim = len(X[0])
	for i, row := range X {
		if len(row) != f.Dim {
			return fmt.Errorf("iforest: row %d has dim %d, want %d", i, len(row), f.Dim)
		}
	}
	n := len(X)
	m := f.SampleSize
	if m > n {
		m = n
	}
	// Record the subsample actually drawn so score normalization
	// matches the built trees.
	f.SampleSize = m
	f.HeightLim = int(math.Ceil(math.Log2(float64(m))))
	if f.HeightLim < 1 {
		f.HeightLim = 1
	}
	f.Trees = make([]*iTree, f.NumTrees)
	for i := 0; i < f.NumTrees; i++ {
		idxs := f.rng.Perm(n)
		sample := make([][]float64, m)
		for j := 0; j < m; j++ {
			sample[j] = X[idxs[j]]
		}
		f.Trees[i] = &iTree{Root: f.buildTree(sample, 0)}
	}
	if !f.fixedThresh {
		f.Threshold = f.calibrate(X)
	}
	return nil
}

func (f *IsolationForest) buildTree(X [][]float64, h int) *iNode {
	if len(X) <= 1 || h >= f.HeightLim {
		return &iNode{Leaf: true, Size: len(X)}
	}
	d := len(X[0])
	dim := f.rng.Intn(d)
	minv, maxv := X[0][dim], X[0][dim]
	for i := 1; i < len(X); i++ {
		v := X[i][dim]
		if v < minv {
			minv = v
		}
		if v > maxv {
			maxv = v
		}
	}
	if minv == maxv {
		return &iNode{Leaf: true, Size: len(X)}
	}
	split := minv + f.rng.Float64()*(maxv-minv)
	left := make([][]float64, 0, len(X))
	right := make([][]float64, 0, len(X))
	for _, row := range X {
		if row[dim] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &iNode{Leaf: true, Size: len(X)}
	}
	return &iNode{
		Dim:      dim,
		SplitVal: split,
		Left:     f.buildTree(left, h+1),
		Right:    f.buildTree(right, h+1),
	}
}

// calibrate picks the (1-contamination) quantile of training scores,
// approximating sklearn's contamination-driven decision boundary.
// Called with the write lock held.
func (f *IsolationForest) calibrate(X [][]float64) float64 {
	scores := make([]float64, len(X))
	for i, row := range X {
		scores[i] = f.score(row)
	}
	sort.Float64s(scores)
	idx := int(math.Ceil(float64(len(scores))*(1-f.contamination))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(scores) {
		idx = len(scores) - 1
	}
	return scores[idx]
}

// cFactor is c(n), the average unsuccessful-search path length in a
// binary search tree, used to normalize path lengths.
func cFactor(n int) float64 {
	if n <= 1 {
		return 0
	}
	return 2.0*(math.Log(float64(n-1))+0.5772156649) - 2.0*float64(n-1)/float64(n)
}

func pathLength(node *iNode, x []float64, h int) float64 {
	if node.Leaf {
		if node.Size <= 1 {
			return float64(h)
		}
		return float64(h) + cFactor(node.Size)
	}
	if x[node.Dim] < node.SplitVal {
		return pathLength(node.Left, x, h+1)
	}
	return pathLength(node.Right, x, h+1)
}

// Score returns an anomaly score in [0,1]; higher is more anomalous.
func (f *IsolationForest) Score(x []float64) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.score(x)
}

func (f *IsolationForest) score(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range f.Trees {
		sum += pathLength(t.Root, x, 0)
	}
	avg := sum / float64(len(f.Trees))
	c := cFactor(f.sampleUsed())
	if c <= 0 {
		c = 1
	}
	return math.Pow(2, -avg/c)
}

func (f *IsolationForest) sampleUsed() int {
	// Leaf sizes were capped by the sample actually drawn.
	if f.SampleSize > 0 {
		return f.SampleSize
	}
	return DefaultSampleSize
}

// Predict reports whether x scores past the fitted threshold.
func (f *IsolationForest) Predict(x []float64) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.score(x) > f.Threshold
}

// Fitted reports whether Fit completed.
func (f *IsolationForest) Fitted() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.Trees) > 0
}

// SaveJSON serializes the fitted ensemble.
func (f *IsolationForest) SaveJSON() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return json.Marshal(f)
}

// LoadJSON restores an ensemble serialized with SaveJSON.
func (f *IsolationForest) LoadJSON(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return json.Unmarshal(b, f)
}
