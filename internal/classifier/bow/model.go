// Package bow implements a hashed bag-of-words logistic classifier trained
// with minibatch SGD, inverted feature dropout and parameter averaging.
package bow

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"

	"github.com/epotapov/SentimentAnalysis/internal/classifier"
	"github.com/epotapov/SentimentAnalysis/internal/corpus"
)

// Name identifies this strategy in artifact metadata.
const Name = "bow-logistic"

const formatVersion = "bow-logistic/v1"

// Options are the model hyperparameters.
type Options struct {
	Buckets      int
	LearnRate    float64
	L2           float64
	Bigrams      bool
	Seed         uint64
	MaxTokenSize int
}

// DefaultOptions returns reasonable settings for movie-review sized corpora.
func DefaultOptions() Options {
	return Options{
		Buckets:      1 << 18,
		LearnRate:    0.05,
		Bigrams:      true,
		Seed:         1,
		MaxTokenSize: 64,
	}
}

// Model is a binary logistic classifier over hashed features. Positive is
// the modeled class; the negative probability is its complement.
//
// Averaging follows the usual lazy scheme: after T updates with deltas d_t,
// the mean of the parameter trajectory is w_T - (sum of (t-1)*d_t) / T, so
// only the touched weights change per update.
type Model struct {
	opts     Options
	weights  []float64
	acc      []float64
	bias     float64
	biasAcc  float64
	steps    int64
	rng      *rand.Rand
	features func(text string) []feature
}

var _ classifier.Classifier = (*Model)(nil)

// New creates an untrained model.
func New(opts Options) (*Model, error) {
	if opts.Buckets < 2 {
		return nil, fmt.Errorf("buckets must be at least 2, got %d", opts.Buckets)
	}
	if opts.LearnRate <= 0 {
		return nil, fmt.Errorf("learn rate must be positive, got %g", opts.LearnRate)
	}
	if opts.L2 < 0 {
		return nil, fmt.Errorf("l2 must not be negative, got %g", opts.L2)
	}

	m := &Model{
		opts:    opts,
		weights: make([]float64, opts.Buckets),
		acc:     make([]float64, opts.Buckets),
		rng:     rand.New(rand.NewPCG(opts.Seed, opts.Seed)),
	}
	buckets := uint32(opts.Buckets)
	m.features = func(text string) []feature {
		return extract(text, buckets, opts.Bigrams, opts.MaxTokenSize)
	}
	return m, nil
}

// Labels returns positive then negative.
func (m *Model) Labels() []corpus.Label {
	return []corpus.Label{corpus.Positive, corpus.Negative}
}

// Steps returns the number of updates applied so far.
func (m *Model) Steps() int64 {
	return m.steps
}

// Update runs one SGD step over batch and returns the summed log loss.
func (m *Model) Update(batch []corpus.Example, dropout float64) (float64, error) {
	if dropout < 0 || dropout >= 1 {
		return 0, fmt.Errorf("dropout must be in [0, 1), got %g", dropout)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	keep := 1 - dropout
	grad := make(map[uint32]float64)
	var gradBias, loss float64

	for i, ex := range batch {
		y, err := target(ex)
		if err != nil {
			return 0, fmt.Errorf("example %d: %w", i, err)
		}

		z := m.bias
		feats := m.features(ex.Text)
		active := make([]feature, 0, len(feats))
		for _, f := range feats {
			if dropout > 0 && m.rng.Float64() < dropout {
				continue
			}
			f.value /= keep
			active = append(active, f)
			z += m.weights[f.index] * f.value
		}

		p := sigmoid(z)
		loss += logLoss(p, y)

		g := p - y
		gradBias += g
		for _, f := range active {
			grad[f.index] += g * f.value
		}
	}

	m.steps++
	t := float64(m.steps - 1)
	scale := m.opts.LearnRate / float64(len(batch))

	for idx, g := range grad {
		delta := -scale * g
		if m.opts.L2 > 0 {
			delta -= m.opts.LearnRate * m.opts.L2 * m.weights[idx]
		}
		m.weights[idx] += delta
		m.acc[idx] += t * delta
	}
	delta := -scale * gradBias
	m.bias += delta
	m.biasAcc += t * delta

	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return loss, fmt.Errorf("loss diverged at step %d", m.steps)
	}
	return loss, nil
}

// Score returns the distribution under the live parameters.
func (m *Model) Score(text string) (classifier.Scores, error) {
	return m.score(text, classifier.ParamsLive), nil
}

// Averaged returns a scorer over the averaged parameters.
func (m *Model) Averaged() classifier.Scorer {
	return classifier.ScorerFunc(func(text string) (classifier.Scores, error) {
		return m.score(text, classifier.ParamsAveraged), nil
	})
}

func (m *Model) score(text string, params classifier.Params) classifier.Scores {
	z := m.biasFor(params)
	for _, f := range m.features(text) {
		z += m.weightFor(f.index, params) * f.value
	}
	p := sigmoid(z)
	return classifier.Scores{
		corpus.Positive: p,
		corpus.Negative: 1 - p,
	}
}

func (m *Model) weightFor(idx uint32, params classifier.Params) float64 {
	if params == classifier.ParamsAveraged && m.steps > 0 {
		return m.weights[idx] - m.acc[idx]/float64(m.steps)
	}
	return m.weights[idx]
}

func (m *Model) biasFor(params classifier.Params) float64 {
	if params == classifier.ParamsAveraged && m.steps > 0 {
		return m.bias - m.biasAcc/float64(m.steps)
	}
	return m.bias
}

// snapshot is the persisted form. Only non-zero weights are stored.
type snapshot struct {
	Format       string         `json:"format"`
	Labels       []corpus.Label `json:"labels"`
	Buckets      int            `json:"buckets"`
	Bigrams      bool           `json:"bigrams"`
	MaxTokenSize int            `json:"max_token_size"`
	LearnRate    float64        `json:"learn_rate"`
	L2           float64        `json:"l2"`
	Seed         uint64         `json:"seed"`
	Bias         float64        `json:"bias"`
	Indices      []uint32       `json:"indices"`
	Weights      []float64      `json:"weights"`
}

// Save writes the selected parameters as gzip-compressed JSON.
func (m *Model) Save(w io.Writer, params classifier.Params) error {
	snap := snapshot{
		Format:       formatVersion,
		Labels:       m.Labels(),
		Buckets:      m.opts.Buckets,
		Bigrams:      m.opts.Bigrams,
		MaxTokenSize: m.opts.MaxTokenSize,
		LearnRate:    m.opts.LearnRate,
		L2:           m.opts.L2,
		Seed:         m.opts.Seed,
		Bias:         m.biasFor(params),
	}
	for i := range m.weights {
		if v := m.weightFor(uint32(i), params); v != 0 {
			snap.Indices = append(snap.Indices, uint32(i))
			snap.Weights = append(snap.Weights, v)
		}
	}

	zw := gzip.NewWriter(w)
	if err := json.NewEncoder(zw).Encode(snap); err != nil {
		zw.Close()
		return fmt.Errorf("encoding model: %w", err)
	}
	return zw.Close()
}

// Load restores a model written by Save. The saved parameters become the
// live parameters of the returned model.
func Load(r io.Reader) (*Model, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening model stream: %w", err)
	}
	defer zr.Close()

	var snap snapshot
	if err := json.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding model: %w", err)
	}
	if snap.Format != formatVersion {
		return nil, fmt.Errorf("unsupported model format %q", snap.Format)
	}
	if len(snap.Indices) != len(snap.Weights) {
		return nil, fmt.Errorf("corrupt model: %d indices for %d weights", len(snap.Indices), len(snap.Weights))
	}

	m, err := New(Options{
		Buckets:      snap.Buckets,
		LearnRate:    snap.LearnRate,
		L2:           snap.L2,
		Bigrams:      snap.Bigrams,
		Seed:         snap.Seed,
		MaxTokenSize: snap.MaxTokenSize,
	})
	if err != nil {
		return nil, fmt.Errorf("corrupt model: %w", err)
	}

	m.bias = snap.Bias
	for i, idx := range snap.Indices {
		if int(idx) >= len(m.weights) {
			return nil, fmt.Errorf("corrupt model: index %d out of range", idx)
		}
		m.weights[idx] = snap.Weights[i]
	}
	return m, nil
}

// target returns 1 for positive examples and 0 for negative ones.
func target(ex corpus.Example) (float64, error) {
	if ex.Cats != nil {
		pos, neg := ex.Cats[corpus.Positive], ex.Cats[corpus.Negative]
		if pos == neg {
			return 0, fmt.Errorf("category flags must be one-hot, got positive=%t negative=%t", pos, neg)
		}
		if pos {
			return 1, nil
		}
		return 0, nil
	}
	switch ex.Label {
	case corpus.Positive:
		return 1, nil
	case corpus.Negative:
		return 0, nil
	default:
		return 0, fmt.Errorf("invalid label %q", ex.Label)
	}
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func logLoss(p, y float64) float64 {
	const eps = 1e-12
	p = min(max(p, eps), 1-eps)
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}
