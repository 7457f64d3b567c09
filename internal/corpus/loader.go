package corpus

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
)

// LineBreak is the HTML marker found in scraped reviews. It is replaced with a
// paragraph break during normalization.
const LineBreak = "<br />"

// DefaultSplitRatio is the share of the corpus used for training.
const DefaultSplitRatio = 0.8

// Options configures corpus loading.
type Options struct {
	// Dir is the corpus root containing one subdirectory per label.
	Dir string

	// SplitRatio is the train share; the boundary is int(ratio * count).
	SplitRatio float64

	// Limit truncates the shuffled corpus before splitting. 0 disables it.
	Limit int

	// LabelDirs maps each label to its subdirectory name.
	LabelDirs map[Label]string

	// Extension selects document files.
	Extension string
}

// DefaultOptions returns the options for an aclImdb-style layout.
func DefaultOptions(dir string) Options {
	return Options{
		Dir:        dir,
		SplitRatio: DefaultSplitRatio,
		LabelDirs: map[Label]string{
			Positive: "pos",
			Negative: "neg",
		},
		Extension: ".txt",
	}
}

// NewSource returns the explicit random source used for the corpus shuffle.
// PCG seeded with (seed, seed) drives a Fisher-Yates shuffle, so a given seed
// always yields the same permutation for the same input order.
func NewSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// Load reads dir/{pos,neg}/*.txt, shuffles with rng and splits by splitRatio.
func Load(dir string, splitRatio float64, limit int, rng *rand.Rand) (train, test Dataset, err error) {
	opts := DefaultOptions(dir)
	opts.SplitRatio = splitRatio
	opts.Limit = limit
	return LoadWithOptions(opts, rng)
}

// LoadWithOptions reads every labeled document, shuffles the whole corpus with
// rng, applies the limit and splits it into train and test.
func LoadWithOptions(opts Options, rng *rand.Rand) (train, test Dataset, err error) {
	if opts.SplitRatio <= 0 || opts.SplitRatio > 1 {
		return nil, nil, errors.ConfigurationError("split ratio must be in (0, 1]")
	}
	if opts.Limit < 0 {
		return nil, nil, errors.ConfigurationError("limit must not be negative")
	}
	if rng == nil {
		rng = NewSource(0)
	}

	all, err := ReadAll(opts)
	if err != nil {
		return nil, nil, err
	}

	train, test = Split(all, opts.SplitRatio, opts.Limit, rng)
	return train, test, nil
}

// ReadAll reads both label partitions in Labels order. Files are visited in
// lexical order so the pre-shuffle sequence does not depend on the file system.
func ReadAll(opts Options) (Dataset, error) {
	ext := opts.Extension
	if ext == "" {
		ext = ".txt"
	}

	var all Dataset
	for _, label := range Labels {
		sub, ok := opts.LabelDirs[label]
		if !ok || sub == "" {
			return nil, errors.ConfigurationError("no directory configured for label " + string(label))
		}
		labelDir := filepath.Join(opts.Dir, sub)

		entries, err := os.ReadDir(labelDir)
		if err != nil {
			return nil, errors.Wrap(errors.CodeConfiguration, "reading label directory", err).
				WithDetail("dir", labelDir)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
				continue
			}
			path := filepath.Join(labelDir, entry.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, errors.Wrap(errors.CodeConfiguration, "reading document", err).
					WithDetail("path", path)
			}

			text, ok := Normalize(string(data))
			if !ok {
				continue
			}
			ex, err := NewExample(text, label)
			if err != nil {
				return nil, errors.InternalError("building example", err)
			}
			all = append(all, ex)
		}
	}

	if len(all) == 0 {
		return nil, errors.ConfigurationError("corpus contains no usable documents").
			WithDetail("dir", opts.Dir)
	}
	return all, nil
}

// Normalize converts line-break markers into blank lines. It reports false
// for documents that are empty or whitespace-only afterwards.
func Normalize(text string) (string, bool) {
	text = strings.ReplaceAll(text, LineBreak, "\n\n")
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

// Split shuffles a copy of all with rng, truncates it to limit when limit is
// non-zero and cuts it at int(ratio * count).
func Split(all Dataset, ratio float64, limit int, rng *rand.Rand) (train, test Dataset) {
	shuffled := all.Clone()
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	if limit > 0 && limit < len(shuffled) {
		shuffled = shuffled[:limit]
	}

	boundary := int(float64(len(shuffled)) * ratio)
	return shuffled[:boundary:boundary], shuffled[boundary:]
}
