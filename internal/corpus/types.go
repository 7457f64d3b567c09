// Package corpus loads labeled review documents and partitions them into
// reproducible train and test datasets.
package corpus

import (
	"fmt"
	"strconv"

	"github.com/epotapov/SentimentAnalysis/internal/pkg/hash"
)

// Label is one of the two mutually exclusive sentiment categories.
type Label string

const (
	Positive Label = "positive"
	Negative Label = "negative"
)

// Labels lists the categories in comparison order. Positive comes first and
// therefore wins ties.
var Labels = []Label{Positive, Negative}

// Valid reports whether l is one of the two categories.
func (l Label) Valid() bool {
	return l == Positive || l == Negative
}

// Opposite returns the other category.
func (l Label) Opposite() Label {
	if l == Positive {
		return Negative
	}
	return Positive
}

// Display returns the capitalized form written to survey tables.
func (l Label) Display() string {
	switch l {
	case Positive:
		return "Positive"
	case Negative:
		return "Negative"
	default:
		return string(l)
	}
}

// Document is a single unit of free text with its ground-truth label.
type Document struct {
	Text  string `json:"text"`
	Label Label  `json:"label"`
}

// Cats is the one-hot category map handed to the classifier.
type Cats map[Label]bool

// Example is a Document paired with its one-hot category map.
type Example struct {
	Document
	Cats Cats `json:"cats"`
}

// NewExample builds an Example whose flags are exact negations of each other.
func NewExample(text string, label Label) (Example, error) {
	if !label.Valid() {
		return Example{}, fmt.Errorf("invalid label %q", label)
	}
	return Example{
		Document: Document{Text: text, Label: label},
		Cats: Cats{
			Positive: label == Positive,
			Negative: label == Negative,
		},
	}, nil
}

// Dataset is an ordered sequence of examples.
type Dataset []Example

// Clone returns a copy whose order can change without touching d.
func (d Dataset) Clone() Dataset {
	out := make(Dataset, len(d))
	copy(out, d)
	return out
}

// Counts returns the number of positive and negative examples.
func (d Dataset) Counts() (pos, neg int) {
	for _, ex := range d {
		if ex.Label == Positive {
			pos++
		} else {
			neg++
		}
	}
	return pos, neg
}

// Fingerprint hashes the ordered content of the dataset. Two loads of the
// same corpus with the same seed produce the same fingerprint.
func (d Dataset) Fingerprint() string {
	parts := make([]string, 0, 2*len(d)+1)
	parts = append(parts, strconv.Itoa(len(d)))
	for _, ex := range d {
		parts = append(parts, string(ex.Label), ex.Text)
	}
	return hash.Fingerprint(parts...)
}
