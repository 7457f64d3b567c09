package bow

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/epotapov/SentimentAnalysis/internal/pkg/hash"
)

// feature is one hashed input with its value.
type feature struct {
	index uint32
	value float64
}

// tokens lower-cases text and splits it on anything that is not a letter,
// digit or apostrophe. Tokens longer than maxLen runes are cut.
func tokens(text string, maxLen int) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	if maxLen <= 0 {
		return fields
	}
	for i, f := range fields {
		fields[i] = truncateRunes(f, maxLen)
	}
	return fields
}

// truncateRunes keeps the first n runes of s.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// extract returns the distinct hashed unigram (and optionally bigram)
// features of text, each valued 1/sqrt(n), sorted by index.
func extract(text string, buckets uint32, bigrams bool, maxLen int) []feature {
	toks := tokens(text, maxLen)
	seen := make(map[uint32]struct{}, 2*len(toks))

	for i, tok := range toks {
		seen[hash.Bucket("u:"+tok, buckets)] = struct{}{}
		if bigrams && i > 0 {
			seen[hash.Bucket("b:"+toks[i-1]+" "+tok, buckets)] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}

	v := 1 / math.Sqrt(float64(len(seen)))
	out := make([]feature, 0, len(seen))
	for idx := range seen {
		out = append(out, feature{index: idx, value: v})
	}
	// map order is random; sorting keeps floating point sums reproducible
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}
