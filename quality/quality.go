// Package quality ranks recognition candidates without ground truth. The
// score combines the engine's own confidence with two text-shape heuristics:
// the density of structural anomalies that typically indicate misrecognition,
// and how word lengths are distributed.
package quality

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// tieBreakMargin is the score distance under which the top two candidates are
// considered a near-tie and completeness (word count) decides.
const tieBreakMargin = 0.1

// Weights distributes the composite score across its three terms. The fields
// must sum to 1.0.
type Weights struct {
	Confidence float64
	Error      float64
	Length     float64
}

// Config holds the assessor tunables.
type Config struct {
	// MinConfidence is the engine confidence below which a candidate scores
	// zero outright.
	MinConfidence float64
	Weights       Weights
	// Patterns are the structural anomaly patterns, in regexp2 syntax. Each
	// match anywhere in the text counts as one anomaly. The defaults are
	// tuned for Latin-script output; deployments recognizing other scripts
	// should supply their own.
	Patterns []string
}

// DefaultConfig returns the scoring defaults.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 30.0,
		Weights:       Weights{Confidence: 0.6, Error: 0.2, Length: 0.2},
		Patterns:      DefaultPatterns(),
	}
}

// DefaultPatterns returns the four stock anomaly classes: digits followed by
// characters easily confused with "1", runs of characters outside the basic
// alphanumeric/punctuation set, excessive character repetition, and
// single-letter words besides the commonly valid ones.
func DefaultPatterns() []string {
	return []string{
		`\d[lI]`,
		`[^a-zA-Z0-9\s\.,!?-]{3,}`,
		`(.)\1{3,}`,
		`\b(?:[b-z]|[B-HJ-Z])\b`,
	}
}

// Input is the candidate view the assessor scores: the recognized text and
// the engine's mean confidence in [0,100].
type Input struct {
	Text       string
	Confidence float64
}

// Assessor computes composite quality scores. It is stateless and safe for
// concurrent use.
type Assessor struct {
	cfg      Config
	patterns []*regexp2.Regexp
}

// New compiles the configured anomaly patterns into an Assessor. Pattern
// syntax follows regexp2, which permits the backreferences the repetition
// class needs.
func New(cfg Config) (*Assessor, error) {
	patterns := make([]*regexp2.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		re, err := regexp2.Compile(p, 0)
		if err != nil {
			return nil, fmt.Errorf("compile anomaly pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return &Assessor{cfg: cfg, patterns: patterns}, nil
}

// Score derives a quality score in [0,1] from a candidate. Candidates with
// empty text or confidence below the minimum score zero regardless of shape.
func (a *Assessor) Score(in Input) float64 {
	if strings.TrimSpace(in.Text) == "" || in.Confidence < a.cfg.MinConfidence {
		return 0
	}

	textLen := utf8.RuneCountInString(in.Text)
	anomalies := a.countAnomalies(in.Text)
	errorTerm := 1.0 - float64(anomalies)/math.Max(float64(textLen), 1)

	lengthTerm := lengthDistribution(strings.Fields(in.Text))

	w := a.cfg.Weights
	score := in.Confidence/100.0*w.Confidence + errorTerm*w.Error + lengthTerm*w.Length
	return math.Max(0, math.Min(1, score))
}

// Best returns the index of the winning candidate, or -1 for an empty slice.
// Candidates are ranked by score descending; when the top two scores differ
// by less than the tie-break margin, the one with more words wins.
func (a *Assessor) Best(ins []Input) int {
	if len(ins) == 0 {
		return -1
	}
	scores := make([]float64, len(ins))
	words := make([]int, len(ins))
	for i, in := range ins {
		scores[i] = a.Score(in)
		words[i] = len(strings.Fields(in.Text))
	}
	return bestIndex(scores, words)
}

func bestIndex(scores []float64, words []int) int {
	top := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[top] {
			top = i
		}
	}
	second := -1
	for i := range scores {
		if i == top {
			continue
		}
		if second < 0 || scores[i] > scores[second] {
			second = i
		}
	}
	if second >= 0 && scores[top]-scores[second] < tieBreakMargin && words[second] > words[top] {
		return second
	}
	return top
}

func (a *Assessor) countAnomalies(text string) int {
	total := 0
	for _, re := range a.patterns {
		m, err := re.FindStringMatch(text)
		for err == nil && m != nil {
			total++
			m, err = re.FindNextMatch(m)
		}
	}
	return total
}

// lengthDistribution is the fraction of words whose length falls in [3,15]
// characters, attenuated by a penalty for high word-length variance.
func lengthDistribution(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	lengths := make([]float64, len(words))
	inRange := 0
	for i, w := range words {
		n := utf8.RuneCountInString(w)
		lengths[i] = float64(n)
		if n >= 3 && n <= 15 {
			inRange++
		}
	}
	fraction := float64(inRange) / float64(len(words))
	penalty := math.Min(1, sampleVariance(lengths)/100)
	return fraction * (1 - penalty)
}

func sampleVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs)-1)
}
