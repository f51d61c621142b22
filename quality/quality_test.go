package quality

import (
	"strings"
	"testing"
)

func newAssessor(t *testing.T) *Assessor {
	t.Helper()
	a, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestScoreZeroBelowMinConfidence(t *testing.T) {
	a := newAssessor(t)
	in := Input{Text: "perfectly reasonable sentence with good words", Confidence: 29.9}
	if got := a.Score(in); got != 0 {
		t.Fatalf("Score below threshold = %v, want 0", got)
	}
}

func TestScoreZeroForEmptyText(t *testing.T) {
	a := newAssessor(t)
	for _, text := range []string{"", "   ", "\n\t"} {
		if got := a.Score(Input{Text: text, Confidence: 95}); got != 0 {
			t.Fatalf("Score(%q) = %v, want 0", text, got)
		}
	}
}

func TestScoreAlwaysInUnitRange(t *testing.T) {
	a := newAssessor(t)
	inputs := []Input{
		{Text: "the quick brown fox jumps over the lazy dog", Confidence: 100},
		{Text: "@@@### $$$%%% ^^^&&& l1lI1l", Confidence: 100},
		{Text: "aaaaaaa bbbbbbb ccccccc", Confidence: 55},
		{Text: "x", Confidence: 31},
		{Text: strings.Repeat("zzzz ", 200), Confidence: 99.9},
	}
	for _, in := range inputs {
		got := a.Score(in)
		if got < 0 || got > 1 {
			t.Fatalf("Score(%q) = %v, out of [0,1]", in.Text, got)
		}
	}
}

func TestAnomaliesLowerScore(t *testing.T) {
	a := newAssessor(t)
	clean := a.Score(Input{Text: "invoice total amount payable immediately", Confidence: 80})
	noisy := a.Score(Input{Text: "inv0lce t0ta1l @@@@ 1Illl aaaaaa q z x", Confidence: 80})
	if noisy >= clean {
		t.Fatalf("noisy score %v should be below clean score %v", noisy, clean)
	}
}

func TestHigherConfidenceWinsCleanText(t *testing.T) {
	a := newAssessor(t)
	ins := []Input{
		{Text: "statement of account for march period", Confidence: 88.0},
		{Text: "statement of account for april period", Confidence: 92.0},
	}
	if got := a.Best(ins); got != 1 {
		t.Fatalf("Best() = %d, want the 92.0 candidate (1)", got)
	}
}

func TestNearTiePrefersMoreWords(t *testing.T) {
	scores := []float64{0.81, 0.75}
	words := []int{10, 14}
	if got := bestIndex(scores, words); got != 1 {
		t.Fatalf("bestIndex() = %d, want the 14-word candidate (1)", got)
	}
}

func TestClearLeadIgnoresWordCount(t *testing.T) {
	scores := []float64{0.9, 0.5}
	words := []int{3, 40}
	if got := bestIndex(scores, words); got != 0 {
		t.Fatalf("bestIndex() = %d, want the clear leader (0)", got)
	}
}

func TestBestEmptyInput(t *testing.T) {
	a := newAssessor(t)
	if got := a.Best(nil); got != -1 {
		t.Fatalf("Best(nil) = %d, want -1", got)
	}
}

func TestNewRejectsBadPattern(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Patterns = []string{"("}
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for unbalanced pattern")
	}
}

func TestSampleVariance(t *testing.T) {
	if got := sampleVariance([]float64{5}); got != 0 {
		t.Fatalf("variance of one sample = %v, want 0", got)
	}
	if got := sampleVariance([]float64{4, 4, 4}); got != 0 {
		t.Fatalf("variance of constant = %v, want 0", got)
	}
	if got := sampleVariance([]float64{2, 4}); got != 2 {
		t.Fatalf("variance of {2,4} = %v, want 2", got)
	}
}
