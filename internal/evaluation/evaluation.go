// Package evaluation scores extracted metadata against known-good values.
package evaluation

import (
	"strings"
	"unicode"

	"github.com/arbovm/levenshtein"
	"github.com/codycollier/wer"
)

// FieldScore compares one extracted value with its expected value
type FieldScore struct {
	Field      string  `json:"field" yaml:"field"`
	Expected   string  `json:"expected" yaml:"expected"`
	Actual     string  `json:"actual" yaml:"actual"`
	ExactMatch bool    `json:"exact_match" yaml:"exact_match"`
	Distance   int     `json:"distance" yaml:"distance"`
	CER        float64 `json:"cer" yaml:"cer"`
	WER        float64 `json:"wer" yaml:"wer"`
}

// Report aggregates field scores
type Report struct {
	Fields     []FieldScore `json:"fields" yaml:"fields"`
	ExactCount int          `json:"exact_count" yaml:"exact_count"`
	MeanCER    float64      `json:"mean_cer" yaml:"mean_cer"`
	MeanWER    float64      `json:"mean_wer" yaml:"mean_wer"`
}

// Normalize lowercases, folds full-width spaces and collapses whitespace.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// Compare scores actual against expected after normalization. CER is the
// rune-level edit distance over the expected length; an empty expectation
// scores 0 only when actual is also empty.
func Compare(field, expected, actual string) FieldScore {
	exp, act := Normalize(expected), Normalize(actual)
	score := FieldScore{
		Field:      field,
		Expected:   expected,
		Actual:     actual,
		ExactMatch: exp == act,
		Distance:   levenshtein.Distance(exp, act),
	}

	refLen := len([]rune(exp))
	switch {
	case refLen > 0:
		score.CER = float64(score.Distance) / float64(refLen)
	case act != "":
		score.CER = 1
	}

	score.WER = wordErrorRate(exp, act)
	return score
}

// wordErrorRate splits on spaces; text without spaces (most Chinese
// titles) falls back to one word per rune.
func wordErrorRate(exp, act string) float64 {
	ref, cand := words(exp), words(act)
	if len(ref) == 0 {
		if len(cand) == 0 {
			return 0
		}
		return 1
	}
	rate, _ := wer.WER(ref, cand)
	return rate
}

func words(s string) []string {
	if s == "" {
		return nil
	}
	if strings.Contains(s, " ") || !hasHan(s) {
		return strings.Fields(s)
	}
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func hasHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// Summarize builds a report from field scores
func Summarize(scores []FieldScore) Report {
	r := Report{Fields: scores}
	if len(scores) == 0 {
		return r
	}
	for _, s := range scores {
		if s.ExactMatch {
			r.ExactCount++
		}
		r.MeanCER += s.CER
		r.MeanWER += s.WER
	}
	r.MeanCER /= float64(len(scores))
	r.MeanWER /= float64(len(scores))
	return r
}
