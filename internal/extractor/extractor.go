// Package extractor holds the per-step heuristics that turn recognized text
// blocks into bibliographic fields.
package extractor

import (
	"image"
	"regexp"

	"github.com/anime-shed/bookscan-go/internal/ocr"
)

// FieldName identifies a metadata field
type FieldName string

const (
	FieldTitle  FieldName = "title"
	FieldAuthor FieldName = "author"
	FieldISBN   FieldName = "isbn"
	FieldPrice  FieldName = "price"
)

// Status records which validation a field went through
type Status string

const (
	// StatusValid means the value passed a checksum or range check
	StatusValid Status = "valid"
	// StatusUnchecked means the value came from a heuristic with no validator
	StatusUnchecked Status = "unchecked"
)

// Field is a single extracted value. Number is set for numeric fields.
type Field struct {
	Name   FieldName `json:"name"`
	Value  string    `json:"value"`
	Number float64   `json:"number,omitempty"`
	Status Status    `json:"status"`
	Rule   string    `json:"rule,omitempty"`
}

// Input is everything an extractor may look at for one image
type Input struct {
	Image  image.Image
	Blocks []ocr.TextBlock
}

// Extractor produces fields for one scan step
type Extractor interface {
	Extract(in Input) ([]Field, error)
}

// rule is one entry in a priority-ordered pattern list. group selects the
// capture holding the value, 0 for the whole match.
type rule struct {
	name  string
	re    *regexp.Regexp
	group int
}

// firstMatch returns the selected capture of the first match of r in text.
func (r rule) firstMatch(text string) (string, bool) {
	m := r.re.FindStringSubmatch(text)
	if m == nil || r.group >= len(m) {
		return "", false
	}
	return m[r.group], true
}
