// Package session holds the scan session state machine. Sessions move
// cover -> info -> price -> done, but any step may be submitted at any time.
package session

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/anime-shed/bookscan-go/internal/errors"
	"github.com/anime-shed/bookscan-go/internal/extractor"
)

// Step is a scan step tag
type Step string

const (
	StepCover Step = "cover"
	StepInfo  Step = "info"
	StepPrice Step = "price"
	StepDone  Step = "done"
)

// Steps lists the submittable steps in order
var Steps = []Step{StepCover, StepInfo, StepPrice}

// ParseStep accepts cover, info or price in any case
func ParseStep(s string) (Step, error) {
	step := Step(strings.ToLower(strings.TrimSpace(s)))
	switch step {
	case StepCover, StepInfo, StepPrice:
		return step, nil
	}
	return "", apperrors.NewInvalidStepError(fmt.Sprintf("unknown step %q, expected cover, info or price", s))
}

// Next returns the step that follows s, or nil once the price has been read.
func (s Step) Next() *Step {
	var next Step
	switch s {
	case StepCover:
		next = StepInfo
	case StepInfo:
		next = StepPrice
	default:
		return nil
	}
	return &next
}

// Metadata is the accumulated book record. Unset fields are nil.
type Metadata struct {
	Title  *string  `json:"title,omitempty"`
	Author *string  `json:"author,omitempty"`
	ISBN   *string  `json:"isbn,omitempty"`
	Price  *float64 `json:"price,omitempty"`
}

// ScanSession accumulates metadata across scan steps
type ScanSession struct {
	ID             string    `json:"id"`
	Metadata       Metadata  `json:"metadata"`
	CompletedSteps []Step    `json:"completed_steps"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// New creates an empty session
func New(id string, now time.Time) *ScanSession {
	return &ScanSession{
		ID:             id,
		CompletedSteps: []Step{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Apply merges fields and records step as completed. A field is only ever
// replaced by a newer value of the same field; fields not present are kept.
func (s *ScanSession) Apply(step Step, fields []extractor.Field, now time.Time) {
	for _, f := range fields {
		switch f.Name {
		case extractor.FieldTitle:
			s.Metadata.Title = stringPtr(f.Value)
		case extractor.FieldAuthor:
			s.Metadata.Author = stringPtr(f.Value)
		case extractor.FieldISBN:
			s.Metadata.ISBN = stringPtr(f.Value)
		case extractor.FieldPrice:
			p := f.Number
			s.Metadata.Price = &p
		}
	}
	if !s.HasCompleted(step) {
		s.CompletedSteps = append(s.CompletedSteps, step)
	}
	s.UpdatedAt = now
}

// HasCompleted reports whether step was ever completed
func (s *ScanSession) HasCompleted(step Step) bool {
	for _, c := range s.CompletedSteps {
		if c == step {
			return true
		}
	}
	return false
}

// Missing lists the required metadata fields that are still unset
func (s *ScanSession) Missing(required ...extractor.FieldName) []string {
	var missing []string
	for _, name := range required {
		var set bool
		switch name {
		case extractor.FieldTitle:
			set = s.Metadata.Title != nil && *s.Metadata.Title != ""
		case extractor.FieldAuthor:
			set = s.Metadata.Author != nil && *s.Metadata.Author != ""
		case extractor.FieldISBN:
			set = s.Metadata.ISBN != nil && *s.Metadata.ISBN != ""
		case extractor.FieldPrice:
			set = s.Metadata.Price != nil
		}
		if !set {
			missing = append(missing, string(name))
		}
	}
	return missing
}

// Clone returns a deep copy
func (s *ScanSession) Clone() *ScanSession {
	if s == nil {
		return nil
	}
	cp := *s
	cp.CompletedSteps = append([]Step{}, s.CompletedSteps...)
	if s.Metadata.Title != nil {
		cp.Metadata.Title = stringPtr(*s.Metadata.Title)
	}
	if s.Metadata.Author != nil {
		cp.Metadata.Author = stringPtr(*s.Metadata.Author)
	}
	if s.Metadata.ISBN != nil {
		cp.Metadata.ISBN = stringPtr(*s.Metadata.ISBN)
	}
	if s.Metadata.Price != nil {
		p := *s.Metadata.Price
		cp.Metadata.Price = &p
	}
	return &cp
}

func stringPtr(s string) *string {
	return &s
}
