// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"github.com/anime-shed/bookscan-go/internal/catalog"
	"github.com/anime-shed/bookscan-go/internal/evaluation"
	"github.com/anime-shed/bookscan-go/internal/observer"
	"github.com/anime-shed/bookscan-go/internal/session"
)

// ScanURLRequest is the JSON form of POST /scan. Uploads use multipart
// fields with the same names plus a "file" part.
type ScanURLRequest struct {
	ImageURL  string `json:"image_url" form:"image_url"`
	Step      string `json:"step" form:"step"`
	SessionID string `json:"session_id" form:"session_id"`
}

// FinalizeRequest is the optional body of POST /sessions/:id/finalize
type FinalizeRequest struct {
	Copies int `json:"copies"`
}

// FinalizeResponse reports the admitted book
type FinalizeResponse struct {
	SessionID string        `json:"session_id"`
	Book      *catalog.Book `json:"book"`
}

// SessionResponse describes a stored session
type SessionResponse struct {
	Session  *session.ScanSession `json:"session"`
	NextStep *session.Step        `json:"next_step"`
	Missing  []string             `json:"missing"`
}

// EvaluatePair is one expected/actual comparison
type EvaluatePair struct {
	Field    string `json:"field" yaml:"field"`
	Expected string `json:"expected" yaml:"expected"`
	Actual   string `json:"actual" yaml:"actual"`
}

// EvaluateRequest is the body of POST /evaluate
type EvaluateRequest struct {
	Pairs []EvaluatePair `json:"pairs" binding:"required,min=1,dive"`
}

// EvaluateResponse wraps the comparison report
type EvaluateResponse struct {
	Report evaluation.Report `json:"report"`
}

// StatsResponse combines scan counters with catalog totals
type StatsResponse struct {
	Scans   observer.Snapshot `json:"scans"`
	Catalog catalog.Stats     `json:"catalog"`
}

// ErrorResponse represents an error response. Scan failures also carry the
// session id and any retake hints.
type ErrorResponse struct {
	Error     string   `json:"error"`
	Message   string   `json:"message,omitempty"`
	Type      string   `json:"type,omitempty"`
	Details   string   `json:"details,omitempty"`
	Retryable bool     `json:"retryable"`
	SessionID string   `json:"session_id,omitempty"`
	Hints     []string `json:"hints,omitempty"`
}
