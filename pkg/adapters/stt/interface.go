package stt

import (
	"context"
	"strings"
)

// Status is the outcome class of one recognition request.
type Status int

const (
	// StatusRecognized means speech was found and transcribed.
	StatusRecognized Status = iota
	// StatusNoMatch means the engine processed the clip but found no speech.
	StatusNoMatch
	// StatusEngineError means the engine could not be reached or failed.
	StatusEngineError
)

func (s Status) String() string {
	switch s {
	case StatusRecognized:
		return "recognized"
	case StatusNoMatch:
		return "no_match"
	case StatusEngineError:
		return "engine_error"
	default:
		return "unknown"
	}
}

// Result carries the recognition outcome as a value rather than an error, so
// callers branch on Status instead of unwrapping failures.
type Result struct {
	Status Status
	Text   string
	Err    error
}

func Recognized(text string) Result { return Result{Status: StatusRecognized, Text: text} }

func NoMatch() Result { return Result{Status: StatusNoMatch} }

func EngineError(err error) Result { return Result{Status: StatusEngineError, Err: err} }

// Normalize folds a blank transcript into NoMatch.
func (r Result) Normalize() Result {
	if r.Status == StatusRecognized && strings.TrimSpace(r.Text) == "" {
		return NoMatch()
	}
	if r.Status == StatusRecognized {
		r.Text = strings.TrimSpace(r.Text)
	}
	return r
}

// Recognizer transcribes one finished clip stored at clipPath.
type Recognizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Recognize transcribes the clip using language as a hint.
	Recognize(ctx context.Context, clipPath, language string) Result
}
