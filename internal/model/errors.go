package model

import "github.com/rotisserie/eris"

// Failure taxonomy. Only ErrInvalidDescriptor escapes the pipeline; the rest
// are recorded per candidate and degrade toward fewer items.
var (
	ErrInvalidDescriptor = eris.New("invalid business descriptor")
	ErrSourceUnavailable = eris.New("source unavailable")
	ErrUnsupportedFormat = eris.New("unsupported format")
	ErrExtractionFailure = eris.New("extraction failure")
	ErrEmptyResult       = eris.New("empty result")
)
