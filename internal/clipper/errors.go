// Package clipper drives the model-in-the-loop extraction of clips from a
// projected transcript: proposal, validation, critique, and metadata.
package clipper

import "errors"

// ErrGeneratorExhausted is returned when the iteration budget runs out with
// fewer than two valid, non-overlapping clips.
var ErrGeneratorExhausted = errors.New("clip generator exhausted iteration budget")

// ErrMetadataExhausted is returned when the metadata pass cannot produce a
// valid title within its iteration budget.
var ErrMetadataExhausted = errors.New("metadata pass exhausted iteration budget")
