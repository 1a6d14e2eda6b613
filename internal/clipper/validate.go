package clipper

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hyperclip/kiru/internal/models"
)

// validateProposal checks one proposal against the sentence timings and the
// duration bounds, in order: index membership, ordering, duration. Returns
// the resolved clip, or an error message suitable for model feedback.
func validateProposal(p *models.ClipProposal, timings models.SentenceTimings, minMinutes, maxMinutes float64) (*models.Clip, string) {
	start, okStart := timings[p.StartIndex]
	end, okEnd := timings[p.EndIndex]
	if !okStart || !okEnd {
		return nil, fmt.Sprintf("invalid sentence indices (%d, %d): both must appear in the transcript", p.StartIndex, p.EndIndex)
	}
	if p.StartIndex >= p.EndIndex {
		return nil, fmt.Sprintf("start_index %d must be less than end_index %d", p.StartIndex, p.EndIndex)
	}

	clip := &models.Clip{
		ID:           uuid.NewString(),
		ClipProposal: *p,
		StartMs:      start.StartMs,
		EndMs:        end.EndMs,
	}
	minutes := clip.DurationMinutes()
	if minutes < minMinutes {
		return nil, fmt.Sprintf("too short (%.2f min)", minutes)
	}
	if minutes > maxMinutes {
		return nil, fmt.Sprintf("too long (%.2f min)", minutes)
	}
	return clip, ""
}

// validationOutcome is the per-iteration result of checking a submission.
type validationOutcome struct {
	clips    []*models.Clip
	feedback string
	ok       bool
}

// validateSubmission runs per-clip validation and the pairwise overlap check
// over one submission, building the combined feedback message. The
// submission succeeds when at least two clips validate and none of the
// validated clips overlap.
func validateSubmission(proposals []models.ClipProposal, timings models.SentenceTimings, minMinutes, maxMinutes float64, maxClips int) validationOutcome {
	var lines []string
	if len(proposals) > maxClips {
		lines = append(lines, fmt.Sprintf("submit at most %d clips, got %d", maxClips, len(proposals)))
	}

	var valid []*models.Clip
	for i := range proposals {
		clip, errMsg := validateProposal(&proposals[i], timings, minMinutes, maxMinutes)
		if errMsg != "" {
			lines = append(lines, fmt.Sprintf("Clip %d: %s", i+1, errMsg))
			continue
		}
		lines = append(lines, fmt.Sprintf("Clip %d: OK", i+1))
		valid = append(valid, clip)
	}

	overlap := false
	for i := 0; i < len(valid); i++ {
		for j := i + 1; j < len(valid); j++ {
			if valid[i].Overlaps(valid[j]) {
				lines = append(lines, fmt.Sprintf(
					"Clips (%d-%d) and (%d-%d) overlap in time; move one of them or merge them",
					valid[i].StartIndex, valid[i].EndIndex,
					valid[j].StartIndex, valid[j].EndIndex))
				overlap = true
			}
		}
	}

	// Failing extra clips do not block success: two valid non-overlapping
	// clips are enough to return.
	if len(valid) > maxClips {
		valid = valid[:maxClips]
	}
	ok := len(valid) >= 2 && !overlap
	return validationOutcome{
		clips:    valid,
		feedback: strings.Join(lines, "\n"),
		ok:       ok,
	}
}
