package domain

import (
	"fmt"
	"math"
)

// Outcome is the per-URL result reported in a bulk import.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Progress describes the outcome of one URL within a bulk import.
type Progress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	URL       string  `json:"url"`
	ItemID    string  `json:"itemId,omitempty"`
	Status    Outcome `json:"status"`
}

// Tally accumulates progress events into the running counts shown to the user.
type Tally struct {
	Succeeded int
	Failed    int
	Completed int
	Total     int
}

// Add records one progress event.
func (t *Tally) Add(p Progress) {
	if p.Status == OutcomeSuccess {
		t.Succeeded++
	} else {
		t.Failed++
	}
	t.Completed = p.Completed
	t.Total = p.Total
}

// Percent returns the completed share in whole percent.
func (t Tally) Percent() int {
	if t.Total <= 0 {
		return 0
	}
	return int(math.Round(float64(t.Completed) * 100 / float64(t.Total)))
}

// Message is the final summary line for a finished batch.
func (t Tally) Message() string {
	if t.Failed > 0 {
		return fmt.Sprintf("Imported %d URLs (%d failed)", t.Succeeded, t.Failed)
	}
	return fmt.Sprintf("Successfully imported %d URLs", t.Succeeded)
}
