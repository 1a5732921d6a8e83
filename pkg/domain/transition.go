package domain

import (
	"fmt"
	"strings"
	"time"
)

// allowedTransitions is the full lifecycle table. Retry is the only path back
// into processing, from either terminal state.
var allowedTransitions = map[DocumentStatus][]DocumentStatus{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusProcessed, StatusFailed, StatusPending},
	StatusFailed:     {StatusProcessing},
	StatusProcessed:  {StatusProcessing},
}

// CanTransition reports whether moving from s to next is in the lifecycle table.
func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no automatic transition leaves this status.
func (s DocumentStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// Transition moves the document to next, refreshing UpdatedAt and keeping the
// status-coupled fields consistent:
//
//	Summary is set iff status is processed.
//	ErrorMessage is set iff status is failed.
//
// reason is required when next is failed and ignored otherwise.
func (d *Document) Transition(next DocumentStatus, reason string, now time.Time) error {
	if !d.Status.CanTransition(next) {
		return fmt.Errorf("invalid transition %s -> %s for document %s", d.Status, next, d.ID)
	}
	switch next {
	case StatusFailed:
		if strings.TrimSpace(reason) == "" {
			return fmt.Errorf("transition to failed requires a reason for document %s", d.ID)
		}
		d.ErrorMessage = reason
		d.Summary = ""
		d.SummaryMeta = nil
	case StatusProcessed:
		if strings.TrimSpace(d.Summary) == "" {
			return fmt.Errorf("transition to processed requires a summary for document %s", d.ID)
		}
		d.ErrorMessage = ""
	default:
		d.ErrorMessage = ""
		d.Summary = ""
		d.SummaryMeta = nil
	}
	d.Status = next
	d.UpdatedAt = now.UTC()
	return nil
}
