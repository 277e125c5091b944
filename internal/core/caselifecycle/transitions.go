package caselifecycle

import "github.com/gridcompute/gridcompute/internal/core/models"

// transitions is the complete edge set of the case state machine.
// The only backward edge is the reclamation reset.
var transitions = map[models.CaseStatus][]models.CaseStatus{
	models.StatusToProcess:  {models.StatusProcessing},
	models.StatusProcessing: {models.StatusProcessed, models.StatusToProcess},
	models.StatusProcessed:  {models.StatusReceived},
	models.StatusReceived:   {},
}

// ValidTransition reports whether from -> to is an edge of the state machine.
func ValidTransition(from, to models.CaseStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TerminalStatus reports whether a case in this status can never move again.
func TerminalStatus(s models.CaseStatus) bool {
	return len(transitions[s]) == 0
}
