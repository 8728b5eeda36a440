package qualification

import (
	"math"
	"time"
)

// Stage is a coarse label for where a conversation stands.
type Stage string

const (
	StageInitial       Stage = "initial"
	StageGatheringInfo Stage = "gathering_info"
	StageReadyForLead  Stage = "ready_for_lead"
	StageSupport       Stage = "support"
	StageCompleted     Stage = "completed"
)

// Summary is the reporting view of a conversation.
type Summary struct {
	Sender          string             `json:"sender"`
	Stage           Stage              `json:"stage"`
	MessageCount    int                `json:"message_count"`
	LastInteraction time.Time          `json:"last_interaction"`
	Completeness    float64            `json:"completeness"`
	Dimensions      map[Dimension]bool `json:"dimensions"`
	Completed       bool               `json:"completed"`
}

var (
	requiredFields = []FieldName{FieldContactName, FieldProduct, FieldNeed}
	optionalFields = []FieldName{FieldEmail, FieldLocation, FieldBudget, FieldUrgency}
)

// Summarize derives a Summary from r and its current assessment.
func Summarize(r *ConversationRecord, a Assessment) Summary {
	dims := make(map[Dimension]bool, len(a.Dimensions))
	for d, s := range a.Dimensions {
		dims[d] = s.Satisfied
	}
	return Summary{
		Sender:          r.Sender,
		Stage:           stageOf(r, a),
		MessageCount:    r.TurnCount,
		LastInteraction: r.LastActivity,
		Completeness:    Completeness(r.Fields),
		Dimensions:      dims,
		Completed:       r.Status == StatusFinalized,
	}
}

// Completeness weighs required fields at 70% and optional ones at 30%.
func Completeness(f Fields) float64 {
	count := func(names []FieldName) float64 {
		n := 0
		for _, name := range names {
			if _, ok := f.Get(name); ok {
				n++
			}
		}
		return float64(n) / float64(len(names))
	}
	total := count(requiredFields)*0.7 + count(optionalFields)*0.3
	return math.Round(total*100) / 100
}

func stageOf(r *ConversationRecord, a Assessment) Stage {
	if r.Status == StatusFinalized {
		return StageCompleted
	}
	if last, ok := r.LastInbound(); ok && last.SupportRequest {
		return StageSupport
	}
	switch {
	case r.TurnCount == 0:
		return StageInitial
	case a.Tier == TierHot:
		return StageReadyForLead
	case len(r.Fields) == 0:
		return StageInitial
	}
	return StageGatheringInfo
}
