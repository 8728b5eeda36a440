package qualification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompleteness(t *testing.T) {
	assert.Equal(t, 0.0, Completeness(Fields{}))
	assert.Equal(t, 0.47, Completeness(fieldsOf(map[FieldName]float64{FieldContactName: 1, FieldProduct: 1})))
	assert.Equal(t, 1.0, Completeness(fieldsOf(map[FieldName]float64{
		FieldContactName: 1, FieldProduct: 1, FieldNeed: 1,
		FieldEmail: 1, FieldLocation: 1, FieldBudget: 1, FieldUrgency: 1,
	})))
}

func TestSummarize_Stages(t *testing.T) {
	now := time.Now().UTC()
	scorer := NewScorer(DefaultSettings())

	r := NewRecord("+15550001111", now)
	assert.Equal(t, StageInitial, Summarize(r, scorer.Score(r.Fields, r.Sender)).Stage)

	r.AppendInbound(Turn{Text: "Soy Ana, busco sillas", Timestamp: now})
	r.Fields.Merge(map[FieldName]Candidate{FieldContactName: {Value: "Ana", Confidence: 0.9}}, 1)
	s := Summarize(r, scorer.Score(r.Fields, r.Sender))
	assert.Equal(t, StageGatheringInfo, s.Stage)
	assert.True(t, s.Dimensions[DimensionContact])
	assert.Equal(t, 1, s.MessageCount)

	r.AppendInbound(Turn{Text: "mi pedido no llegó", Timestamp: now, SupportRequest: true})
	assert.Equal(t, StageSupport, Summarize(r, scorer.Score(r.Fields, r.Sender)).Stage)

	r.Status = StatusFinalized
	s = Summarize(r, scorer.Score(r.Fields, r.Sender))
	assert.Equal(t, StageCompleted, s.Stage)
	assert.True(t, s.Completed)
}
