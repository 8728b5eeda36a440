package archive

import (
	"sort"
	"time"

	"github.com/wolfman30/lead-qualifier/internal/qualification"
)

// RecordVersion is bumped when the archived layout changes.
const RecordVersion = "1.0"

// ConversationRecord is the archived form of a finalized conversation.
type ConversationRecord struct {
	Version         string            `json:"version"`
	ConversationID  string            `json:"conversation_id"`
	PhoneHash       string            `json:"phone_hash"`
	LeadID          string            `json:"lead_id,omitempty"`
	ArchivedAt      time.Time         `json:"archived_at"`
	DurationSeconds int               `json:"duration_seconds"`
	MessageCount    int               `json:"message_count"`
	Tier            string            `json:"tier"`
	Score           float64           `json:"score"`
	Forced          bool              `json:"forced"`
	Outcome         string            `json:"outcome"`
	Fields          map[string]string `json:"fields"`
	Messages        []Message         `json:"messages"`
}

// Message is a single conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action,omitempty"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	ConversationID string  `json:"conversation_id"`
	S3Key          string  `json:"s3_key"`
	LeadID         string  `json:"lead_id,omitempty"`
	Tier           string  `json:"tier"`
	Score          float64 `json:"score"`
	ArchivedAt     string  `json:"archived_at"`
	MessageCount   int     `json:"message_count"`
	Outcome        string  `json:"outcome"`
}

// FromResult builds the archived record. Contact details are hashed or
// scrubbed; the conversation id is the phone hash plus the finalize time.
func FromResult(res qualification.QualificationResult, leadID string) *ConversationRecord {
	at := res.FinalizedAt.UTC()
	if at.IsZero() {
		at = time.Now().UTC()
	}
	phoneHash := HashPhone(res.Sender)

	msgs := make([]Message, 0, len(res.Turns))
	for _, t := range res.Turns {
		role := "user"
		if t.Direction == qualification.DirectionOutbound {
			role = "assistant"
		}
		msgs = append(msgs, Message{
			Role:      role,
			Content:   ScrubPII(t.Text),
			Timestamp: t.Timestamp,
			Action:    string(t.Action),
		})
	}

	fields := RedactFields(res.Fields)

	duration := 0
	if len(res.Turns) > 0 {
		duration = int(res.Turns[len(res.Turns)-1].Timestamp.Sub(res.Turns[0].Timestamp).Seconds())
	}

	outcome := "lead_created"
	if res.Forced {
		outcome = "lead_forced"
	}

	return &ConversationRecord{
		Version:         RecordVersion,
		ConversationID:  phoneHash[:16] + "-" + at.Format("20060102T150405Z"),
		PhoneHash:       phoneHash,
		LeadID:          leadID,
		ArchivedAt:      at,
		DurationSeconds: duration,
		MessageCount:    len(msgs),
		Tier:            string(res.Tier),
		Score:           res.Score,
		Forced:          res.Forced,
		Outcome:         outcome,
		Fields:          fields,
		Messages:        msgs,
	}
}

// FieldNames lists the collected field names in sorted order.
func (r *ConversationRecord) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
