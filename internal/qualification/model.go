package qualification

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FieldName identifies one piece of qualifying information.
type FieldName string

const (
	FieldUnknown     FieldName = ""
	FieldContactName FieldName = "name"
	FieldPhone       FieldName = "phone"
	FieldEmail       FieldName = "email"
	FieldProduct     FieldName = "product_interest"
	FieldNeed        FieldName = "need"
	FieldBudget      FieldName = "budget"
	FieldUrgency     FieldName = "urgency"
	FieldLocation    FieldName = "location"
)

// KnownFields lists every field the extractor may return, in display order.
var KnownFields = []FieldName{
	FieldContactName,
	FieldPhone,
	FieldEmail,
	FieldProduct,
	FieldNeed,
	FieldBudget,
	FieldUrgency,
	FieldLocation,
}

// ParseFieldName maps an extractor key onto a known field.
func ParseFieldName(raw string) (FieldName, bool) {
	key := FieldName(strings.ToLower(strings.TrimSpace(raw)))
	switch key {
	case "budget_range":
		return FieldBudget, true
	case "product", "products", "interest":
		return FieldProduct, true
	case "intent", "specific_need":
		return FieldNeed, true
	case "city":
		return FieldLocation, true
	}
	for _, f := range KnownFields {
		if f == key {
			return f, true
		}
	}
	return FieldUnknown, false
}

// FieldValue is one accumulated field.
type FieldValue struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	// SourceTurn is the inbound turn number (1-based) that produced the value.
	SourceTurn int `json:"source_turn"`
}

// Fields maps field names to their best-known values.
type Fields map[FieldName]FieldValue

// Clone returns an independent copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Get returns the value for name when present and non-empty.
func (f Fields) Get(name FieldName) (FieldValue, bool) {
	v, ok := f[name]
	if !ok || strings.TrimSpace(v.Value) == "" {
		return FieldValue{}, false
	}
	return v, true
}

// Candidate is a freshly extracted field before it is merged.
type Candidate struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Extraction is what the Field Extractor returns for one message.
type Extraction struct {
	Fields         map[FieldName]Candidate `json:"fields"`
	SupportRequest bool                    `json:"support_request"`
}

// Merge folds candidates into fields. An existing value is replaced only by a
// strictly more confident candidate. It reports which fields changed.
func (f Fields) Merge(candidates map[FieldName]Candidate, turn int) []FieldName {
	var changed []FieldName
	for name, c := range candidates {
		value := strings.TrimSpace(c.Value)
		if value == "" || name == FieldUnknown {
			continue
		}
		conf := clamp01(c.Confidence)
		if existing, ok := f[name]; ok && strings.TrimSpace(existing.Value) != "" && conf <= existing.Confidence {
			continue
		}
		f[name] = FieldValue{Value: value, Confidence: conf, SourceTurn: turn}
		changed = append(changed, name)
	}
	return changed
}

// Tier is the discrete lead quality bucket.
type Tier string

const (
	TierCold Tier = "cold"
	TierWarm Tier = "warm"
	TierHot  Tier = "hot"
)

// Action is the closed set of next steps the policy may choose.
type Action string

const (
	ActionCreateLead        Action = "create_lead"
	ActionClarify           Action = "ask_clarifying_question"
	ActionRequestContact    Action = "request_contact_info"
	ActionAskInterest       Action = "ask_about_interest"
	ActionTransferToSupport Action = "transfer_to_support"
	ActionGatherDetails     Action = "gather_more_details"
)

// Terminal reports whether the action ends the qualification flow.
func (a Action) Terminal() bool {
	return a == ActionCreateLead
}

// NeedsPrompt reports whether the action is answered with a follow-up question.
func (a Action) NeedsPrompt() bool {
	switch a {
	case ActionClarify, ActionRequestContact, ActionAskInterest, ActionGatherDetails:
		return true
	}
	return false
}

// ActionDecision is the policy output for one turn.
type ActionDecision struct {
	Action Action `json:"action"`
	// PromptKey selects the follow-up question; empty for create_lead and transfer_to_support.
	PromptKey string `json:"prompt_key,omitempty"`
	// Forced is set when create_lead came from the turn ceiling.
	Forced bool   `json:"forced,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Direction distinguishes sender messages from replies.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Turn is one message in the conversation.
type Turn struct {
	Direction        Direction `json:"direction"`
	Text             string    `json:"text"`
	Timestamp        time.Time `json:"timestamp"`
	MessageID        string    `json:"message_id,omitempty"`
	SupportRequest   bool      `json:"support_request,omitempty"`
	ExtractionFailed bool      `json:"extraction_failed,omitempty"`
	Action           Action    `json:"action,omitempty"`
	PromptKey        string    `json:"prompt_key,omitempty"`
}

// Status is the record lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusFinalized Status = "finalized"
	StatusAbandoned Status = "abandoned"
)

// ConversationRecord is the per-sender qualification state.
type ConversationRecord struct {
	Sender       string    `json:"sender"`
	Turns        []Turn    `json:"turns"`
	Fields       Fields    `json:"fields"`
	Tier         Tier      `json:"tier"`
	Score        float64   `json:"score"`
	TurnCount    int       `json:"turn_count"`
	UsedPrompts  []string  `json:"used_prompts,omitempty"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// NewRecord starts an empty conversation for sender.
func NewRecord(sender string, now time.Time) *ConversationRecord {
	return &ConversationRecord{
		Sender:       sender,
		Fields:       Fields{},
		Tier:         TierCold,
		Status:       StatusActive,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// AppendInbound records a sender message and returns its 1-based turn number.
func (r *ConversationRecord) AppendInbound(turn Turn) int {
	turn.Direction = DirectionInbound
	r.Turns = append(r.Turns, turn)
	r.TurnCount++
	if turn.Timestamp.After(r.LastActivity) {
		r.LastActivity = turn.Timestamp
	}
	return r.TurnCount
}

// AppendOutbound records the reply chosen for the latest inbound turn.
func (r *ConversationRecord) AppendOutbound(text string, decision ActionDecision, at time.Time) {
	r.Turns = append(r.Turns, Turn{
		Direction: DirectionOutbound,
		Text:      text,
		Timestamp: at,
		Action:    decision.Action,
		PromptKey: decision.PromptKey,
	})
}

// Apply stores a fresh assessment. Score and tier are only ever written here.
func (r *ConversationRecord) Apply(a Assessment) {
	r.Score = a.Score
	r.Tier = a.Tier
}

// PromptUsed reports whether key was already asked in this conversation.
func (r *ConversationRecord) PromptUsed(key string) bool {
	for _, k := range r.UsedPrompts {
		if k == key {
			return true
		}
	}
	return false
}

// MarkPromptUsed adds key to the used set.
func (r *ConversationRecord) MarkPromptUsed(key string) {
	if key == "" || r.PromptUsed(key) {
		return
	}
	r.UsedPrompts = append(r.UsedPrompts, key)
}

// LastInbound returns the latest sender turn.
func (r *ConversationRecord) LastInbound() (Turn, bool) {
	for i := len(r.Turns) - 1; i >= 0; i-- {
		if r.Turns[i].Direction == DirectionInbound {
			return r.Turns[i], true
		}
	}
	return Turn{}, false
}

// Validate checks the structural invariants of a record loaded from storage.
func (r *ConversationRecord) Validate() error {
	if strings.TrimSpace(r.Sender) == "" {
		return errors.New("qualification: record sender is empty")
	}
	inbound := 0
	for _, t := range r.Turns {
		if t.Direction == DirectionInbound {
			inbound++
		}
	}
	if inbound != r.TurnCount {
		return fmt.Errorf("qualification: turn count %d does not match %d inbound turns", r.TurnCount, inbound)
	}
	return nil
}

// QualificationResult is emitted once per finalized conversation.
type QualificationResult struct {
	Sender      string    `json:"sender"`
	Fields      Fields    `json:"fields"`
	Tier        Tier      `json:"tier"`
	Score       float64   `json:"score"`
	Turns       []Turn    `json:"turns"`
	Forced      bool      `json:"forced,omitempty"`
	FinalizedAt time.Time `json:"finalized_at"`
}

// Result snapshots r for the lead emitter.
func (r *ConversationRecord) Result(forced bool, at time.Time) QualificationResult {
	turns := make([]Turn, len(r.Turns))
	copy(turns, r.Turns)
	return QualificationResult{
		Sender:      r.Sender,
		Fields:      r.Fields.Clone(),
		Tier:        r.Tier,
		Score:       r.Score,
		Turns:       turns,
		Forced:      forced,
		FinalizedAt: at,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
