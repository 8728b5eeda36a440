package qualification

// PolicyInput is the snapshot the policy decides on.
type PolicyInput struct {
	Assessment Assessment
	Fields     Fields
	TurnCount  int
	// SupportRequested is the extractor's support flag for the current turn.
	SupportRequested bool
	// UsedPrompts are the prompt keys already asked in this conversation.
	UsedPrompts []string
}

// Policy chooses the next action. It holds no mutable state and is safe for
// concurrent use.
type Policy struct {
	ceiling int
	prompts *Catalog
}

// NewPolicy builds a policy with the turn ceiling from settings.
func NewPolicy(settings Settings, prompts *Catalog) Policy {
	if prompts == nil {
		prompts = DefaultCatalog()
	}
	return Policy{ceiling: settings.Normalized().TurnCeiling, prompts: prompts}
}

// Ceiling returns the configured turn ceiling.
func (p Policy) Ceiling() int {
	return p.ceiling
}

// Catalog returns the prompt catalog used for follow-up selection.
func (p Policy) Catalog() *Catalog {
	if p.prompts == nil {
		return DefaultCatalog()
	}
	return p.prompts
}

// Decide applies the decision table; the first matching rule wins.
//
//  1. hot with a reachable contact      -> create_lead
//  2. support signal on this turn       -> transfer_to_support
//  3. turn count past the ceiling       -> create_lead (forced)
//  4. turn count at the ceiling         -> gather_more_details (last call)
//  5. no contact                        -> request_contact_info
//  6. no interest                       -> ask_about_interest
//  7. no intent                         -> ask_clarifying_question
//  8. otherwise                         -> gather_more_details
func (p Policy) Decide(in PolicyInput) ActionDecision {
	a := in.Assessment
	contact := a.Satisfied(DimensionContact)

	var d ActionDecision
	switch {
	case a.Tier == TierHot && contact:
		d = ActionDecision{Action: ActionCreateLead, Reason: "qualified"}
	case in.SupportRequested:
		d = ActionDecision{Action: ActionTransferToSupport, Reason: "support_request"}
	case in.TurnCount > p.ceiling:
		d = ActionDecision{Action: ActionCreateLead, Forced: true, Reason: "turn_ceiling"}
	case in.TurnCount == p.ceiling:
		d = ActionDecision{Action: ActionGatherDetails, Reason: "turn_ceiling_warning"}
	case !contact:
		d = ActionDecision{Action: ActionRequestContact, Reason: "missing_contact"}
	case !a.Satisfied(DimensionInterest):
		d = ActionDecision{Action: ActionAskInterest, Reason: "missing_interest"}
	case !a.Satisfied(DimensionIntent):
		d = ActionDecision{Action: ActionClarify, Reason: "missing_intent"}
	default:
		d = ActionDecision{Action: ActionGatherDetails, Reason: "more_details"}
	}

	if d.Action.NeedsPrompt() {
		d.PromptKey = p.Catalog().Select(d.Action, in.UsedPrompts, in.TurnCount)
	}
	return d
}
