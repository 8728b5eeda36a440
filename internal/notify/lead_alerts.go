package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/lead-qualifier/internal/leads"
	"github.com/wolfman30/lead-qualifier/internal/qualification"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

// LeadEmitter is the emitter being decorated.
type LeadEmitter interface {
	Emit(ctx context.Context, res qualification.QualificationResult) (leads.EmitResult, error)
}

// LeadAlerter emails the sales team when a new lead reaches MinTier. The
// alert is best effort: send failures are logged and never fail the emit.
type LeadAlerter struct {
	next       LeadEmitter
	sender     EmailSender
	recipients []string
	minTier    qualification.Tier
	timeout    time.Duration
	logger     *logging.Logger
}

// AlertConfig configures LeadAlerter.
type AlertConfig struct {
	Recipients []string
	// MinTier defaults to hot.
	MinTier qualification.Tier
	Timeout time.Duration
}

func NewLeadAlerter(next LeadEmitter, sender EmailSender, cfg AlertConfig, logger *logging.Logger) *LeadAlerter {
	if next == nil {
		panic("notify: emitter cannot be nil")
	}
	if sender == nil {
		panic("notify: email sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MinTier == "" {
		cfg.MinTier = qualification.TierHot
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	var recipients []string
	for _, r := range cfg.Recipients {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	return &LeadAlerter{
		next:       next,
		sender:     sender,
		recipients: recipients,
		minTier:    cfg.MinTier,
		timeout:    cfg.Timeout,
		logger:     logger,
	}
}

// Emit delegates to the wrapped emitter and alerts on new qualifying leads.
func (a *LeadAlerter) Emit(ctx context.Context, res qualification.QualificationResult) (leads.EmitResult, error) {
	out, err := a.next.Emit(ctx, res)
	if err != nil || out.Duplicate || !a.qualifies(res.Tier) {
		return out, err
	}

	if len(a.recipients) == 0 {
		return out, nil
	}
	msg := alertMessage(res, out.LeadID)
	msg.To = a.recipients
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()
	if sendErr := a.sender.Send(sendCtx, msg); sendErr != nil {
		a.logger.Warn("lead alert not sent", "error", sendErr, "lead_id", out.LeadID)
	}
	return out, nil
}

func (a *LeadAlerter) qualifies(tier qualification.Tier) bool {
	return tierRank(tier) >= tierRank(a.minTier)
}

func tierRank(t qualification.Tier) int {
	switch t {
	case qualification.TierHot:
		return 3
	case qualification.TierWarm:
		return 2
	case qualification.TierCold:
		return 1
	default:
		return 0
	}
}

func alertMessage(res qualification.QualificationResult, leadID string) EmailMessage {
	req := leads.RequestFromResult(res)
	return EmailMessage{
		Subject:  fmt.Sprintf("Nuevo lead %s: %s", strings.ToUpper(string(res.Tier)), req.Title),
		Text:     fmt.Sprintf("Lead %s\n\n%s", leadID, req.Description),
		HTML:     fmt.Sprintf("<p><strong>Lead %s</strong></p><pre>%s</pre>", html.EscapeString(leadID), html.EscapeString(req.Description)),
		Category: "lead-alert",
		Tags: map[string]string{
			"lead_id": leadID,
			"tier":    string(res.Tier),
		},
	}
}
