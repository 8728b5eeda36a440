package qualification

import (
	"math"
	"strings"
	"unicode"
)

// Dimension is one qualification axis.
type Dimension string

const (
	DimensionContact  Dimension = "contact_identifiability"
	DimensionInterest Dimension = "interest_specificity"
	DimensionIntent   Dimension = "intent_clarity"
)

// dimensionFields lists the fields that can satisfy each dimension.
var dimensionFields = map[Dimension][]FieldName{
	DimensionContact:  {FieldContactName, FieldPhone, FieldEmail},
	DimensionInterest: {FieldProduct, FieldNeed},
	DimensionIntent:   {FieldBudget, FieldUrgency},
}

// Weights scale each dimension's contribution to the score.
type Weights struct {
	Contact  float64 `json:"contact"`
	Interest float64 `json:"interest"`
	Intent   float64 `json:"intent"`
}

// Settings tunes the scorer and policy.
type Settings struct {
	Weights       Weights `json:"weights"`
	HotThreshold  float64 `json:"hot_threshold"`
	WarmThreshold float64 `json:"warm_threshold"`
	TurnCeiling   int     `json:"turn_ceiling"`
}

const (
	DefaultHotThreshold  = 0.75
	DefaultWarmThreshold = 0.40
	DefaultTurnCeiling   = 8
)

// DefaultSettings uses equal thirds and the standard thresholds.
func DefaultSettings() Settings {
	return Settings{
		Weights:       Weights{Contact: 1.0 / 3, Interest: 1.0 / 3, Intent: 1.0 / 3},
		HotThreshold:  DefaultHotThreshold,
		WarmThreshold: DefaultWarmThreshold,
		TurnCeiling:   DefaultTurnCeiling,
	}
}

// Normalized returns s with weights summing to 1 and out-of-range values
// replaced by defaults.
func (s Settings) Normalized() Settings {
	def := DefaultSettings()
	w := s.Weights
	if w.Contact < 0 || w.Interest < 0 || w.Intent < 0 || isBad(w.Contact) || isBad(w.Interest) || isBad(w.Intent) {
		w = def.Weights
	}
	total := w.Contact + w.Interest + w.Intent
	if total <= 0 {
		w, total = def.Weights, 1
	}
	s.Weights = Weights{Contact: w.Contact / total, Interest: w.Interest / total, Intent: w.Intent / total}

	if s.HotThreshold <= 0 || s.HotThreshold > 1 || isBad(s.HotThreshold) {
		s.HotThreshold = def.HotThreshold
	}
	if s.WarmThreshold < 0 || s.WarmThreshold > 1 || isBad(s.WarmThreshold) {
		s.WarmThreshold = def.WarmThreshold
	}
	if s.WarmThreshold > s.HotThreshold {
		s.HotThreshold, s.WarmThreshold = def.HotThreshold, def.WarmThreshold
	}
	if s.TurnCeiling <= 0 {
		s.TurnCeiling = def.TurnCeiling
	}
	return s
}

func (w Weights) of(d Dimension) float64 {
	switch d {
	case DimensionContact:
		return w.Contact
	case DimensionInterest:
		return w.Interest
	case DimensionIntent:
		return w.Intent
	}
	return 0
}

// DimensionScore is the best satisfying field of one dimension.
type DimensionScore struct {
	Satisfied  bool      `json:"satisfied"`
	Field      FieldName `json:"field,omitempty"`
	Confidence float64   `json:"confidence"`
}

// Assessment is the scorer output.
type Assessment struct {
	Score      float64                      `json:"score"`
	Tier       Tier                         `json:"tier"`
	Dimensions map[Dimension]DimensionScore `json:"dimensions"`
}

// Satisfied reports whether dimension d has a supporting field.
func (a Assessment) Satisfied(d Dimension) bool {
	return a.Dimensions[d].Satisfied
}

// Scorer computes completeness scores. The zero value is not usable; use NewScorer.
type Scorer struct {
	settings Settings
}

// NewScorer builds a scorer from normalized settings.
func NewScorer(settings Settings) Scorer {
	return Scorer{settings: settings.Normalized()}
}

// Settings returns the normalized settings in use.
func (s Scorer) Settings() Settings {
	return s.settings
}

// Score evaluates fields for the conversation held on channel. A phone number
// only identifies the contact when it differs from the channel address.
func (s Scorer) Score(fields Fields, channel string) Assessment {
	dims := make(map[Dimension]DimensionScore, len(dimensionFields))
	total := 0.0
	for _, d := range []Dimension{DimensionContact, DimensionInterest, DimensionIntent} {
		best := DimensionScore{}
		for _, name := range dimensionFields[d] {
			v, ok := fields.Get(name)
			if !ok || v.Confidence <= 0 {
				continue
			}
			if name == FieldPhone && samePhone(v.Value, channel) {
				continue
			}
			if v.Confidence > best.Confidence {
				best = DimensionScore{Satisfied: true, Field: name, Confidence: v.Confidence}
			}
		}
		dims[d] = best
		total += best.Confidence * s.settings.Weights.of(d)
	}
	total = math.Round(clamp01(total)*10000) / 10000

	tier := TierCold
	contact := dims[DimensionContact].Satisfied
	switch {
	case total >= s.settings.HotThreshold && contact:
		tier = TierHot
	case total >= s.settings.WarmThreshold:
		tier = TierWarm
	}
	return Assessment{Score: total, Tier: tier, Dimensions: dims}
}

// NormalizePhone keeps only digits, dropping channel prefixes such as "whatsapp:".
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func samePhone(a, b string) bool {
	da, db := NormalizePhone(a), NormalizePhone(b)
	if da == "" || db == "" {
		return false
	}
	if da == db {
		return true
	}
	// Tolerate a missing country code on either side.
	if len(da) >= 7 && len(db) >= 7 {
		return strings.HasSuffix(da, db) || strings.HasSuffix(db, da)
	}
	return false
}

func isBad(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
