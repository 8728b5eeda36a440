package extraction

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/wolfman30/lead-qualifier/internal/qualification"
)

var (
	nameRE   = regexp.MustCompile(`(?:\b[Ss]oy|\b[Mm]e llamo|\b[Mm]i nombre es|\b[Mm]y name is|\bI am|\bI'm)\s+(\p{Lu}\p{L}+(?:\s+\p{Lu}\p{L}+)?)`)
	emailRE  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRE  = regexp.MustCompile(`\+?\d[\d\s().\-]{6,}\d`)
	budgetRE = regexp.MustCompile(`(?i)(?:\$\s?\d[\d.,]*(?:\s?(?:mil|k))?|\d[\d.,]*\s?(?:mil\s)?(?:pesos|mxn|usd|d[oó]lares))`)
	// "presupuesto de 5000" without a currency marker.
	budgetWordRE = regexp.MustCompile(`(?i)presupuesto\s+(?:es\s+)?(?:de\s+)?(?:unos\s+)?(\d[\d.,]*(?:\s?mil)?)`)
	needRE       = regexp.MustCompile(`(?i)\b(?:necesito|estoy buscando|quiero|me interesa|i need|looking for)\s+([^.,;!?]{3,80})`)
)

var productTerms = []string{
	"sofás", "sofas", "sofá", "sofa", "sillones", "sillón", "sillon", "salas", "sala",
	"comedores", "comedor", "mesas", "mesa", "sillas", "silla",
	"colchones", "colchón", "colchon", "camas", "cama", "cabecera", "recámara", "recamara",
	"closets", "closet", "roperos", "ropero", "escritorios", "escritorio", "libreros", "librero",
	"mueble de tv", "muebles de tv", "buró", "buro", "couch", "table", "chairs", "bed",
}

var urgencyTerms = []struct {
	pattern *regexp.Regexp
	value   string
	weight  float64
}{
	{regexp.MustCompile(`(?i)\b(urgente|urge|lo antes posible|cuanto antes|hoy mismo|esta semana|asap|urgent)\b`), "high", 0.7},
	{regexp.MustCompile(`(?i)\b(este mes|pr[oó]ximas semanas|el pr[oó]ximo mes|next month)\b`), "medium", 0.6},
}

var supportTerms = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bpedido\b.*\bno\s+(me\s+)?(ha\s+)?lleg[oó]`),
	regexp.MustCompile(`(?i)\b(reclamo|queja|devoluci[oó]n|garant[ií]a|soporte|reembolso)\b`),
	regexp.MustCompile(`(?i)\b(lleg[oó]\s+(roto|dañado|da[nñ]ado)|defectuoso)\b`),
	regexp.MustCompile(`(?i)\b(refund|complaint|broken|damaged)\b`),
}

// HeuristicExtractor recognizes fields with fixed patterns. It never fails and
// needs no network, so it backs the LLM extractors.
type HeuristicExtractor struct{}

func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

func (h *HeuristicExtractor) Extract(_ context.Context, text string, _ qualification.Fields) (qualification.Extraction, error) {
	out := qualification.Extraction{Fields: make(map[qualification.FieldName]qualification.Candidate)}
	text = strings.TrimSpace(text)
	if text == "" {
		return out, nil
	}
	add := func(name qualification.FieldName, value string, conf float64) {
		value = strings.TrimSpace(value)
		if value != "" {
			out.Fields[name] = qualification.Candidate{Value: value, Confidence: conf}
		}
	}

	if m := nameRE.FindStringSubmatch(text); m != nil {
		add(qualification.FieldContactName, m[1], 0.85)
	}
	email := emailRE.FindString(text)
	if email != "" {
		add(qualification.FieldEmail, email, 0.95)
	}

	budget := ""
	if m := budgetWordRE.FindStringSubmatch(text); m != nil {
		budget = m[1]
	}
	if m := budgetRE.FindString(text); m != "" {
		budget = m
	}
	add(qualification.FieldBudget, budget, 0.9)

	// Amounts look like short digit runs; a phone needs at least 8 digits.
	withoutEmail := strings.Replace(text, email, " ", 1)
	if m := phoneRE.FindString(withoutEmail); m != "" && len(qualification.NormalizePhone(m)) >= 8 && !strings.Contains(budget, strings.TrimSpace(m)) {
		add(qualification.FieldPhone, m, 0.9)
	}

	if products := matchProducts(text); len(products) > 0 {
		add(qualification.FieldProduct, strings.Join(products, ", "), 0.8)
	}
	if m := needRE.FindStringSubmatch(text); m != nil {
		add(qualification.FieldNeed, m[1], 0.6)
	}
	for _, u := range urgencyTerms {
		if u.pattern.MatchString(text) {
			add(qualification.FieldUrgency, u.value, u.weight)
			break
		}
	}
	for _, re := range supportTerms {
		if re.MatchString(text) {
			out.SupportRequest = true
			break
		}
	}
	return out, nil
}

// matchProducts returns product terms in order of appearance, skipping terms
// contained in an earlier, longer match.
func matchProducts(text string) []string {
	lower := strings.ToLower(text)
	type hit struct {
		at   int
		term string
	}
	var hits []hit
	taken := make([]bool, len(lower))
	for _, term := range productTerms {
		idx := indexWord(lower, term)
		if idx < 0 || taken[idx] {
			continue
		}
		for i := idx; i < idx+len(term); i++ {
			taken[i] = true
		}
		hits = append(hits, hit{at: idx, term: term})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.term)
	}
	return out
}

// indexWord finds term on word boundaries.
func indexWord(s, term string) int {
	from := 0
	for {
		i := strings.Index(s[from:], term)
		if i < 0 {
			return -1
		}
		i += from
		end := i + len(term)
		if (i == 0 || !isLetter(s[i-1])) && (end == len(s) || !isLetter(s[end])) {
			return i
		}
		from = i + 1
	}
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 0x80
}
