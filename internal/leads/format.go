package leads

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/wolfman30/lead-qualifier/internal/qualification"
)

// SourceWhatsApp tags leads that came through the chat channel.
const SourceWhatsApp = "WhatsApp"

// RequestFromResult maps a finalized conversation onto a CRM lead request.
func RequestFromResult(res qualification.QualificationResult) *CreateLeadRequest {
	get := func(name qualification.FieldName) string {
		v, _ := res.Fields.Get(name)
		return v.Value
	}
	sender := CleanPhone(res.Sender)
	phone := get(qualification.FieldPhone)
	if phone == "" {
		phone = sender
	}
	name := get(qualification.FieldContactName)
	interest := get(qualification.FieldProduct)
	urgency := get(qualification.FieldUrgency)

	return &CreateLeadRequest{
		Title:           LeadTitle(name, interest, phone),
		ContactName:     name,
		Phone:           phone,
		SenderPhone:     sender,
		Email:           get(qualification.FieldEmail),
		City:            get(qualification.FieldLocation),
		ProductInterest: interest,
		Need:            get(qualification.FieldNeed),
		Budget:          get(qualification.FieldBudget),
		Urgency:         urgency,
		Priority:        PriorityFor(urgency),
		Source:          SourceWhatsApp,
		Tier:            string(res.Tier),
		Score:           res.Score,
		Forced:          res.Forced,
		Description:     Description(res),
	}
}

// LeadTitle names a lead after the contact and up to two products.
func LeadTitle(name, interest, phone string) string {
	products := firstN(splitList(interest), 2)
	switch {
	case name != "" && len(products) > 0:
		return fmt.Sprintf("%s - %s", name, strings.Join(products, ", "))
	case name != "":
		return fmt.Sprintf("%s - Consulta WhatsApp", name)
	case len(products) > 0:
		return fmt.Sprintf("Lead WhatsApp - %s", strings.Join(products, ", "))
	default:
		return fmt.Sprintf("Lead WhatsApp - %s", phone)
	}
}

// PriorityFor maps an urgency marker to the CRM priority scale "1".."3".
func PriorityFor(urgency string) string {
	switch strings.ToLower(strings.TrimSpace(urgency)) {
	case "high", "alta", "urgente":
		return "3"
	case "medium", "media":
		return "2"
	default:
		return "1"
	}
}

// CleanPhone strips the channel prefix and spaces from a sender address.
func CleanPhone(sender string) string {
	s := strings.TrimSpace(sender)
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	return strings.ReplaceAll(s, " ", "")
}

// Description renders the qualification and transcript for the CRM.
func Description(res qualification.QualificationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Nivel de interés: %s (puntaje %.2f)\n", res.Tier, res.Score)
	if res.Forced {
		b.WriteString("Cierre forzado por límite de turnos\n")
	}
	names := make([]string, 0, len(res.Fields))
	for name := range res.Fields {
		names = append(names, string(name))
	}
	sort.Strings(names)
	for _, name := range names {
		v := res.Fields[qualification.FieldName(name)]
		fmt.Fprintf(&b, "%s: %s (confianza %.2f)\n", name, v.Value, v.Confidence)
	}
	b.WriteString("\nConversación:\n")
	for _, t := range res.Turns {
		who := "Cliente"
		if t.Direction == qualification.DirectionOutbound {
			who = "Asistente"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", t.Timestamp.UTC().Format("2006-01-02 15:04"), who, t.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NoteBody summarizes a repeated qualification for an existing lead.
func NoteBody(res qualification.QualificationResult) string {
	last := ""
	for i := len(res.Turns) - 1; i >= 0; i-- {
		if res.Turns[i].Direction == qualification.DirectionInbound {
			last = res.Turns[i].Text
			break
		}
	}
	interest, _ := res.Fields.Get(qualification.FieldProduct)
	return fmt.Sprintf(
		"<p><strong>Mensaje de WhatsApp:</strong></p><p>%s</p><p><strong>Calificación:</strong></p><ul><li><strong>Calidad:</strong> %s</li><li><strong>Puntaje:</strong> %.2f</li><li><strong>Productos de interés:</strong> %s</li></ul>",
		html.EscapeString(last), res.Tier, res.Score, html.EscapeString(interest.Value),
	)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
