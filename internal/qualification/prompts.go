package qualification

import "fmt"

// Prompt is one follow-up question.
type Prompt struct {
	Key  string
	Text string
}

// Catalog holds the follow-up pools and fixed replies.
type Catalog struct {
	pools          map[Action][]Prompt
	index          map[string]string
	SupportHandoff string
	LeadCreated    string
	Fallback       string
}

// NewCatalog indexes pools by key. Keys must be unique across pools.
func NewCatalog(pools map[Action][]Prompt, supportHandoff, leadCreated, fallback string) (*Catalog, error) {
	c := &Catalog{
		pools:          make(map[Action][]Prompt, len(pools)),
		index:          make(map[string]string),
		SupportHandoff: supportHandoff,
		LeadCreated:    leadCreated,
		Fallback:       fallback,
	}
	for action, pool := range pools {
		if !action.NeedsPrompt() {
			return nil, fmt.Errorf("qualification: action %q does not take prompts", action)
		}
		if len(pool) == 0 {
			return nil, fmt.Errorf("qualification: empty prompt pool for %q", action)
		}
		for _, p := range pool {
			if _, dup := c.index[p.Key]; dup {
				return nil, fmt.Errorf("qualification: duplicate prompt key %q", p.Key)
			}
			c.index[p.Key] = p.Text
		}
		c.pools[action] = append([]Prompt(nil), pool...)
	}
	for _, action := range []Action{ActionClarify, ActionRequestContact, ActionAskInterest, ActionGatherDetails} {
		if _, ok := c.pools[action]; !ok {
			return nil, fmt.Errorf("qualification: missing prompt pool for %q", action)
		}
	}
	return c, nil
}

// DefaultCatalog returns the built-in Spanish prompts.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(map[Action][]Prompt{
		ActionClarify: {
			{Key: "clarify.purchase_intent", Text: "¿Estás pensando en comprar pronto o solo estás comparando opciones?"},
			{Key: "clarify.budget", Text: "¿Tienes algún presupuesto en mente?"},
			{Key: "clarify.timing", Text: "¿Es urgente o tienes tiempo para evaluar opciones?"},
		},
		ActionRequestContact: {
			{Key: "contact.name", Text: "Me encantaría ayudarte. ¿Podrías compartirme tu nombre para personalizar mejor la atención?"},
			{Key: "contact.name_for_info", Text: "Para enviarte información detallada, ¿me compartes tu nombre?"},
			{Key: "contact.email", Text: "¿Tienes un correo electrónico donde podamos enviarte la cotización?"},
		},
		ActionAskInterest: {
			{Key: "interest.product", Text: "¿Qué tipo de muebles te interesan específicamente?"},
			{Key: "interest.space", Text: "¿Para qué espacio de tu hogar estás buscando muebles?"},
			{Key: "interest.style", Text: "¿Hay algún estilo en particular que tengas en mente?"},
		},
		ActionGatherDetails: {
			{Key: "details.city", Text: "¿En qué ciudad te encuentras?"},
			{Key: "details.more", Text: "¿Hay algún otro detalle que quieras contarme para preparar tu propuesta?"},
			{Key: "details.measurements", Text: "¿Tienes las medidas del espacio donde irá el mueble?"},
		},
	},
		"Entiendo tu consulta. Te voy a conectar con nuestro equipo de soporte para resolver tu situación.",
		"¡Gracias! Ya tengo todo lo necesario. Un asesor se pondrá en contacto contigo muy pronto.",
		"Disculpa, tuve un problema procesando tu mensaje. ¿Podrías repetirlo en un momento?",
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Select returns the first key of the action's pool not yet used. Once the
// pool is exhausted it cycles by turn number.
func (c *Catalog) Select(action Action, used []string, turn int) string {
	pool := c.pools[action]
	if len(pool) == 0 {
		return ""
	}
	seen := make(map[string]struct{}, len(used))
	for _, k := range used {
		seen[k] = struct{}{}
	}
	for _, p := range pool {
		if _, ok := seen[p.Key]; !ok {
			return p.Key
		}
	}
	if turn < 0 {
		turn = 0
	}
	return pool[turn%len(pool)].Key
}

// Text returns the prompt text for key.
func (c *Catalog) Text(key string) (string, bool) {
	t, ok := c.index[key]
	return t, ok
}

// Reply renders the outbound message for a decision.
func (c *Catalog) Reply(d ActionDecision) string {
	switch d.Action {
	case ActionCreateLead:
		return c.LeadCreated
	case ActionTransferToSupport:
		return c.SupportHandoff
	}
	if text, ok := c.Text(d.PromptKey); ok {
		return text
	}
	return c.Fallback
}
