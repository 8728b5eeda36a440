package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/lead-qualifier/internal/qualification"
)

func TestHashPhone(t *testing.T) {
	h1 := HashPhone("5215512345678")
	h2 := HashPhone("whatsapp:+52 1 55 1234 5678")
	h3 := HashPhone("5215587654321")

	assert.Equal(t, h1, h2, "formatting must not change the hash")
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64, "SHA-256 hex should be 64 chars")
}

func TestScrubPII(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"email", "escríbeme a maria@example.com por favor", "escríbeme a [EMAIL] por favor"},
		{"phone", "mi número es 55 1234 5678", "mi número es [PHONE]"},
		{"phone with plus", "llámame al +5215512345678", "llámame al [PHONE]"},
		{"no pii", "busco un sofá de 3 plazas", "busco un sofá de 3 plazas"},
		{"name kept", "Soy María López", "Soy María López"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, ScrubPII(tt.input))
		})
	}
}

func TestRedactFields(t *testing.T) {
	out := RedactFields(qualification.Fields{
		qualification.FieldPhone:       {Value: "+5215512345678"},
		qualification.FieldEmail:       {Value: "ana@example.com"},
		qualification.FieldContactName: {Value: "Ana"},
		qualification.FieldProduct:     {Value: "sofá, llámame al 55 1234 5678"},
	})

	assert.Equal(t, Redacted, out["phone"])
	assert.Equal(t, Redacted, out["email"])
	assert.Equal(t, "Ana", out["name"])
	assert.Equal(t, "sofá, llámame al [PHONE]", out["product_interest"])
}
