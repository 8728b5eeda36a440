package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"

	"github.com/wolfman30/lead-qualifier/internal/qualification"
)

// Redacted replaces contact field values in archived records.
const Redacted = "[REDACTED]"

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s().\-]{6,}\d`)
)

// contactFields are never archived in clear.
var contactFields = map[qualification.FieldName]bool{
	qualification.FieldPhone: true,
	qualification.FieldEmail: true,
}

// HashPhone returns the hex SHA-256 of a phone number's digits.
func HashPhone(phone string) string {
	sum := sha256.Sum256([]byte(qualification.NormalizePhone(phone)))
	return hex.EncodeToString(sum[:])
}

// ScrubPII replaces emails with [EMAIL] and phone numbers with [PHONE] in
// free text. Names are kept.
func ScrubPII(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	return phoneRe.ReplaceAllString(text, "[PHONE]")
}

// RedactFields flattens collected fields for storage, blanking contact
// details and scrubbing the rest.
func RedactFields(fields qualification.Fields) map[string]string {
	out := make(map[string]string, len(fields))
	for name, v := range fields {
		if contactFields[name] {
			out[string(name)] = Redacted
			continue
		}
		out[string(name)] = ScrubPII(v.Value)
	}
	return out
}
