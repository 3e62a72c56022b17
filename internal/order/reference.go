package order

import (
	"strings"

	"github.com/google/uuid"
)

// Charset skips 0/O, 1/I/L and U/V lookalikes so references survive being
// read over the phone.
const (
	referenceAlphabet = "ABCDEFGHJKMNPQRSTWXYZ23456789"
	referenceLength   = 10
	referencePrefix   = "ORD-"
)

// NewReference produces a candidate order reference. It is pure randomness
// with no global coordination: callers must check uniqueness against stored
// orders and regenerate on collision, with the orders.reference constraint
// as the backstop.
func NewReference() string {
	raw := uuid.New()
	var b strings.Builder
	b.Grow(len(referencePrefix) + referenceLength)
	b.WriteString(referencePrefix)
	for i := 0; i < referenceLength; i++ {
		b.WriteByte(referenceAlphabet[int(raw[i])%len(referenceAlphabet)])
	}
	return b.String()
}
