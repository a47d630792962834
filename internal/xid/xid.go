package xid

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// Barcode returns a generated barcode token for products imported without one.
func Barcode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "GEN" + strings.ToUpper(raw[:13])
}

// ReceiptNumber renders RCP-YYYYMMDD-NNN. digits widens the random suffix
// once the three digit space is crowded.
func ReceiptNumber(at time.Time, digits int) string {
	if digits < 3 {
		digits = 3
	}
	limit := 1
	for i := 0; i < digits; i++ {
		limit *= 10
	}
	return fmt.Sprintf("RCP-%s-%0*d", at.UTC().Format("20060102"), digits, rand.Intn(limit))
}
