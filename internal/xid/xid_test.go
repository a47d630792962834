package xid

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestNewUsesPrefix(t *testing.T) {
	id := New("sale")
	if !strings.HasPrefix(id, "sale-") || len(id) != len("sale-")+36 {
		t.Fatalf("unexpected id %q", id)
	}
	if New("sale") == id {
		t.Fatalf("expected distinct ids")
	}
}

func TestReceiptNumberFormat(t *testing.T) {
	at := time.Date(2026, 3, 7, 23, 0, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^RCP-20260307-\d{3}$`)
	for i := 0; i < 50; i++ {
		if got := ReceiptNumber(at, 3); !pattern.MatchString(got) {
			t.Fatalf("unexpected receipt number %q", got)
		}
	}
	if got := ReceiptNumber(at, 6); !regexp.MustCompile(`^RCP-20260307-\d{6}$`).MatchString(got) {
		t.Fatalf("unexpected widened receipt number %q", got)
	}
}

func TestBarcodeToken(t *testing.T) {
	code := Barcode()
	if !strings.HasPrefix(code, "GEN") || len(code) != 16 {
		t.Fatalf("unexpected barcode %q", code)
	}
}
