package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

type recordingSink struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
	fail     bool
}

func (s *recordingSink) Send(_ context.Context, channel string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink down")
	}
	s.channels = append(s.channels, channel)
	s.payloads = append(s.payloads, payload)
	return nil
}

func TestDispatcherFansOutPerTenantAndAll(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, "ledger:events", 8)

	d.Publish(context.Background(), Event{Kind: KindSaleCreated, TenantID: "usr-admin", EntityID: "sale-1"})
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(sink.channels) != 2 || sink.channels[0] != "ledger:events:usr-admin" || sink.channels[1] != "ledger:events:all" {
		t.Fatalf("unexpected channels %v", sink.channels)
	}
	var decoded Event
	if err := json.Unmarshal(sink.payloads[0], &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != KindSaleCreated || decoded.EntityID != "sale-1" || decoded.At.IsZero() {
		t.Fatalf("unexpected event %+v", decoded)
	}
}

func TestDispatcherSurvivesSinkFailureAndClose(t *testing.T) {
	sink := &recordingSink{fail: true}
	d := NewDispatcher(sink, "ledger:events", 1)
	for i := 0; i < 20; i++ {
		d.Publish(context.Background(), Event{Kind: KindStockAdjusted, TenantID: "usr-admin"})
	}
	_ = d.Close()
	_ = d.Close()
	d.Publish(context.Background(), Event{Kind: KindStockAdjusted, TenantID: "usr-admin"})
}
