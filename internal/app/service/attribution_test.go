package service

import (
	"encoding/json"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/lumenlearn/growthloop/internal/app/model"
	"go.uber.org/zap"
)

// captureSink records published events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []capturedEvent
	done   chan struct{}
}

type capturedEvent struct {
	name      string
	visitorID string
	payload   json.RawMessage
}

func newCaptureSink() *captureSink {
	return &captureSink{done: make(chan struct{}, 8)}
}

func (s *captureSink) Publish(name, visitorID string, payload json.RawMessage) error {
	s.mu.Lock()
	s.events = append(s.events, capturedEvent{name, visitorID, payload})
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func TestAttributionCarrier_ParseRoundTrip(t *testing.T) {
	c := NewAttributionCarrier(zap.NewNop(), nil)

	attr := AttributionContext{
		InviterID:     "u1",
		Loop:          model.LoopBuddyChallenge,
		SmartLinkCode: "Ab3xYz9Qw1",
		UTMSource:     "whatsapp",
	}
	raw, err := c.Encode(attr)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	parsed := c.Parse(raw)
	if parsed == nil {
		t.Fatal("expected context to parse")
	}
	if *parsed != attr {
		t.Fatalf("round trip mismatch: %+v vs %+v", *parsed, attr)
	}
}

func TestAttributionCarrier_ParseCookieValue(t *testing.T) {
	c := NewAttributionCarrier(zap.NewNop(), nil)

	attr := AttributionContext{
		InviterID:     "u1",
		Loop:          model.LoopBuddyChallenge,
		SmartLinkCode: "Ab3xYz9Qw1",
		UTMCampaign:   "spring+break",
	}
	encoded, err := c.Encode(attr)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	// The redirect handler stores the token query-escaped; Parse must read
	// the cookie value exactly as persisted.
	parsed := c.Parse(url.QueryEscape(encoded))
	if parsed == nil {
		t.Fatalf("expected escaped cookie token to parse: %q", url.QueryEscape(encoded))
	}
	if *parsed != attr {
		t.Fatalf("cookie round trip mismatch: %+v vs %+v", *parsed, attr)
	}

	// Plain tokens keep parsing too, including ones with '+' in values.
	if parsed := c.Parse(encoded); parsed == nil || parsed.UTMCampaign != "spring+break" {
		t.Fatalf("plain token parse corrupted value: %+v", parsed)
	}
}

func TestAttributionCarrier_ParseRejectsMalformed(t *testing.T) {
	c := NewAttributionCarrier(zap.NewNop(), nil)

	cases := []string{
		"",
		"not json",
		`{"loop":"buddy_challenge"}`,
		`{"inviter_id":"u1","smart_link_code":"abc"}`,
		`{"inviter_id":"u1","loop":"made_up","smart_link_code":"abc"}`,
		`{"inviter_id":"","loop":"buddy_challenge","smart_link_code":"abc"}`,
	}
	for i, raw := range cases {
		if ctx := c.Parse(raw); ctx != nil {
			t.Errorf("case %d: expected nil for %q, got %+v", i, raw, ctx)
		}
	}
}

func TestAttributionCarrier_VisitorIDs(t *testing.T) {
	c := NewAttributionCarrier(zap.NewNop(), nil)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := c.IssueVisitorID()
		if id == "" {
			t.Fatal("expected non-empty visitor id")
		}
		if seen[id] {
			t.Fatalf("visitor id %q repeated", id)
		}
		seen[id] = true
	}
}

func TestAttributionCarrier_TrackOpened(t *testing.T) {
	sink := newCaptureSink()
	c := NewAttributionCarrier(zap.NewNop(), sink)

	attr := AttributionContext{
		InviterID:     "u1",
		Loop:          model.LoopCelebrate,
		SmartLinkCode: "Ab3xYz9Qw1",
	}
	c.TrackOpened(attr, "visitor-1", OpenedMeta{UserAgent: "test-agent"})

	select {
	case <-sink.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for opened event")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 1 {
		t.Fatalf("expected one event, got %d", len(sink.events))
	}
	event := sink.events[0]
	if event.name != model.EventLinkOpened || event.visitorID != "visitor-1" {
		t.Fatalf("unexpected event: %+v", event)
	}

	var payload map[string]any
	if err := json.Unmarshal(event.payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["smart_link_code"] != "Ab3xYz9Qw1" || payload["user_agent"] != "test-agent" {
		t.Fatalf("payload missing fields: %v", payload)
	}
}

func TestAttributionCarrier_TrackOpenedWithoutSink(t *testing.T) {
	c := NewAttributionCarrier(zap.NewNop(), nil)
	// Must not panic or block.
	c.TrackOpened(AttributionContext{}, "visitor-1", OpenedMeta{})
}
