package service

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/lumenlearn/growthloop/internal/app/model"
	"go.uber.org/zap"
)

// AttributionContext is the client-held record linking a visitor back to the
// referring actor and loop. It is advisory: reward-granting flows must
// re-verify against the stored SmartLink, never trust this alone.
type AttributionContext struct {
	InviterID     string     `json:"inviter_id"`
	Loop          model.Loop `json:"loop"`
	SmartLinkCode string     `json:"smart_link_code"`
	UTMSource     string     `json:"utm_source,omitempty"`
	UTMMedium     string     `json:"utm_medium,omitempty"`
	UTMCampaign   string     `json:"utm_campaign,omitempty"`
}

// EventSink is where the carrier dispatches tracking events.
type EventSink interface {
	Publish(name, visitorID string, payload json.RawMessage) error
}

// OpenedMeta captures request metadata attached to a link_opened event.
type OpenedMeta struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
}

// AttributionCarrier encodes/decodes the attribution token, issues visitor
// identifiers, and emits best-effort tracking events.
type AttributionCarrier struct {
	logger *zap.Logger
	events EventSink
}

// NewAttributionCarrier builds a carrier. events may be nil, in which case
// tracking calls are dropped silently (links still resolve).
func NewAttributionCarrier(logger *zap.Logger, events EventSink) *AttributionCarrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttributionCarrier{logger: logger, events: events}
}

// Parse decodes a raw attribution token. The cookie value arrives
// query-escaped (cookies cannot hold bare JSON), so escaped tokens are
// unescaped first. Malformed or partial tokens yield nil; the caller treats
// absence as "no attribution", never as an error.
func (c *AttributionCarrier) Parse(raw string) *AttributionContext {
	if raw == "" {
		return nil
	}

	// Escaped JSON never starts with '{' (QueryEscape turns it into %7B), so
	// an already-plain token is left untouched.
	if !strings.HasPrefix(raw, "{") {
		unescaped, err := url.QueryUnescape(raw)
		if err != nil {
			return nil
		}
		raw = unescaped
	}

	var attr AttributionContext
	if err := json.Unmarshal([]byte(raw), &attr); err != nil {
		return nil
	}
	if attr.InviterID == "" || attr.SmartLinkCode == "" {
		return nil
	}
	if _, ok := model.ParseLoop(string(attr.Loop)); !ok {
		return nil
	}
	return &attr
}

// Encode serializes the context for the client-held cookie.
func (c *AttributionCarrier) Encode(attr AttributionContext) (string, error) {
	data, err := json.Marshal(attr)
	if err != nil {
		return "", fmt.Errorf("encode attribution: %w", err)
	}
	return string(data), nil
}

// IssueVisitorID mints a new anonymous visitor identifier. crypto/rand is the
// only entropy source so the carrier can also run at the network edge.
func (c *AttributionCarrier) IssueVisitorID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in no state to serve.
		panic(fmt.Sprintf("attribution: read random: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// TrackOpened emits a link_opened event on a detached goroutine. Failures are
// logged and swallowed; the redirect must never wait on or fail with tracking.
func (c *AttributionCarrier) TrackOpened(attr AttributionContext, visitorID string, meta OpenedMeta) {
	if c.events == nil {
		return
	}

	go func() {
		payload, err := json.Marshal(struct {
			AttributionContext
			OpenedMeta
		}{attr, meta})
		if err != nil {
			c.logger.Error("failed to encode link_opened payload", zap.Error(err))
			return
		}
		if err := c.events.Publish(model.EventLinkOpened, visitorID, payload); err != nil {
			c.logger.Warn("failed to publish link_opened event",
				zap.Error(err),
				zap.String("code", attr.SmartLinkCode))
		}
	}()
}
