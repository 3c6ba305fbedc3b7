package model

import (
	"encoding/json"
	"time"
)

// Tracking event names flowing through the growth ingestion subject.
const (
	EventLinkOpened   = "link_opened"
	EventInviteSent   = "invite_sent"
	EventFriendJoined = "friend_joined"
	EventFirstValue   = "first_value"
)

// TrackingEvent represents a growth funnel event.
type TrackingEvent struct {
	ID        string          `json:"id" gorm:"primaryKey;size:36"`
	Name      string          `json:"name" gorm:"size:32;not null;index"`
	VisitorID string          `json:"visitor_id" gorm:"size:64;index"`
	Payload   json.RawMessage `json:"payload" gorm:"type:jsonb"`
	Timestamp time.Time       `json:"timestamp" gorm:"not null;index"`
}

// TableName pins the table name for the insert-only event log.
func (TrackingEvent) TableName() string { return "tracking_events" }

const (
	GrowthStreamName     = "GROWTH"
	GrowthStreamSubject  = "growth.events"
	GrowthConsumerName   = "growth-event-logger"
	GrowthStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
