package models

import "time"

const (
	EventTypeOpen  = "open"
	EventTypeClick = "click"
)

const (
	DeliveryOutcomeSent   = "sent"
	DeliveryOutcomeFailed = "failed"
)

// TrackingEvent is an append-only engagement record.
type TrackingEvent struct {
	ID         uint64    `json:"id"`
	CampaignID uint64    `json:"campaignId"`
	TrackingID string    `json:"trackingId"`
	Type       string    `json:"type"`
	URL        *string   `json:"url,omitempty"`
	OccurredAt time.Time `json:"timestamp"`
	UserAgent  string    `json:"userAgent"`
	IP         string    `json:"ip"`
}

// DeliveryRecord is one send attempt. Resends append, never overwrite.
type DeliveryRecord struct {
	ID          uint64    `json:"id"`
	CampaignID  uint64    `json:"campaignId"`
	TrackingID  string    `json:"trackingId"`
	Outcome     string    `json:"outcome"`
	AttemptedAt time.Time `json:"timestamp"`
	Error       *string   `json:"error,omitempty"`
}

// DispatchResult summarizes one dispatch run.
type DispatchResult struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
