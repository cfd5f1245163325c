package messages

import "time"

const (
	ActivityOpen       = "open"
	ActivityClick      = "click"
	ActivityDispatched = "dispatched"
)

// CampaignActivity is published on every recorded engagement event and on
// every finished dispatch run.
type CampaignActivity struct {
	CampaignID uint64    `json:"campaign_id"`
	Kind       string    `json:"kind"`
	TrackingID string    `json:"tracking_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`

	Attempted int `json:"attempted,omitempty"`
	Succeeded int `json:"succeeded,omitempty"`
	Failed    int `json:"failed,omitempty"`
}
