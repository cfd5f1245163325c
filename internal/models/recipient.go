package models

import "time"

// Contact is a list member as exposed by the audience store.
type Contact struct {
	ContactID uint64 `json:"contactId"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

// Recipient binds a contact to a campaign under a stable tracking id.
type Recipient struct {
	CampaignID uint64    `json:"campaignId"`
	ContactID  uint64    `json:"contactId"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	TrackingID string    `json:"trackingId"`
	CreatedAt  time.Time `json:"createdAt"`
}
