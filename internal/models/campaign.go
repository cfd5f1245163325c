package models

import "time"

// Campaign statuses. sent is terminal for a normal dispatch; a resend moves
// the campaign back through sending and returns it to sent.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusSending   = "sending"
	CampaignStatusSent      = "sent"
)

type Campaign struct {
	ID          uint64     `json:"id"`
	Name        string     `json:"name"`
	Subject     string     `json:"subject"`
	FromName    string     `json:"fromName"`
	FromEmail   string     `json:"fromEmail"`
	HTMLContent string     `json:"htmlContent"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	ListIDs     []uint64   `json:"listIds"`
	ExcludedIDs []uint64   `json:"excludedIds"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Sender renders the From header value.
func (c *Campaign) Sender() string {
	if c.FromName == "" {
		return c.FromEmail
	}
	return c.FromName + " <" + c.FromEmail + ">"
}

// CampaignInput carries the operator-editable fields of a campaign.
type CampaignInput struct {
	Name        string   `json:"name"`
	Subject     string   `json:"subject"`
	FromName    string   `json:"fromName"`
	FromEmail   string   `json:"fromEmail"`
	HTMLContent string   `json:"htmlContent"`
	ListIDs     []uint64 `json:"listIds"`
	ExcludedIDs []uint64 `json:"excludedIds"`
}
