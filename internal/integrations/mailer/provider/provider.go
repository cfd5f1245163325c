// Package provider picks the mail transport for a process.
package provider

import (
	"github.com/BearBump/CampaignBox/internal/integrations/mailer"
	"github.com/BearBump/CampaignBox/internal/integrations/mailer/fake"
	"github.com/BearBump/CampaignBox/internal/integrations/mailer/httpmail"
)

// New returns the HTTP relay client, or the in-memory transport when no
// relay is configured.
func New(baseURL, apiKey string) mailer.Client {
	if baseURL == "" {
		return fake.New()
	}
	return httpmail.New(baseURL, apiKey)
}
