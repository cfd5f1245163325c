package dispatch

import "github.com/BearBump/CampaignBox/internal/models"

// SelectNonOpeners keeps, in order, the recipients with at least one sent
// delivery record and no open event. The logs are the only input: nothing
// else remembers who was sent what.
func SelectNonOpeners(recipients []*models.Recipient, deliveries []*models.DeliveryRecord, events []*models.TrackingEvent) []*models.Recipient {
	delivered := make(map[string]struct{}, len(deliveries))
	for _, d := range deliveries {
		if d.Outcome == models.DeliveryOutcomeSent {
			delivered[d.TrackingID] = struct{}{}
		}
	}
	opened := make(map[string]struct{})
	for _, ev := range events {
		if ev.Type == models.EventTypeOpen {
			opened[ev.TrackingID] = struct{}{}
		}
	}

	out := make([]*models.Recipient, 0)
	for _, r := range recipients {
		if _, ok := delivered[r.TrackingID]; !ok {
			continue
		}
		if _, ok := opened[r.TrackingID]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}
