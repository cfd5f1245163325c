package dispatch

import (
	"testing"

	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/stretchr/testify/require"
)

func TestSelectNonOpeners(t *testing.T) {
	recips := []*models.Recipient{
		{ContactID: 1, TrackingID: "a"},
		{ContactID: 2, TrackingID: "b"},
		{ContactID: 3, TrackingID: "c"},
		{ContactID: 4, TrackingID: "d"},
	}
	deliveries := []*models.DeliveryRecord{
		{TrackingID: "a", Outcome: models.DeliveryOutcomeSent},
		{TrackingID: "b", Outcome: models.DeliveryOutcomeSent},
		{TrackingID: "c", Outcome: models.DeliveryOutcomeFailed},
		{TrackingID: "d", Outcome: models.DeliveryOutcomeFailed},
		{TrackingID: "d", Outcome: models.DeliveryOutcomeSent},
	}
	events := []*models.TrackingEvent{
		{TrackingID: "a", Type: models.EventTypeOpen},
		{TrackingID: "b", Type: models.EventTypeClick},
	}

	out := SelectNonOpeners(recips, deliveries, events)
	require.Len(t, out, 2)
	require.Equal(t, "b", out[0].TrackingID)
	require.Equal(t, "d", out[1].TrackingID)

	require.Empty(t, SelectNonOpeners(nil, nil, nil))
}
