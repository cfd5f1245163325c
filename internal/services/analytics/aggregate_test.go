package analytics

import (
	"testing"
	"time"

	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestAggregate_OneRecipientTwoOpensTwoClicks(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	deliveries := []*models.DeliveryRecord{{TrackingID: "a", Outcome: models.DeliveryOutcomeSent}}
	events := []*models.TrackingEvent{
		{TrackingID: "a", Type: models.EventTypeOpen, OccurredAt: t0},
		{TrackingID: "a", Type: models.EventTypeOpen, OccurredAt: t0.Add(time.Minute)},
		{TrackingID: "a", Type: models.EventTypeClick, URL: strp("https://x.example/1"), OccurredAt: t0.Add(2 * time.Minute)},
		{TrackingID: "a", Type: models.EventTypeClick, URL: strp("https://x.example/2"), OccurredAt: t0.Add(3 * time.Minute)},
	}
	recips := []*models.Recipient{{TrackingID: "a", Email: "a@example.com"}}

	a := Aggregate(1, deliveries, events, recips)
	require.Equal(t, 1, a.TotalSent)
	require.Equal(t, 1, a.Opened)
	require.Equal(t, 1, a.Clicked)
	require.Len(t, a.Opens, 2)
	require.Len(t, a.Clicks, 2)
	require.NotEqual(t, a.Clicks[0].URL, a.Clicks[1].URL)
	require.Equal(t, "a@example.com", a.Clicks[0].Email)
	require.Equal(t, 100.0, a.OpenRate)
	require.Equal(t, []models.LinkClicks{
		{URL: "https://x.example/1", Clicks: 1},
		{URL: "https://x.example/2", Clicks: 1},
	}, a.LinkClicks)
}

func TestAggregate_Empty(t *testing.T) {
	a := Aggregate(1, nil, nil, nil)
	require.Equal(t, 0, a.TotalSent)
	require.Equal(t, 0.0, a.OpenRate)
	require.Equal(t, 0.0, a.ClickRate)
	require.NotNil(t, a.Opens)
	require.NotNil(t, a.LinkClicks)
}

func TestAggregate_CountsDistinctDelivered(t *testing.T) {
	deliveries := []*models.DeliveryRecord{
		{TrackingID: "a", Outcome: models.DeliveryOutcomeSent},
		{TrackingID: "a", Outcome: models.DeliveryOutcomeSent},
		{TrackingID: "b", Outcome: models.DeliveryOutcomeFailed},
		{TrackingID: "b", Outcome: models.DeliveryOutcomeSent},
		{TrackingID: "c", Outcome: models.DeliveryOutcomeFailed},
	}
	events := []*models.TrackingEvent{
		{TrackingID: "a", Type: models.EventTypeOpen},
		{TrackingID: "a", Type: models.EventTypeClick, URL: strp("https://x.example/1")},
		{TrackingID: "b", Type: models.EventTypeClick, URL: strp("https://x.example/1")},
		{TrackingID: "b", Type: models.EventTypeClick, URL: strp("https://x.example/0")},
	}

	a := Aggregate(1, deliveries, events, nil)
	require.Equal(t, 2, a.TotalSent)
	require.Equal(t, 1, a.Failed)
	require.Equal(t, 1, a.Opened)
	require.Equal(t, 2, a.Clicked)
	require.Equal(t, 50.0, a.OpenRate)
	require.Equal(t, 100.0, a.ClickRate)
	require.Equal(t, "https://x.example/1", a.LinkClicks[0].URL)
	require.Equal(t, 2, a.LinkClicks[0].Clicks)
}

func TestRate(t *testing.T) {
	require.Equal(t, 33.3, Rate(1, 3))
	require.Equal(t, 66.7, Rate(2, 3))
	require.Equal(t, 0.0, Rate(5, 0))
}
