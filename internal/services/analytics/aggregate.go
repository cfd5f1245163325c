package analytics

import (
	"math"
	"sort"

	"github.com/BearBump/CampaignBox/internal/models"
)

// Aggregate derives the analytics view from the raw logs. events are
// expected in chronological order, as the store returns them.
func Aggregate(campaignID uint64, deliveries []*models.DeliveryRecord, events []*models.TrackingEvent, recipients []*models.Recipient) *models.Analytics {
	emails := make(map[string]string, len(recipients))
	for _, r := range recipients {
		emails[r.TrackingID] = r.Email
	}

	sent := map[string]struct{}{}
	failed := map[string]struct{}{}
	for _, d := range deliveries {
		if d.Outcome == models.DeliveryOutcomeSent {
			sent[d.TrackingID] = struct{}{}
		} else {
			failed[d.TrackingID] = struct{}{}
		}
	}
	// A failed attempt later retried successfully counts only as sent.
	for id := range sent {
		delete(failed, id)
	}

	out := &models.Analytics{
		CampaignID: campaignID,
		TotalSent:  len(sent),
		Failed:     len(failed),
		Opens:      []models.ActivityEntry{},
		Clicks:     []models.ActivityEntry{},
		LinkClicks: []models.LinkClicks{},
	}

	opened := map[string]struct{}{}
	clicked := map[string]struct{}{}
	perURL := map[string]int{}
	for _, ev := range events {
		entry := models.ActivityEntry{
			TrackingID: ev.TrackingID,
			Email:      emails[ev.TrackingID],
			OccurredAt: ev.OccurredAt,
		}
		switch ev.Type {
		case models.EventTypeOpen:
			opened[ev.TrackingID] = struct{}{}
			out.Opens = append(out.Opens, entry)
		case models.EventTypeClick:
			clicked[ev.TrackingID] = struct{}{}
			if ev.URL != nil {
				entry.URL = *ev.URL
				perURL[*ev.URL]++
			}
			out.Clicks = append(out.Clicks, entry)
		}
	}
	out.Opened = len(opened)
	out.Clicked = len(clicked)
	out.OpenRate = Rate(out.Opened, out.TotalSent)
	out.ClickRate = Rate(out.Clicked, out.TotalSent)

	for u, n := range perURL {
		out.LinkClicks = append(out.LinkClicks, models.LinkClicks{URL: u, Clicks: n})
	}
	sort.Slice(out.LinkClicks, func(i, j int) bool {
		a, b := out.LinkClicks[i], out.LinkClicks[j]
		if a.Clicks != b.Clicks {
			return a.Clicks > b.Clicks
		}
		return a.URL < b.URL
	})
	return out
}

// Rate is part/total as a percentage with one decimal, 0 when total is 0.
func Rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}
