package models

import "time"

type Analytics struct {
	CampaignID uint64 `json:"campaignId"`
	TotalSent  int    `json:"totalSent"`
	Failed     int    `json:"failed"`
	Opened     int    `json:"opened"`
	Clicked    int    `json:"clicked"`
	// Rates are percentages rounded to one decimal.
	OpenRate  float64 `json:"openRate"`
	ClickRate float64 `json:"clickRate"`

	Opens      []ActivityEntry `json:"opens"`
	Clicks     []ActivityEntry `json:"clicks"`
	LinkClicks []LinkClicks    `json:"linkClicks"`
}

type ActivityEntry struct {
	TrackingID string    `json:"trackingId"`
	Email      string    `json:"email,omitempty"`
	URL        string    `json:"url,omitempty"`
	OccurredAt time.Time `json:"timestamp"`
}

type LinkClicks struct {
	URL    string `json:"url"`
	Clicks int    `json:"clicks"`
}
