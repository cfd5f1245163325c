package pgcampaign

import (
	"context"

	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/pkg/errors"
)

// AppendEvent is a plain insert. Counters are never stored, so concurrent
// writers cannot overwrite each other.
func (s *Storage) AppendEvent(ctx context.Context, e models.TrackingEvent) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO tracking_events (campaign_id, tracking_id, type, url, user_agent, ip, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, e.CampaignID, e.TrackingID, e.Type, e.URL, e.UserAgent, e.IP, e.OccurredAt.UTC())
	return errors.Wrap(err, "insert tracking event")
}

func (s *Storage) ListEvents(ctx context.Context, campaignID uint64) ([]*models.TrackingEvent, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, campaign_id, tracking_id, type, url, user_agent, ip, occurred_at
FROM tracking_events
WHERE campaign_id = $1
ORDER BY occurred_at ASC, id ASC
`, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.TrackingEvent
	for rows.Next() {
		var e models.TrackingEvent
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.TrackingID, &e.Type, &e.URL, &e.UserAgent, &e.IP, &e.OccurredAt); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) AppendDelivery(ctx context.Context, d models.DeliveryRecord) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO delivery_records (campaign_id, tracking_id, outcome, error, attempted_at)
VALUES ($1,$2,$3,$4,$5)
`, d.CampaignID, d.TrackingID, d.Outcome, d.Error, d.AttemptedAt.UTC())
	return errors.Wrap(err, "insert delivery record")
}

func (s *Storage) ListDeliveries(ctx context.Context, campaignID uint64) ([]*models.DeliveryRecord, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, campaign_id, tracking_id, outcome, error, attempted_at
FROM delivery_records
WHERE campaign_id = $1
ORDER BY attempted_at ASC, id ASC
`, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "select deliveries")
	}
	defer rows.Close()

	var out []*models.DeliveryRecord
	for rows.Next() {
		var d models.DeliveryRecord
		if err := rows.Scan(&d.ID, &d.CampaignID, &d.TrackingID, &d.Outcome, &d.Error, &d.AttemptedAt); err != nil {
			return nil, errors.Wrap(err, "scan delivery")
		}
		out = append(out, &d)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
