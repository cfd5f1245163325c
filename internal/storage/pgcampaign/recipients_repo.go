package pgcampaign

import (
	"context"
	"time"

	"github.com/BearBump/CampaignBox/internal/apperrors"
	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

const recipientColumns = `campaign_id, contact_id, email, name, tracking_id, created_at`

func scanRecipient(row pgx.Row) (*models.Recipient, error) {
	var r models.Recipient
	if err := row.Scan(&r.CampaignID, &r.ContactID, &r.Email, &r.Name, &r.TrackingID, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan recipient")
	}
	return &r, nil
}

func (s *Storage) GetRecipient(ctx context.Context, campaignID, contactID uint64) (*models.Recipient, error) {
	return scanRecipient(s.db.QueryRow(ctx, `
SELECT `+recipientColumns+`
FROM recipients
WHERE campaign_id = $1 AND contact_id = $2
`, campaignID, contactID))
}

func (s *Storage) GetRecipientByTrackingID(ctx context.Context, trackingID string) (*models.Recipient, error) {
	return scanRecipient(s.db.QueryRow(ctx, `
SELECT `+recipientColumns+`
FROM recipients
WHERE tracking_id = $1
`, trackingID))
}

// InsertRecipient keeps the first tracking id ever stored for a pair: when
// the pair exists already the stored row is returned untouched.
func (s *Storage) InsertRecipient(ctx context.Context, r models.Recipient) (*models.Recipient, error) {
	out, err := scanRecipient(s.db.QueryRow(ctx, `
INSERT INTO recipients (campaign_id, contact_id, email, name, tracking_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (campaign_id, contact_id) DO NOTHING
RETURNING `+recipientColumns,
		r.CampaignID, r.ContactID, r.Email, r.Name, r.TrackingID, time.Now().UTC()))
	if err == nil {
		return out, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, apperrors.ErrTokenCollision
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		// lost the race for this pair; the winner's row is authoritative
		return s.GetRecipient(ctx, r.CampaignID, r.ContactID)
	}
	return nil, errors.Wrap(err, "insert recipient")
}

func (s *Storage) ListRecipients(ctx context.Context, campaignID uint64) ([]*models.Recipient, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+recipientColumns+`
FROM recipients
WHERE campaign_id = $1
ORDER BY created_at, contact_id
`, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "select recipients")
	}
	defer rows.Close()

	var out []*models.Recipient
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
