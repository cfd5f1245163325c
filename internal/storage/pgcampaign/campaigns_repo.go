package pgcampaign

import (
	"context"
	"time"

	"github.com/BearBump/CampaignBox/internal/apperrors"
	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const campaignColumns = `
  id, name, subject, from_name, from_email, html_content,
  status, scheduled_at, list_ids, excluded_ids, sent_at,
  created_at, updated_at`

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	if err := row.Scan(
		&c.ID, &c.Name, &c.Subject, &c.FromName, &c.FromEmail, &c.HTMLContent,
		&c.Status, &c.ScheduledAt, &c.ListIDs, &c.ExcludedIDs, &c.SentAt,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan campaign")
	}
	return &c, nil
}

func nonNil(ids []uint64) []uint64 {
	if ids == nil {
		return []uint64{}
	}
	return ids
}

func (s *Storage) CreateCampaign(ctx context.Context, in models.CampaignInput) (*models.Campaign, error) {
	now := time.Now().UTC()
	return scanCampaign(s.db.QueryRow(ctx, `
INSERT INTO campaigns (
  name, subject, from_name, from_email, html_content,
  status, list_ids, excluded_ids, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
RETURNING`+campaignColumns,
		in.Name, in.Subject, in.FromName, in.FromEmail, in.HTMLContent,
		models.CampaignStatusDraft, nonNil(in.ListIDs), nonNil(in.ExcludedIDs), now))
}

func (s *Storage) GetCampaign(ctx context.Context, id uint64) (*models.Campaign, error) {
	return scanCampaign(s.db.QueryRow(ctx, `SELECT`+campaignColumns+` FROM campaigns WHERE id = $1`, id))
}

// UpdateCampaign overwrites the editable fields while the campaign has not
// started sending.
func (s *Storage) UpdateCampaign(ctx context.Context, id uint64, in models.CampaignInput) (*models.Campaign, error) {
	c, err := scanCampaign(s.db.QueryRow(ctx, `
UPDATE campaigns
SET
  name = $2, subject = $3, from_name = $4, from_email = $5, html_content = $6,
  list_ids = $7, excluded_ids = $8, updated_at = now()
WHERE id = $1 AND status = ANY($9)
RETURNING`+campaignColumns,
		id, in.Name, in.Subject, in.FromName, in.FromEmail, in.HTMLContent,
		nonNil(in.ListIDs), nonNil(in.ExcludedIDs),
		[]string{models.CampaignStatusDraft, models.CampaignStatusScheduled}))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, s.missOrConflict(ctx, id)
	}
	return c, err
}

func (s *Storage) ScheduleCampaign(ctx context.Context, id uint64, at time.Time) (*models.Campaign, error) {
	c, err := scanCampaign(s.db.QueryRow(ctx, `
UPDATE campaigns
SET status = $2, scheduled_at = $3, updated_at = now()
WHERE id = $1 AND status = ANY($4)
RETURNING`+campaignColumns,
		id, models.CampaignStatusScheduled, at.UTC(),
		[]string{models.CampaignStatusDraft, models.CampaignStatusScheduled}))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, s.missOrConflict(ctx, id)
	}
	return c, err
}

// BeginDispatch atomically moves the campaign to sending if its current
// status is one of from. This conditional update is the exclusive-start
// guard: of two concurrent callers only one gets the row back. A non-nil
// listIDs replaces the stored audience selection in the same statement.
func (s *Storage) BeginDispatch(ctx context.Context, id uint64, from []string, listIDs []uint64) (*models.Campaign, error) {
	c, err := scanCampaign(s.db.QueryRow(ctx, `
UPDATE campaigns
SET
  status = $2,
  list_ids = COALESCE($3, list_ids),
  updated_at = now()
WHERE id = $1 AND status = ANY($4)
RETURNING`+campaignColumns,
		id, models.CampaignStatusSending, listIDs, from))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, s.missOrConflict(ctx, id)
	}
	return c, err
}

// CompleteDispatch ends a run. sent_at keeps the time of the first run so
// resends do not move it.
func (s *Storage) CompleteDispatch(ctx context.Context, id uint64, sentAt time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE campaigns
SET status = $2, sent_at = COALESCE(sent_at, $3), updated_at = now()
WHERE id = $1 AND status = $4
`, id, models.CampaignStatusSent, sentAt.UTC(), models.CampaignStatusSending)
	return errors.Wrap(err, "complete dispatch")
}

// ListDueCampaigns returns scheduled campaigns whose time has come.
func (s *Storage) ListDueCampaigns(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	rows, err := s.db.Query(ctx, `
SELECT id FROM campaigns
WHERE status = $1 AND scheduled_at <= $2
ORDER BY scheduled_at ASC
LIMIT $3
`, models.CampaignStatusScheduled, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due campaigns")
	}
	defer rows.Close()

	var out []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan due campaign")
		}
		out = append(out, id)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) missOrConflict(ctx context.Context, id uint64) error {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM campaigns WHERE id = $1)`, id).Scan(&exists); err != nil {
		return errors.Wrap(err, "check campaign")
	}
	if !exists {
		return apperrors.ErrNotFound
	}
	return apperrors.ErrConflict
}
