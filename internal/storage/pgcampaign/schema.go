package pgcampaign

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS campaigns (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  subject TEXT NOT NULL DEFAULT '',
  from_name TEXT NOT NULL DEFAULT '',
  from_email TEXT NOT NULL DEFAULT '',
  html_content TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  scheduled_at TIMESTAMPTZ NULL,
  list_ids BIGINT[] NOT NULL DEFAULT '{}',
  excluded_ids BIGINT[] NOT NULL DEFAULT '{}',
  sent_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_campaigns_due ON campaigns(scheduled_at) WHERE status = 'scheduled'`,
		// Audience lists are owned by the CRM; the tables are created here so
		// the service can run standalone.
		`
CREATE TABLE IF NOT EXISTS audience_lists (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS audience_list_members (
  list_id BIGINT NOT NULL REFERENCES audience_lists(id) ON DELETE CASCADE,
  contact_id BIGINT NOT NULL,
  email TEXT NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (list_id, contact_id)
)`,
		`
CREATE TABLE IF NOT EXISTS recipients (
  campaign_id BIGINT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
  contact_id BIGINT NOT NULL,
  email TEXT NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  tracking_id TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (campaign_id, contact_id)
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_recipients_tracking_id ON recipients(tracking_id)`,
		`
CREATE TABLE IF NOT EXISTS delivery_records (
  id BIGSERIAL PRIMARY KEY,
  campaign_id BIGINT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
  tracking_id TEXT NOT NULL,
  outcome TEXT NOT NULL,
  error TEXT NULL,
  attempted_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_records_campaign ON delivery_records(campaign_id, attempted_at)`,
		`
CREATE TABLE IF NOT EXISTS tracking_events (
  id BIGSERIAL PRIMARY KEY,
  campaign_id BIGINT NOT NULL,
  tracking_id TEXT NOT NULL,
  type TEXT NOT NULL,
  url TEXT NULL,
  user_agent TEXT NOT NULL DEFAULT '',
  ip TEXT NOT NULL DEFAULT '',
  occurred_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_events_campaign ON tracking_events(campaign_id, occurred_at)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
