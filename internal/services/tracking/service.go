// Package tracking records anonymous open and click signals. Every method is
// fail-open: callers always get something they can answer the mail client
// with, whatever happened to persistence.
package tracking

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/BearBump/CampaignBox/internal/apperrors"
	"github.com/BearBump/CampaignBox/internal/broker/messages"
	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/BearBump/CampaignBox/internal/tokens"
	"github.com/pkg/errors"
)

type Repository interface {
	GetRecipientByTrackingID(ctx context.Context, trackingID string) (*models.Recipient, error)
	AppendEvent(ctx context.Context, e models.TrackingEvent) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Invalidator drops derived views that a new event makes stale.
type Invalidator interface {
	Invalidate(ctx context.Context, campaignID uint64) error
}

// Hit is what the HTTP layer knows about one tracking request.
type Hit struct {
	CampaignID uint64
	TrackingID string
	UserAgent  string
	IP         string
}

type Service struct {
	repo        Repository
	producer    Producer
	topic       string
	invalidator Invalidator
	fallbackURL string
	now         func() time.Time
}

func New(repo Repository, fallbackURL string) *Service {
	return &Service{
		repo:        repo,
		fallbackURL: fallbackURL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithNotifier(p Producer, topic string) *Service {
	s.producer = p
	s.topic = topic
	return s
}

// WithInvalidator clears in-process derived views right after each append.
// The notifier stays the path for other processes.
func (s *Service) WithInvalidator(inv Invalidator) *Service {
	s.invalidator = inv
	return s
}

// RecordOpen stores an open event when the hit belongs to a known recipient.
func (s *Service) RecordOpen(ctx context.Context, h Hit) {
	s.record(ctx, h, models.EventTypeOpen, nil)
}

// RecordClick stores a click event and returns where to send the client.
// rawTarget is the already-decoded u query value.
func (s *Service) RecordClick(ctx context.Context, h Hit, rawTarget string) string {
	target, ok := RedirectTarget(rawTarget)
	if !ok {
		target = s.fallbackURL
	}
	var u *string
	if ok {
		u = &target
	}
	s.record(ctx, h, models.EventTypeClick, u)
	return target
}

func (s *Service) record(ctx context.Context, h Hit, kind string, u *string) {
	if err := s.append(ctx, h, kind, u); err != nil {
		slog.Warn("tracking event dropped",
			"kind", kind,
			"campaign_id", h.CampaignID,
			"tracking_id", h.TrackingID,
			"error", err.Error(),
		)
	}
}

func (s *Service) append(ctx context.Context, h Hit, kind string, u *string) error {
	if h.TrackingID == "" || tokens.IsTestID(h.TrackingID) {
		return errors.New("untracked id")
	}
	r, err := s.repo.GetRecipientByTrackingID(ctx, h.TrackingID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return errors.New("unknown tracking id")
		}
		return errors.Wrap(err, "lookup recipient")
	}
	if r.CampaignID != h.CampaignID {
		return errors.New("tracking id belongs to another campaign")
	}

	ev := models.TrackingEvent{
		CampaignID: h.CampaignID,
		TrackingID: h.TrackingID,
		Type:       kind,
		URL:        u,
		OccurredAt: s.now(),
		UserAgent:  h.UserAgent,
		IP:         h.IP,
	}
	if err := s.repo.AppendEvent(ctx, ev); err != nil {
		return errors.Wrap(err, "append event")
	}
	s.invalidate(ctx, ev.CampaignID)
	s.notify(ev)
	return nil
}

func (s *Service) invalidate(ctx context.Context, campaignID uint64) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, campaignID); err != nil {
		slog.Warn("invalidate analytics", "campaign_id", campaignID, "error", err.Error())
	}
}

// notify publishes in the background so the response never waits on Kafka.
func (s *Service) notify(ev models.TrackingEvent) {
	if s.producer == nil {
		return
	}
	msg := messages.CampaignActivity{
		CampaignID: ev.CampaignID,
		Kind:       ev.Type,
		TrackingID: ev.TrackingID,
		OccurredAt: ev.OccurredAt,
	}
	if ev.URL != nil {
		msg.URL = *ev.URL
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		key := []byte(strconv.FormatUint(ev.CampaignID, 10))
		if err := s.producer.Publish(ctx, s.topic, key, b); err != nil {
			slog.Warn("publish tracking activity", "campaign_id", ev.CampaignID, "error", err.Error())
		}
	}()
}

// RedirectTarget accepts only absolute http(s) URLs with a host and hands
// them back exactly as given.
func RedirectTarget(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return raw, true
}
