package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/CampaignBox/internal/cache"
	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	GetCampaign(ctx context.Context, id uint64) (*models.Campaign, error)
	ListDeliveries(ctx context.Context, campaignID uint64) ([]*models.DeliveryRecord, error)
	ListEvents(ctx context.Context, campaignID uint64) ([]*models.TrackingEvent, error)
	ListRecipients(ctx context.Context, campaignID uint64) ([]*models.Recipient, error)
}

type Service struct {
	repo  Repository
	cache cache.BytesCache
	ttl   time.Duration

	// gens counts invalidations per campaign. A computed view is only kept
	// when no invalidation happened while it was being built.
	mu   sync.Mutex
	gens map[uint64]uint64
}

// New builds the service. A nil cache or a ttl <= 0 turns caching off.
func New(repo Repository, c cache.BytesCache, ttl time.Duration) *Service {
	return &Service{repo: repo, cache: c, ttl: ttl, gens: make(map[uint64]uint64)}
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.ttl > 0
}

func (s *Service) Get(ctx context.Context, campaignID uint64) (*models.Analytics, error) {
	gen := s.generation(campaignID)
	if s.cacheEnabled() {
		if b, ok, err := s.cache.Get(ctx, cacheKey(campaignID)); err == nil && ok {
			var a models.Analytics
			if json.Unmarshal(b, &a) == nil {
				return &a, nil
			}
		}
	}

	if _, err := s.repo.GetCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	deliveries, err := s.repo.ListDeliveries(ctx, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "list deliveries")
	}
	events, err := s.repo.ListEvents(ctx, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	recipients, err := s.repo.ListRecipients(ctx, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "list recipients")
	}

	a := Aggregate(campaignID, deliveries, events, recipients)
	if s.cacheEnabled() {
		s.store(ctx, campaignID, gen, a)
	}
	return a, nil
}

func (s *Service) store(ctx context.Context, campaignID, gen uint64, a *models.Analytics) {
	if s.generation(campaignID) != gen {
		return
	}
	b, _ := json.Marshal(a)
	if err := s.cache.Set(ctx, cacheKey(campaignID), b, s.ttl); err != nil {
		slog.Warn("cache analytics", "campaign_id", campaignID, "error", err.Error())
		return
	}
	// An invalidation that slipped in between the check and the write.
	if s.generation(campaignID) != gen {
		if err := s.cache.Delete(ctx, cacheKey(campaignID)); err != nil {
			slog.Warn("drop stale analytics", "campaign_id", campaignID, "error", err.Error())
		}
	}
}

// Invalidate drops the cached view after new activity.
func (s *Service) Invalidate(ctx context.Context, campaignID uint64) error {
	if !s.cacheEnabled() {
		return nil
	}
	s.mu.Lock()
	s.gens[campaignID]++
	s.mu.Unlock()
	return s.cache.Delete(ctx, cacheKey(campaignID))
}

func (s *Service) generation(campaignID uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[campaignID]
}

func cacheKey(id uint64) string {
	return fmt.Sprintf("campaign:%d:analytics", id)
}
