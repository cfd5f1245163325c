package campaigns

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/BearBump/CampaignBox/internal/apperrors"
	"github.com/BearBump/CampaignBox/internal/content"
	"github.com/BearBump/CampaignBox/internal/models"
)

type Repository interface {
	CreateCampaign(ctx context.Context, in models.CampaignInput) (*models.Campaign, error)
	GetCampaign(ctx context.Context, id uint64) (*models.Campaign, error)
	UpdateCampaign(ctx context.Context, id uint64, in models.CampaignInput) (*models.Campaign, error)
	ScheduleCampaign(ctx context.Context, id uint64, at time.Time) (*models.Campaign, error)
}

type Service struct {
	repo    Repository
	baseURL string
	now     func() time.Time
}

func New(repo Repository, baseURL string) *Service {
	return &Service{repo: repo, baseURL: baseURL, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) Create(ctx context.Context, in models.CampaignInput) (*models.Campaign, error) {
	in, err := s.prepare(in)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateCampaign(ctx, in)
}

func (s *Service) Get(ctx context.Context, id uint64) (*models.Campaign, error) {
	return s.repo.GetCampaign(ctx, id)
}

func (s *Service) Update(ctx context.Context, id uint64, in models.CampaignInput) (*models.Campaign, error) {
	in, err := s.prepare(in)
	if err != nil {
		return nil, err
	}
	return s.repo.UpdateCampaign(ctx, id, in)
}

func (s *Service) Schedule(ctx context.Context, id uint64, at time.Time) (*models.Campaign, error) {
	if at.IsZero() {
		return nil, apperrors.Validation("scheduledAt is required")
	}
	if !at.After(s.now()) {
		return nil, apperrors.Validation("scheduledAt must be in the future")
	}
	return s.repo.ScheduleCampaign(ctx, id, at)
}

// prepare validates the input and absolutizes the HTML once, at save time.
func (s *Service) prepare(in models.CampaignInput) (models.CampaignInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Subject = strings.TrimSpace(in.Subject)
	in.FromName = strings.TrimSpace(in.FromName)
	in.FromEmail = strings.TrimSpace(in.FromEmail)

	if in.Name == "" {
		return in, apperrors.Validation("name is required")
	}
	if in.Subject == "" {
		return in, apperrors.Validation("subject is required")
	}
	if a, err := mail.ParseAddress(in.FromEmail); err != nil || a.Address != in.FromEmail {
		return in, apperrors.Validation("fromEmail is not a valid address")
	}
	in.HTMLContent = content.Absolutize(in.HTMLContent, s.baseURL)
	return in, nil
}
