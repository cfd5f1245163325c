package mocks

import (
	"context"

	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockRepository is a testify mock of analytics.Repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetCampaign(ctx context.Context, id uint64) (*models.Campaign, error) {
	args := m.Called(ctx, id)
	var c *models.Campaign
	if v := args.Get(0); v != nil {
		c = v.(*models.Campaign)
	}
	return c, args.Error(1)
}

func (m *MockRepository) ListDeliveries(ctx context.Context, campaignID uint64) ([]*models.DeliveryRecord, error) {
	args := m.Called(ctx, campaignID)
	var out []*models.DeliveryRecord
	if v := args.Get(0); v != nil {
		out = v.([]*models.DeliveryRecord)
	}
	return out, args.Error(1)
}

func (m *MockRepository) ListEvents(ctx context.Context, campaignID uint64) ([]*models.TrackingEvent, error) {
	args := m.Called(ctx, campaignID)
	var out []*models.TrackingEvent
	if v := args.Get(0); v != nil {
		out = v.([]*models.TrackingEvent)
	}
	return out, args.Error(1)
}

func (m *MockRepository) ListRecipients(ctx context.Context, campaignID uint64) ([]*models.Recipient, error) {
	args := m.Called(ctx, campaignID)
	var out []*models.Recipient
	if v := args.Get(0); v != nil {
		out = v.([]*models.Recipient)
	}
	return out, args.Error(1)
}
