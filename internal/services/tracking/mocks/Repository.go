package mocks

import (
	"context"

	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockRepository is a testify mock of tracking.Repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetRecipientByTrackingID(ctx context.Context, trackingID string) (*models.Recipient, error) {
	args := m.Called(ctx, trackingID)
	var r *models.Recipient
	if v := args.Get(0); v != nil {
		r = v.(*models.Recipient)
	}
	return r, args.Error(1)
}

func (m *MockRepository) AppendEvent(ctx context.Context, e models.TrackingEvent) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}
