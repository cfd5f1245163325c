// Package tokens issues per-recipient tracking identities.
package tokens

import (
	"context"
	"strings"

	"github.com/BearBump/CampaignBox/internal/apperrors"
	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TestPrefix marks synthetic ids used by test sends. Such ids are never
// persisted as recipients and the tracking endpoint ignores them.
const TestPrefix = "test-"

const maxMintAttempts = 5

type Store interface {
	GetRecipient(ctx context.Context, campaignID, contactID uint64) (*models.Recipient, error)
	// InsertRecipient stores the mapping unless the (campaign, contact) pair
	// already has one, in which case it returns the existing record. A clash
	// on the tracking id itself is reported as apperrors.ErrTokenCollision.
	InsertRecipient(ctx context.Context, r models.Recipient) (*models.Recipient, error)
}

type Generator struct {
	store Store
	mint  func() (string, error)
}

func New(store Store) *Generator {
	return &Generator{store: store, mint: NewID}
}

// NewID returns 32 hex chars carrying 122 random bits (UUIDv4).
func NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", errors.Wrap(err, "uuid")
	}
	return strings.ReplaceAll(u.String(), "-", ""), nil
}

// NewTestID returns a synthetic id for test sends.
func NewTestID() (string, error) {
	id, err := NewID()
	if err != nil {
		return "", err
	}
	return TestPrefix + id, nil
}

func IsTestID(trackingID string) bool {
	return strings.HasPrefix(trackingID, TestPrefix)
}

// Issue returns the recipient record for the pair, creating it with a fresh
// tracking id on first use. The id never changes afterwards.
func (g *Generator) Issue(ctx context.Context, campaignID uint64, c models.Contact) (*models.Recipient, error) {
	if campaignID == 0 || c.ContactID == 0 {
		return nil, errors.New("campaignId and contactId are required")
	}
	existing, err := g.store.GetRecipient(ctx, campaignID, c.ContactID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, errors.Wrap(err, "get recipient")
	}
	if existing != nil {
		return existing, nil
	}

	for i := 0; i < maxMintAttempts; i++ {
		id, err := g.mint()
		if err != nil {
			return nil, err
		}
		r, err := g.store.InsertRecipient(ctx, models.Recipient{
			CampaignID: campaignID,
			ContactID:  c.ContactID,
			Email:      c.Email,
			Name:       c.Name,
			TrackingID: id,
		})
		if errors.Is(err, apperrors.ErrTokenCollision) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "insert recipient")
		}
		return r, nil
	}
	return nil, errors.Errorf("could not mint a unique tracking id after %d attempts", maxMintAttempts)
}
