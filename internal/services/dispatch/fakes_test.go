package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BearBump/CampaignBox/internal/apperrors"
	"github.com/BearBump/CampaignBox/internal/integrations/mailer"
	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/pkg/errors"
)

// memRepo is an in-memory Repository that also satisfies tokens.Store.
type memRepo struct {
	mu         sync.Mutex
	campaigns  map[uint64]*models.Campaign
	recipients []*models.Recipient
	deliveries []*models.DeliveryRecord
	events     []*models.TrackingEvent
	completed  int
}

func newMemRepo(cs ...*models.Campaign) *memRepo {
	r := &memRepo{campaigns: map[uint64]*models.Campaign{}}
	for _, c := range cs {
		r.campaigns[c.ID] = c
	}
	return r
}

func (r *memRepo) GetCampaign(ctx context.Context, id uint64) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memRepo) BeginDispatch(ctx context.Context, id uint64, from []string, listIDs []uint64) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	for _, s := range from {
		if c.Status == s {
			c.Status = models.CampaignStatusSending
			if listIDs != nil {
				c.ListIDs = listIDs
			}
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperrors.ErrConflict
}

func (r *memRepo) CompleteDispatch(ctx context.Context, id uint64, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.campaigns[id]
	c.Status = models.CampaignStatusSent
	if c.SentAt == nil {
		c.SentAt = &sentAt
	}
	r.completed++
	return nil
}

func (r *memRepo) GetRecipient(ctx context.Context, campaignID, contactID uint64) (*models.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rc := range r.recipients {
		if rc.CampaignID == campaignID && rc.ContactID == contactID {
			return rc, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memRepo) InsertRecipient(ctx context.Context, in models.Recipient) (*models.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rc := range r.recipients {
		if rc.CampaignID == in.CampaignID && rc.ContactID == in.ContactID {
			return rc, nil
		}
	}
	rc := in
	r.recipients = append(r.recipients, &rc)
	return &rc, nil
}

func (r *memRepo) ListRecipients(ctx context.Context, campaignID uint64) ([]*models.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Recipient
	for _, rc := range r.recipients {
		if rc.CampaignID == campaignID {
			out = append(out, rc)
		}
	}
	return out, nil
}

func (r *memRepo) ListDeliveries(ctx context.Context, campaignID uint64) ([]*models.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.DeliveryRecord(nil), r.deliveries...), nil
}

func (r *memRepo) ListEvents(ctx context.Context, campaignID uint64) ([]*models.TrackingEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.TrackingEvent(nil), r.events...), nil
}

func (r *memRepo) AppendDelivery(ctx context.Context, d models.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, &d)
	return nil
}

func (r *memRepo) deliveriesFor(trackingID string) []*models.DeliveryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.DeliveryRecord
	for _, d := range r.deliveries {
		if d.TrackingID == trackingID {
			out = append(out, d)
		}
	}
	return out
}

type fakeResolver struct {
	contacts []models.Contact
	err      error
	gotLists []uint64
}

func (f *fakeResolver) Resolve(ctx context.Context, listIDs, excludedIDs []uint64) ([]models.Contact, error) {
	f.gotLists = listIDs
	return f.contacts, f.err
}

type fakeProducer struct {
	mu    sync.Mutex
	topic string
	value []byte
	calls int
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.topic, p.value = topic, value
	return nil
}

type fakeRL struct {
	mu    sync.Mutex
	deny  int
	err   error
	calls int
}

func (r *fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return false, 0, r.err
	}
	if r.deny > 0 {
		r.deny--
		return false, limit + 1, nil
	}
	return true, 1, nil
}

// stuckMailer never returns for the listed addresses, ignoring its context.
type stuckMailer struct {
	mailer.Client
	stuck   map[string]struct{}
	release chan struct{}
}

func (m *stuckMailer) Send(ctx context.Context, msg mailer.Message) error {
	if _, ok := m.stuck[msg.To]; ok {
		<-m.release
		return errors.New("released")
	}
	return m.Client.Send(ctx, msg)
}

func contacts(n int) []models.Contact {
	out := make([]models.Contact, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, models.Contact{ContactID: uint64(i), Email: fmt.Sprintf("user%d@example.com", i), Name: fmt.Sprintf("User %d", i)})
	}
	return out
}

type fakeInvalidator struct {
	mu  sync.Mutex
	ids []uint64
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, campaignID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, campaignID)
	return nil
}
