package tokens

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/BearBump/CampaignBox/internal/apperrors"
	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	byPair  map[string]*models.Recipient
	byToken map[string]struct{}
	inserts int
}

func newMemStore() *memStore {
	return &memStore{byPair: map[string]*models.Recipient{}, byToken: map[string]struct{}{}}
}

func pairKey(campaignID, contactID uint64) string {
	return fmt.Sprintf("%d|%d", campaignID, contactID)
}

func (s *memStore) GetRecipient(ctx context.Context, campaignID, contactID uint64) (*models.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byPair[pairKey(campaignID, contactID)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) InsertRecipient(ctx context.Context, r models.Recipient) (*models.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if existing, ok := s.byPair[pairKey(r.CampaignID, r.ContactID)]; ok {
		cp := *existing
		return &cp, nil
	}
	if _, ok := s.byToken[r.TrackingID]; ok {
		return nil, apperrors.ErrTokenCollision
	}
	s.byToken[r.TrackingID] = struct{}{}
	s.byPair[pairKey(r.CampaignID, r.ContactID)] = &r
	cp := r
	return &cp, nil
}

func TestIssue_SameValueOnResend(t *testing.T) {
	g := New(newMemStore())
	ctx := context.Background()
	c := models.Contact{ContactID: 7, Email: "a@example.com"}

	first, err := g.Issue(ctx, 1, c)
	require.NoError(t, err)
	second, err := g.Issue(ctx, 1, c)
	require.NoError(t, err)
	require.Equal(t, first.TrackingID, second.TrackingID)

	other, err := g.Issue(ctx, 2, c)
	require.NoError(t, err)
	require.NotEqual(t, first.TrackingID, other.TrackingID)
}

func TestIssue_RetriesOnCollision(t *testing.T) {
	st := newMemStore()
	st.byToken["dup"] = struct{}{}

	g := New(st)
	ids := []string{"dup", "dup", "fresh"}
	g.mint = func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}

	r, err := g.Issue(context.Background(), 1, models.Contact{ContactID: 2})
	require.NoError(t, err)
	require.Equal(t, "fresh", r.TrackingID)
	require.Equal(t, 3, st.inserts)
}

func TestIssue_GivesUpAfterMaxAttempts(t *testing.T) {
	st := newMemStore()
	st.byToken["dup"] = struct{}{}
	g := New(st)
	g.mint = func() (string, error) { return "dup", nil }

	_, err := g.Issue(context.Background(), 1, models.Contact{ContactID: 2})
	require.Error(t, err)
	require.Equal(t, maxMintAttempts, st.inserts)
}

func TestIssue_ConcurrentCallersAgree(t *testing.T) {
	g := New(newMemStore())
	var wg sync.WaitGroup
	got := make([]string, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := g.Issue(context.Background(), 9, models.Contact{ContactID: 3})
			if err == nil {
				got[i] = r.TrackingID
			}
		}(i)
	}
	wg.Wait()
	require.NotEmpty(t, got[0])
	for _, id := range got {
		require.Equal(t, got[0], id)
	}
}

func TestIssue_Validate(t *testing.T) {
	g := New(newMemStore())
	_, err := g.Issue(context.Background(), 0, models.Contact{ContactID: 1})
	require.Error(t, err)
	_, err = g.Issue(context.Background(), 1, models.Contact{})
	require.Error(t, err)
}

func TestNewID_ShapeAndUniqueness(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		id, err := NewID()
		require.NoError(t, err)
		require.Len(t, id, 32)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}

	tid, err := NewTestID()
	require.NoError(t, err)
	require.True(t, IsTestID(tid))
	require.False(t, IsTestID("abc"))
}
