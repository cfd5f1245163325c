package audience

import (
	"context"
	"errors"
	"testing"

	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	lists map[uint64][]models.Contact
	err   error
	in    []uint64
}

func (s *fakeStore) ListMembers(ctx context.Context, listIDs []uint64) (map[uint64][]models.Contact, error) {
	s.in = listIDs
	if s.err != nil {
		return nil, s.err
	}
	out := map[uint64][]models.Contact{}
	for _, id := range listIDs {
		if m, ok := s.lists[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func TestResolve_DedupByNormalizedEmail(t *testing.T) {
	snap := map[uint64][]models.Contact{
		1: {{ContactID: 10, Email: "Ann@Example.com ", Name: "Ann"}, {ContactID: 11, Email: "bob@example.com"}},
		2: {{ContactID: 12, Email: "ann@example.com"}, {ContactID: 13, Email: "cid@example.com"}},
	}
	got := Resolve([]uint64{1, 2}, nil, snap)
	require.Equal(t, []models.Contact{
		{ContactID: 10, Email: "ann@example.com", Name: "Ann"},
		{ContactID: 11, Email: "bob@example.com"},
		{ContactID: 13, Email: "cid@example.com"},
	}, got)
}

func TestResolve_ExclusionsByIDAndSharedEmail(t *testing.T) {
	snap := map[uint64][]models.Contact{
		1: {{ContactID: 10, Email: "ann@example.com"}, {ContactID: 11, Email: "bob@example.com"}},
		2: {{ContactID: 12, Email: "ANN@example.com"}},
	}
	got := Resolve([]uint64{1, 2}, []uint64{12}, snap)
	require.Equal(t, []models.Contact{{ContactID: 11, Email: "bob@example.com"}}, got)
}

func TestResolve_SkipsInvalidEmails(t *testing.T) {
	snap := map[uint64][]models.Contact{1: {{ContactID: 1, Email: ""}, {ContactID: 2, Email: "nope"}}}
	require.Empty(t, Resolve([]uint64{1}, nil, snap))
}

func TestResolver_MissingListIgnored(t *testing.T) {
	st := &fakeStore{lists: map[uint64][]models.Contact{1: {{ContactID: 1, Email: "a@example.com"}}}}
	got, err := New(st).Resolve(context.Background(), []uint64{1, 99}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, []uint64{1, 99}, st.in)
}

func TestResolver_NoListsNoStoreCall(t *testing.T) {
	st := &fakeStore{}
	got, err := New(st).Resolve(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Nil(t, st.in)
}

func TestResolver_StoreError(t *testing.T) {
	st := &fakeStore{err: errors.New("db down")}
	_, err := New(st).Resolve(context.Background(), []uint64{1}, nil)
	require.Error(t, err)
}

func TestResolve_DoesNotMutateSnapshot(t *testing.T) {
	snap := map[uint64][]models.Contact{1: {{ContactID: 1, Email: "A@Example.com"}}}
	_ = Resolve([]uint64{1}, nil, snap)
	require.Equal(t, "A@Example.com", snap[1][0].Email)
}
