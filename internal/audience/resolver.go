// Package audience computes the send set of a campaign from its lists.
package audience

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/pkg/errors"
)

// ListStore is the external audience store. Lists that no longer exist are
// simply absent from the returned map.
type ListStore interface {
	ListMembers(ctx context.Context, listIDs []uint64) (map[uint64][]models.Contact, error)
}

type Resolver struct {
	store ListStore
}

func New(store ListStore) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) Resolve(ctx context.Context, listIDs, excludedIDs []uint64) ([]models.Contact, error) {
	if len(listIDs) == 0 {
		return []models.Contact{}, nil
	}
	snapshot, err := r.store.ListMembers(ctx, listIDs)
	if err != nil {
		return nil, errors.Wrap(err, "list members")
	}
	for _, id := range listIDs {
		if _, ok := snapshot[id]; !ok {
			slog.Warn("audience list not found, skipping", "list_id", id)
		}
	}
	return Resolve(listIDs, excludedIDs, snapshot), nil
}

// Resolve flattens the selected lists in order, keeps the first contact for
// each normalized email and drops excluded contacts. An excluded contact
// also excludes every other contact sharing its email.
func Resolve(listIDs, excludedIDs []uint64, snapshot map[uint64][]models.Contact) []models.Contact {
	excluded := make(map[uint64]struct{}, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = struct{}{}
	}
	excludedEmails := make(map[string]struct{})
	for _, id := range listIDs {
		for _, c := range snapshot[id] {
			if _, ok := excluded[c.ContactID]; ok {
				excludedEmails[NormalizeEmail(c.Email)] = struct{}{}
			}
		}
	}

	out := make([]models.Contact, 0)
	seen := make(map[string]struct{})
	for _, id := range listIDs {
		for _, c := range snapshot[id] {
			email := NormalizeEmail(c.Email)
			if !strings.Contains(email, "@") {
				continue
			}
			if _, ok := excludedEmails[email]; ok {
				continue
			}
			if _, ok := seen[email]; ok {
				continue
			}
			seen[email] = struct{}{}
			c.Email = email
			out = append(out, c)
		}
	}
	return out
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
