package pgcampaign

import (
	"context"

	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/pkg/errors"
)

// ListMembers returns the current members of every existing list in listIDs.
// Deleted lists are absent from the map.
func (s *Storage) ListMembers(ctx context.Context, listIDs []uint64) (map[uint64][]models.Contact, error) {
	out := make(map[uint64][]models.Contact, len(listIDs))
	if len(listIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `
SELECT l.id, m.contact_id, m.email, m.name
FROM audience_lists l
LEFT JOIN audience_list_members m ON m.list_id = l.id
WHERE l.id = ANY($1)
ORDER BY l.id, m.contact_id
`, listIDs)
	if err != nil {
		return nil, errors.Wrap(err, "select list members")
	}
	defer rows.Close()

	for rows.Next() {
		var listID uint64
		var contactID *uint64
		var email, name *string
		if err := rows.Scan(&listID, &contactID, &email, &name); err != nil {
			return nil, errors.Wrap(err, "scan list member")
		}
		if _, ok := out[listID]; !ok {
			out[listID] = []models.Contact{}
		}
		if contactID == nil {
			continue
		}
		c := models.Contact{ContactID: *contactID}
		if email != nil {
			c.Email = *email
		}
		if name != nil {
			c.Name = *name
		}
		out[listID] = append(out[listID], c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// CreateList and AddListMember exist for fixtures; list CRUD lives in the CRM.
func (s *Storage) CreateList(ctx context.Context, name string) (uint64, error) {
	var id uint64
	err := s.db.QueryRow(ctx, `INSERT INTO audience_lists (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	return id, errors.Wrap(err, "insert list")
}

func (s *Storage) AddListMember(ctx context.Context, listID uint64, c models.Contact) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO audience_list_members (list_id, contact_id, email, name)
VALUES ($1,$2,$3,$4)
ON CONFLICT (list_id, contact_id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name
`, listID, c.ContactID, c.Email, c.Name)
	return errors.Wrap(err, "insert list member")
}
