package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Organization struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	MaxTemplates int    `json:"max_templates"`
}

type Membership struct {
	OrgID  string `json:"org_id"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (r *Repo) InsertOrganization(ctx context.Context, o *Organization) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	_, err := r.exec(ctx,
		`INSERT INTO _organizations (id, name, slug, max_templates) VALUES ($1, $2, $3, $4)`,
		o.ID, o.Name, o.Slug, o.MaxTemplates)
	return err
}

func (r *Repo) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	var o Organization
	err := r.queryRow(ctx, `SELECT id, name, slug, max_templates FROM _organizations WHERE id = $1`, id).
		Scan(&o.ID, &o.Name, &o.Slug, &o.MaxTemplates)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organization %s: %w", id, err)
	}
	return &o, nil
}

// UpsertMembership adds the user to the organization or changes their role.
func (r *Repo) UpsertMembership(ctx context.Context, m Membership) error {
	_, err := r.exec(ctx,
		`INSERT INTO _memberships (org_id, user_id, role) VALUES ($1, $2, $3)
		 ON CONFLICT (org_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		m.OrgID, m.UserID, m.Role)
	return err
}

func (r *Repo) DeleteMembership(ctx context.Context, orgID, userID string) error {
	n, err := r.exec(ctx, `DELETE FROM _memberships WHERE org_id = $1 AND user_id = $2`, orgID, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MembershipRole returns the user's role in the organization, or
// ErrNotFound when the user is not a member.
func (r *Repo) MembershipRole(ctx context.Context, orgID, userID string) (string, error) {
	var role string
	err := r.queryRow(ctx, `SELECT role FROM _memberships WHERE org_id = $1 AND user_id = $2`, orgID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get membership: %w", err)
	}
	return role, nil
}

func (r *Repo) ListMemberships(ctx context.Context, orgID string) ([]Membership, error) {
	rows, err := r.query(ctx, `SELECT org_id, user_id, role FROM _memberships WHERE org_id = $1 ORDER BY user_id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.Role); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
