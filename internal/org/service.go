// Package org manages organizations and their memberships.
package org

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"lexform-backend/internal/engine"
	"lexform-backend/internal/instrument"
	"lexform-backend/internal/metadata"
	"lexform-backend/internal/store"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type Service struct {
	store *store.Store
	roles *roleCache
}

// NewService returns a membership service whose role lookups are cached
// for ttl. A zero ttl disables caching; now defaults to time.Now.
func NewService(s *store.Store, ttl time.Duration, now func() time.Time) *Service {
	return &Service{store: s, roles: newRoleCache(ttl, now)}
}

// Role returns userID's role in orgID, or "" when the user is not a member.
func (s *Service) Role(ctx context.Context, orgID, userID string) (string, error) {
	if orgID == "" || userID == "" {
		return "", nil
	}
	if role, ok := s.roles.get(orgID, userID); ok {
		return role, nil
	}
	role, err := s.store.Repo().MembershipRole(ctx, orgID, userID)
	if errors.Is(err, store.ErrNotFound) {
		role, err = "", nil
	}
	if err != nil {
		return "", err
	}
	s.roles.put(orgID, userID, role)
	return role, nil
}

// CreateInput describes a new organization and its first owner.
type CreateInput struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	MaxTemplates int    `json:"max_templates"`
	OwnerID      string `json:"owner_id"`
}

// Create adds an organization. Only platform admins may create one.
func (s *Service) Create(ctx context.Context, user *metadata.UserContext, in CreateInput) (*store.Organization, error) {
	if !user.IsAdmin() {
		return nil, engine.ForbiddenError("Admin access required")
	}
	in.Name = strings.TrimSpace(in.Name)
	var details []engine.ErrorDetail
	if in.Name == "" {
		details = append(details, engine.ErrorDetail{Field: "name", Rule: "required", Message: "name is required"})
	}
	if !slugPattern.MatchString(in.Slug) {
		details = append(details, engine.ErrorDetail{Field: "slug", Rule: "format",
			Message: "slug must be lowercase letters, digits and single hyphens"})
	}
	if in.MaxTemplates < 0 {
		details = append(details, engine.ErrorDetail{Field: "max_templates", Rule: "min",
			Message: "max_templates must not be negative"})
	}
	if len(details) > 0 {
		return nil, engine.ValidationError(details)
	}

	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "org", "organization", "org.create")
	defer span.End()

	o := &store.Organization{Name: in.Name, Slug: in.Slug, MaxTemplates: in.MaxTemplates}
	err := s.store.WithTx(ctx, func(r *store.Repo) error {
		if err := r.InsertOrganization(ctx, o); err != nil {
			return err
		}
		if in.OwnerID != "" {
			return r.UpsertMembership(ctx, store.Membership{OrgID: o.ID, UserID: in.OwnerID, Role: metadata.OrgRoleOwner})
		}
		return nil
	})
	if err != nil {
		span.Fail(err)
		return nil, engine.MapStoreError(err, "organization", in.Slug)
	}
	if in.OwnerID != "" {
		s.roles.forget(o.ID, in.OwnerID)
	}
	span.SetEntity(instrument.EntityOrganization, o.ID)
	span.SetStatus("ok")
	return o, nil
}

// Get returns the organization to its members and to platform admins.
func (s *Service) Get(ctx context.Context, user *metadata.UserContext, orgID string) (*store.Organization, error) {
	if !user.IsAdmin() && !user.IsMemberOf(orgID) {
		return nil, engine.NotFoundError("organization", orgID)
	}
	o, err := s.store.Repo().GetOrganization(ctx, orgID)
	if err != nil {
		return nil, engine.MapStoreError(err, "organization", orgID)
	}
	return o, nil
}

func (s *Service) ListMembers(ctx context.Context, user *metadata.UserContext, orgID string) ([]store.Membership, error) {
	if err := s.requireOrgAdmin(ctx, user, orgID); err != nil {
		return nil, err
	}
	members, err := s.store.Repo().ListMemberships(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []store.Membership{}
	}
	return members, nil
}

// AddMember adds userID to the organization or changes their role.
func (s *Service) AddMember(ctx context.Context, user *metadata.UserContext, orgID, userID, role string) (*store.Membership, error) {
	if err := s.requireOrgAdmin(ctx, user, orgID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, engine.FieldValidationError("user_id", "required", "user_id is required")
	}
	if role == "" {
		role = metadata.OrgRoleMember
	}
	switch role {
	case metadata.OrgRoleOwner, metadata.OrgRoleAdmin, metadata.OrgRoleEditor, metadata.OrgRoleMember:
	default:
		return nil, engine.FieldValidationError("role", "enum", fmt.Sprintf("unknown organization role %q", role))
	}
	if role == metadata.OrgRoleOwner && !user.IsAdmin() && user.OrgRole != metadata.OrgRoleOwner {
		return nil, engine.ForbiddenError("Only owners can grant ownership")
	}

	m := store.Membership{OrgID: orgID, UserID: userID, Role: role}
	if err := s.store.Repo().UpsertMembership(ctx, m); err != nil {
		return nil, engine.MapStoreError(err, "membership", userID)
	}
	s.roles.forget(orgID, userID)
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, instrument.EntityMembership, orgID+"/"+userID, "member.added",
		map[string]any{"org_id": orgID, "user_id": userID, "role": role})
	return &m, nil
}

func (s *Service) RemoveMember(ctx context.Context, user *metadata.UserContext, orgID, userID string) error {
	if err := s.requireOrgAdmin(ctx, user, orgID); err != nil {
		return err
	}
	if err := s.store.Repo().DeleteMembership(ctx, orgID, userID); err != nil {
		return engine.MapStoreError(err, "membership", userID)
	}
	s.roles.forget(orgID, userID)
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, instrument.EntityMembership, orgID+"/"+userID, "member.removed",
		map[string]any{"org_id": orgID, "user_id": userID})
	return nil
}

func (s *Service) requireOrgAdmin(ctx context.Context, user *metadata.UserContext, orgID string) error {
	if user.IsAdmin() {
		if _, err := s.store.Repo().GetOrganization(ctx, orgID); err != nil {
			return engine.MapStoreError(err, "organization", orgID)
		}
		return nil
	}
	if !user.IsMemberOf(orgID) {
		return engine.NotFoundError("organization", orgID)
	}
	if !user.IsOrgAdmin(orgID) {
		return engine.ForbiddenError("Organization admin access required")
	}
	return nil
}
