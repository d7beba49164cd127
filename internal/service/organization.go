// Package service implements the engine operations on top of the store,
// the job broker, and the fanout hub. Services validate, run short
// transactions, and emit events only after the data is committed.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/inkwellhq/inkwell/internal/domain"
	"github.com/inkwellhq/inkwell/internal/fanout"
	"github.com/inkwellhq/inkwell/internal/store"
	"github.com/inkwellhq/inkwell/pkg/cryptox"
	"github.com/inkwellhq/inkwell/pkg/idx"
	"github.com/inkwellhq/inkwell/pkg/ratex"
	"github.com/inkwellhq/inkwell/pkg/slogx"
)

// pinCreateAttempts bounds the PIN collision retry loop at creation. The
// PIN space is a million values; exhausting five draws in a row means the
// table is effectively full and the caller should hear about it.
const pinCreateAttempts = 5

type OrganizationService struct {
	store    store.Store
	hub      *fanout.Hub
	joinRate *ratex.Limiter
}

func NewOrganizationService(st store.Store, hub *fanout.Hub, joinRate *ratex.Limiter) *OrganizationService {
	return &OrganizationService{store: st, hub: hub, joinRate: joinRate}
}

// CreateOrganization creates an organization with a fresh unique join PIN
// and makes headUserID its OWNER. Both rows land in one transaction.
func (s *OrganizationService) CreateOrganization(ctx context.Context, headUserID, name, description string) (domain.Organization, error) {
	log := slogx.FromContext(ctx)

	if len(name) < domain.OrgNameMinLen || len(name) > domain.OrgNameMaxLen {
		return domain.Organization{}, domain.Validationf(
			"Organization name must be between %d and %d characters", domain.OrgNameMinLen, domain.OrgNameMaxLen)
	}

	if _, err := s.store.Users().GetUserByID(ctx, headUserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Organization{}, domain.NotFoundf("User not found")
		}
		return domain.Organization{}, fmt.Errorf("load user: %w", err)
	}

	var org domain.Organization
	for attempt := 0; attempt < pinCreateAttempts; attempt++ {
		pin, err := cryptox.GeneratePIN()
		if err != nil {
			return domain.Organization{}, fmt.Errorf("generate join pin: %w", err)
		}

		now := time.Now()
		org = domain.Organization{
			ID:          idx.New().String(),
			Name:        name,
			Description: description,
			JoinPIN:     pin,
			HeadUserID:  headUserID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err = s.store.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Organizations().CreateOrganization(ctx, org); err != nil {
				return err
			}
			return tx.Memberships().CreateMembership(ctx, domain.Membership{
				OrgID:    org.ID,
				UserID:   headUserID,
				Role:     domain.RoleOwner,
				JoinedAt: now,
			})
		})
		if errors.Is(err, store.ErrAlreadyExists) {
			// PIN collision, draw again. Fresh ULIDs rule everything else out.
			log.Debug("join pin collision, retrying", slog.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return domain.Organization{}, fmt.Errorf("create organization: %w", err)
		}

		log.Info("organization created",
			slog.String("org_id", org.ID),
			slog.String("head_user_id", headUserID),
		)
		return org, nil
	}

	return domain.Organization{}, fmt.Errorf("create organization: exhausted %d pin attempts", pinCreateAttempts)
}

// JoinWithPin adds the caller as a MEMBER of the organization holding pin.
// Attempts are rate limited per user because the PIN space is guessable.
func (s *OrganizationService) JoinWithPin(ctx context.Context, userID, pin string) (domain.Membership, error) {
	log := slogx.FromContext(ctx)

	if !s.joinRate.Allow(userID) {
		return domain.Membership{}, domain.Permissionf("Too many join attempts. Try again later")
	}

	org, err := s.store.Organizations().GetOrganizationByPIN(ctx, pin)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Membership{}, domain.NotFoundf("No organization matches that PIN")
		}
		return domain.Membership{}, fmt.Errorf("resolve pin: %w", err)
	}

	m := domain.Membership{
		OrgID:    org.ID,
		UserID:   userID,
		Role:     domain.RoleMember,
		JoinedAt: time.Now(),
	}
	if err := s.store.Memberships().CreateMembership(ctx, m); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Membership{}, domain.Conflictf("You are already a member of this organization")
		}
		return domain.Membership{}, fmt.Errorf("create membership: %w", err)
	}

	log.Info("member joined via pin", slog.String("org_id", org.ID), slog.String("user_id", userID))
	s.hub.MemberJoined(org.ID, fanout.MemberJoinedPayload{UserID: userID, Role: string(m.Role)})
	return m, nil
}

// CheckPermission verifies userID holds at least the required role in the
// organization. Non-members are indistinguishable from under-ranked members.
func (s *OrganizationService) CheckPermission(ctx context.Context, orgID, userID string, required domain.Role) error {
	m, err := s.store.Memberships().GetMembership(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Permissionf("You do not have access to this organization")
		}
		return fmt.Errorf("load membership: %w", err)
	}
	if m.Role.Rank() < required.Rank() {
		return domain.Permissionf("You do not have permission to perform this action")
	}
	return nil
}

// ListMembers returns the organization's memberships, visible to any member.
func (s *OrganizationService) ListMembers(ctx context.Context, orgID, actorID string) ([]domain.Membership, error) {
	if err := s.CheckPermission(ctx, orgID, actorID, domain.RoleMember); err != nil {
		return nil, err
	}
	members, err := s.store.Memberships().ListMembershipsByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return members, nil
}

// RemoveMember removes targetUserID from the organization. The owner can
// never be removed, and an actor can only remove lower-ranked members.
func (s *OrganizationService) RemoveMember(ctx context.Context, orgID, actorID, targetUserID string) error {
	log := slogx.FromContext(ctx)

	actor, target, err := s.actorAndTarget(ctx, orgID, actorID, targetUserID)
	if err != nil {
		return err
	}
	if target.Role == domain.RoleOwner {
		return domain.Permissionf("Cannot remove the organization owner")
	}
	if actor.Role.Rank() <= target.Role.Rank() {
		return domain.Permissionf("You do not have permission to remove this member")
	}

	if err := s.store.Memberships().DeleteMembership(ctx, orgID, targetUserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFoundf("Member not found")
		}
		return fmt.Errorf("delete membership: %w", err)
	}

	log.Info("member removed",
		slog.String("org_id", orgID),
		slog.String("actor_id", actorID),
		slog.String("user_id", targetUserID),
	)
	s.hub.MemberRemoved(orgID, fanout.MemberRemovedPayload{UserID: targetUserID})
	return nil
}

// UpdateMemberRole changes targetUserID's role. Only ADMIN and MEMBER are
// grantable; the owner's role is fixed.
func (s *OrganizationService) UpdateMemberRole(ctx context.Context, orgID, actorID, targetUserID string, role domain.Role) error {
	log := slogx.FromContext(ctx)

	if !role.Grantable() {
		return domain.Validationf("Role must be ADMIN or MEMBER")
	}

	actor, target, err := s.actorAndTarget(ctx, orgID, actorID, targetUserID)
	if err != nil {
		return err
	}
	if target.Role == domain.RoleOwner {
		return domain.Permissionf("Cannot change the organization owner's role")
	}
	if actor.Role.Rank() <= target.Role.Rank() {
		return domain.Permissionf("You do not have permission to change this member's role")
	}

	if err := s.store.Memberships().UpdateMembershipRole(ctx, orgID, targetUserID, role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFoundf("Member not found")
		}
		return fmt.Errorf("update membership role: %w", err)
	}

	log.Info("member role updated",
		slog.String("org_id", orgID),
		slog.String("user_id", targetUserID),
		slog.String("role", string(role)),
	)
	s.hub.MemberRoleUpdated(orgID, fanout.MemberRoleUpdatedPayload{UserID: targetUserID, Role: string(role)})
	return nil
}

// actorAndTarget loads both memberships and enforces that the actor manages
// members at all. Target absence surfaces as NotFound, actor absence as a
// permission failure.
func (s *OrganizationService) actorAndTarget(ctx context.Context, orgID, actorID, targetUserID string) (actor, target domain.Membership, err error) {
	actor, err = s.store.Memberships().GetMembership(ctx, orgID, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return actor, target, domain.Permissionf("You do not have access to this organization")
		}
		return actor, target, fmt.Errorf("load actor membership: %w", err)
	}
	if !actor.Role.ManagesMembers() {
		return actor, target, domain.Permissionf("You do not have permission to manage members")
	}

	target, err = s.store.Memberships().GetMembership(ctx, orgID, targetUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return actor, target, domain.NotFoundf("Member not found")
		}
		return actor, target, fmt.Errorf("load target membership: %w", err)
	}
	return actor, target, nil
}
