package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/inkwellhq/inkwell/internal/domain"
	"github.com/inkwellhq/inkwell/internal/fanout"
	"github.com/inkwellhq/inkwell/internal/jobs"
	"github.com/inkwellhq/inkwell/internal/store"
	"github.com/inkwellhq/inkwell/pkg/cryptox"
	"github.com/inkwellhq/inkwell/pkg/idx"
	"github.com/inkwellhq/inkwell/pkg/slogx"
)

type InviteService struct {
	store  store.Store
	broker *jobs.Broker
	hub    *fanout.Hub
	// inviteBaseURL is the public URL prefix invitation links point at.
	inviteBaseURL string
}

func NewInviteService(st store.Store, broker *jobs.Broker, hub *fanout.Hub, inviteBaseURL string) *InviteService {
	return &InviteService{store: st, broker: broker, hub: hub, inviteBaseURL: inviteBaseURL}
}

// InviteMember issues an invitation for email to join the organization with
// the given role. Returns the opaque redeem token exactly once; only its
// fingerprint is stored. An invitation email is enqueued fire-and-forget.
func (s *InviteService) InviteMember(ctx context.Context, orgID, actorID, email string, role domain.Role) (string, domain.Invite, error) {
	log := slogx.FromContext(ctx)

	if email == "" {
		return "", domain.Invite{}, domain.Validationf("Email is required")
	}
	if !role.Grantable() {
		return "", domain.Invite{}, domain.Validationf("Role must be ADMIN or MEMBER")
	}

	actor, err := s.store.Memberships().GetMembership(ctx, orgID, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", domain.Invite{}, domain.Permissionf("You do not have access to this organization")
		}
		return "", domain.Invite{}, fmt.Errorf("load actor membership: %w", err)
	}
	if !actor.Role.ManagesMembers() {
		return "", domain.Invite{}, domain.Permissionf("You do not have permission to invite members")
	}

	isMember, err := s.store.Memberships().EmailIsMember(ctx, orgID, email)
	if err != nil {
		return "", domain.Invite{}, fmt.Errorf("check existing member: %w", err)
	}
	if isMember {
		return "", domain.Invite{}, domain.Conflictf("That person is already a member of this organization")
	}

	pending, err := s.store.Invites().HasPendingInvite(ctx, orgID, email)
	if err != nil {
		return "", domain.Invite{}, fmt.Errorf("check pending invite: %w", err)
	}
	if pending {
		return "", domain.Invite{}, domain.Conflictf("An invite for that email is already pending")
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", domain.Invite{}, fmt.Errorf("generate invite token: %w", err)
	}

	now := time.Now()
	inv := domain.Invite{
		ID:        idx.New().String(),
		OrgID:     orgID,
		Email:     email,
		InvitedBy: actorID,
		Role:      role,
		TokenHash: cryptox.FingerprintToken(token),
		Status:    domain.InviteStatusPending,
		ExpiresAt: now.Add(domain.InviteTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Invites().CreateInvite(ctx, inv); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Partial unique index backstop for concurrent issuance.
			return "", domain.Invite{}, domain.Conflictf("An invite for that email is already pending")
		}
		return "", domain.Invite{}, fmt.Errorf("create invite: %w", err)
	}

	org, err := s.store.Organizations().GetOrganizationByID(ctx, orgID)
	orgName := orgID
	if err == nil {
		orgName = org.Name
	}
	s.enqueueInviteEmail(ctx, inv, orgName, token)

	log.Info("invite issued",
		slog.String("org_id", orgID),
		slog.String("invite_id", inv.ID),
		slog.String("role", string(role)),
	)
	return token, inv, nil
}

// enqueueInviteEmail queues the invitation email. A broker failure is
// logged, not surfaced: the invite exists and the token was returned to
// the inviter, who can pass it along by other means.
func (s *InviteService) enqueueInviteEmail(ctx context.Context, inv domain.Invite, orgName, token string) {
	log := slogx.FromContext(ctx)

	link := fmt.Sprintf("%s/invites/%s", s.inviteBaseURL, token)
	body := fmt.Sprintf(
		"<p>You have been invited to join <strong>%s</strong> as %s.</p><p><a href=%q>Accept the invitation</a> (valid for 7 days).</p>",
		orgName, inv.Role, link,
	)
	_, err := s.broker.Enqueue(ctx, domain.QueueEmail, jobs.EmailPayload{
		To:       inv.Email,
		Subject:  fmt.Sprintf("Invitation to join %s", orgName),
		HTMLBody: body,
	})
	if err != nil {
		log.Warn("invite email enqueue failed",
			slog.String("invite_id", inv.ID),
			slog.Any("error", err),
		)
	}
}

// GetInviteDetails resolves an invite token for display. Only an open
// invite yields details; a terminal one fails with a conflict naming its
// status. A PENDING invite past its deadline is flipped to EXPIRED on this
// read so later writes never have to re-derive expiry from timestamps.
func (s *InviteService) GetInviteDetails(ctx context.Context, token string) (domain.Invite, error) {
	inv, err := s.loadInvite(ctx, token)
	if err != nil {
		return domain.Invite{}, err
	}
	if err := inviteOpen(inv); err != nil {
		return domain.Invite{}, err
	}
	return inv, nil
}

// loadInvite resolves a token to its expiry-reconciled invite, regardless
// of status.
func (s *InviteService) loadInvite(ctx context.Context, token string) (domain.Invite, error) {
	inv, err := s.store.Invites().GetInviteByTokenHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Invite{}, domain.NotFoundf("Invite not found")
		}
		return domain.Invite{}, fmt.Errorf("load invite: %w", err)
	}
	return s.reconcileExpiry(ctx, inv), nil
}

// reconcileExpiry lazily transitions an overdue PENDING invite to EXPIRED.
// Losing the guarded update to a concurrent writer is fine; the re-read on
// the next access sees whatever won.
func (s *InviteService) reconcileExpiry(ctx context.Context, inv domain.Invite) domain.Invite {
	if inv.Status != domain.InviteStatusPending || !inv.ExpiredAt(time.Now()) {
		return inv
	}

	err := s.store.Invites().UpdateInviteStatus(ctx, inv.ID, domain.InviteStatusPending, domain.InviteStatusExpired)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slogx.FromContext(ctx).Warn("invite expiry reconcile failed",
			slog.String("invite_id", inv.ID),
			slog.Any("error", err),
		)
		return inv
	}
	inv.Status = domain.InviteStatusExpired
	return inv
}

// AcceptInvite redeems a PENDING invite for userID, whose account email must
// match the invited address. Membership insert and status flip commit
// atomically; concurrent accepts resolve to exactly one winner.
func (s *InviteService) AcceptInvite(ctx context.Context, token, userID string) (domain.Membership, error) {
	log := slogx.FromContext(ctx)

	inv, err := s.loadInvite(ctx, token)
	if err != nil {
		return domain.Membership{}, err
	}
	if err := inviteOpen(inv); err != nil {
		return domain.Membership{}, err
	}

	user, err := s.store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Membership{}, domain.NotFoundf("User not found")
		}
		return domain.Membership{}, fmt.Errorf("load user: %w", err)
	}
	if user.Email != inv.Email {
		return domain.Membership{}, domain.Permissionf("This invite was issued to a different email address")
	}

	m := domain.Membership{
		OrgID:    inv.OrgID,
		UserID:   userID,
		Role:     inv.Role,
		JoinedAt: time.Now(),
	}
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Memberships().CreateMembership(ctx, m); err != nil {
			return err
		}
		return tx.Invites().UpdateInviteStatus(ctx, inv.ID, domain.InviteStatusPending, domain.InviteStatusAccepted)
	})
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		return domain.Membership{}, domain.Conflictf("You are already a member of this organization")
	case errors.Is(err, store.ErrNotFound):
		// Lost the status race to a concurrent accept or decline.
		return domain.Membership{}, domain.Conflictf("This invite is no longer open")
	case err != nil:
		return domain.Membership{}, fmt.Errorf("accept invite: %w", err)
	}

	log.Info("invite accepted",
		slog.String("org_id", inv.OrgID),
		slog.String("invite_id", inv.ID),
		slog.String("user_id", userID),
	)
	s.hub.MemberJoined(inv.OrgID, fanout.MemberJoinedPayload{UserID: userID, Role: string(inv.Role)})
	return m, nil
}

// DeclineInvite marks a PENDING invite DECLINED. Terminal invites conflict;
// declining is not an idempotent no-op because the caller should know the
// invite had already been resolved.
func (s *InviteService) DeclineInvite(ctx context.Context, token string) error {
	log := slogx.FromContext(ctx)

	inv, err := s.loadInvite(ctx, token)
	if err != nil {
		return err
	}
	if err := inviteOpen(inv); err != nil {
		return err
	}

	err = s.store.Invites().UpdateInviteStatus(ctx, inv.ID, domain.InviteStatusPending, domain.InviteStatusDeclined)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Conflictf("This invite is no longer open")
	}
	if err != nil {
		return fmt.Errorf("decline invite: %w", err)
	}

	log.Info("invite declined", slog.String("invite_id", inv.ID))
	return nil
}

// inviteOpen translates a non-PENDING status into the conflict the caller
// should see.
func inviteOpen(inv domain.Invite) error {
	switch inv.Status {
	case domain.InviteStatusPending:
		return nil
	case domain.InviteStatusAccepted:
		return domain.Conflictf("This invite has already been accepted")
	case domain.InviteStatusDeclined:
		return domain.Conflictf("This invite has already been declined")
	case domain.InviteStatusExpired:
		return domain.Conflictf("This invite has expired")
	default:
		return domain.Conflictf("This invite is no longer open")
	}
}
