package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkwellhq/inkwell/internal/domain"
	"github.com/inkwellhq/inkwell/internal/store"
	"github.com/inkwellhq/inkwell/pkg/cryptox"
	"github.com/inkwellhq/inkwell/pkg/ratex"
)

func TestCreateOrganization(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.seedUser(t, "alice")

	org, err := e.orgs.CreateOrganization(ctx, owner.ID, "Acme Corp", "documents for acme")
	require.NoError(t, err)
	require.Len(t, org.JoinPIN, cryptox.PINDigits)
	require.Equal(t, owner.ID, org.HeadUserID)

	m, err := e.store.Memberships().GetMembership(ctx, org.ID, owner.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleOwner, m.Role)
}

func TestCreateOrganizationValidatesName(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.seedUser(t, "alice")

	_, err := e.orgs.CreateOrganization(ctx, owner.ID, "A", "")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.orgs.CreateOrganization(ctx, owner.ID, strings.Repeat("x", domain.OrgNameMaxLen+1), "")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.orgs.CreateOrganization(ctx, "no-such-user", "Acme Corp", "")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJoinWithPin(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.seedUser(t, "alice")
	org := e.seedOrg(t, owner)
	joiner := e.seedUser(t, "bob")

	conn := e.roomConn(t, owner.ID, org.ID)

	m, err := e.orgs.JoinWithPin(ctx, joiner.ID, org.JoinPIN)
	require.NoError(t, err)
	require.Equal(t, domain.RoleMember, m.Role)

	evt := requireEvent(t, conn, "member.joined")
	require.Equal(t, org.ID, evt.OrgID)

	// Joining twice conflicts.
	_, err = e.orgs.JoinWithPin(ctx, joiner.ID, org.JoinPIN)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestConcurrentJoinsYieldOneMembership(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.seedUser(t, "alice")
	org := e.seedOrg(t, owner)
	joiner := e.seedUser(t, "bob")

	const racers = 4
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		go func() {
			_, err := e.orgs.JoinWithPin(ctx, joiner.ID, org.JoinPIN)
			results <- err
		}()
	}

	var successes, conflicts int
	for i := 0; i < racers; i++ {
		switch err := <-results; {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, racers-1, conflicts)

	members, err := e.store.Memberships().ListMembershipsByOrg(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
}

func TestJoinWithUnknownPin(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	joiner := e.seedUser(t, "bob")

	_, err := e.orgs.JoinWithPin(context.Background(), joiner.ID, "000000")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJoinWithPinRateLimited(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	ctx := context.Background()
	joiner := e.seedUser(t, "bob")

	strict := ratex.NewLimiter(ratex.Config{RequestsPerWindow: 2, Window: time.Hour, Burst: 2})
	orgs := NewOrganizationService(e.store, e.hub, strict)

	_, err := orgs.JoinWithPin(ctx, joiner.ID, "111111")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = orgs.JoinWithPin(ctx, joiner.ID, "222222")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = orgs.JoinWithPin(ctx, joiner.ID, "333333")
	require.ErrorIs(t, err, domain.ErrPermission)
}

func TestRemoveMember(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.seedUser(t, "alice")
	org := e.seedOrg(t, owner)
	admin := e.seedMember(t, org.ID, domain.RoleAdmin)
	member := e.seedMember(t, org.ID, domain.RoleMember)

	conn := e.roomConn(t, owner.ID, org.ID)

	require.NoError(t, e.orgs.RemoveMember(ctx, org.ID, admin.ID, member.ID))
	requireEvent(t, conn, "member.removed")

	_, err := e.store.Memberships().GetMembership(ctx, org.ID, member.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRemoveMemberProtectsOwner(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.seedUser(t, "alice")
	org := e.seedOrg(t, owner)
	admin := e.seedMember(t, org.ID, domain.RoleAdmin)

	err := e.orgs.RemoveMember(ctx, org.ID, admin.ID, owner.ID)
	require.ErrorIs(t, err, domain.ErrPermission)
	require.EqualError(t, err, "Cannot remove the organization owner")
}

func TestRemoveMemberRequiresHigherRank(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.seedUser(t, "alice")
	org := e.seedOrg(t, owner)
	admin := e.seedMember(t, org.ID, domain.RoleAdmin)
	peer := e.seedMember(t, org.ID, domain.RoleAdmin)
	member := e.seedMember(t, org.ID, domain.RoleMember)

	// An admin cannot remove a fellow admin.
	require.ErrorIs(t, e.orgs.RemoveMember(ctx, org.ID, admin.ID, peer.ID), domain.ErrPermission)

	// A plain member cannot remove anyone.
	require.ErrorIs(t, e.orgs.RemoveMember(ctx, org.ID, member.ID, admin.ID), domain.ErrPermission)

	// A non-member sees a permission failure, not a not-found.
	outsider := e.seedUser(t, "eve")
	require.ErrorIs(t, e.orgs.RemoveMember(ctx, org.ID, outsider.ID, member.ID), domain.ErrPermission)
}

func TestUpdateMemberRole(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.seedUser(t, "alice")
	org := e.seedOrg(t, owner)
	member := e.seedMember(t, org.ID, domain.RoleMember)

	conn := e.roomConn(t, owner.ID, org.ID)

	require.NoError(t, e.orgs.UpdateMemberRole(ctx, org.ID, owner.ID, member.ID, domain.RoleAdmin))
	evt := requireEvent(t, conn, "member.role_updated")
	require.Equal(t, org.ID, evt.OrgID)

	m, err := e.store.Memberships().GetMembership(ctx, org.ID, member.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, m.Role)
}

func TestUpdateMemberRoleRejectsUngrantable(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.seedUser(t, "alice")
	org := e.seedOrg(t, owner)
	member := e.seedMember(t, org.ID, domain.RoleMember)

	require.ErrorIs(t, e.orgs.UpdateMemberRole(ctx, org.ID, owner.ID, member.ID, domain.RoleOwner), domain.ErrValidation)
	require.ErrorIs(t, e.orgs.UpdateMemberRole(ctx, org.ID, owner.ID, member.ID, "CREATOR"), domain.ErrValidation)

	// The owner's own role is fixed.
	require.ErrorIs(t, e.orgs.UpdateMemberRole(ctx, org.ID, owner.ID, owner.ID, domain.RoleAdmin), domain.ErrPermission)
}

func TestCheckPermission(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.seedUser(t, "alice")
	org := e.seedOrg(t, owner)
	member := e.seedMember(t, org.ID, domain.RoleMember)
	outsider := e.seedUser(t, "eve")

	require.NoError(t, e.orgs.CheckPermission(ctx, org.ID, owner.ID, domain.RoleOwner))
	require.NoError(t, e.orgs.CheckPermission(ctx, org.ID, member.ID, domain.RoleMember))
	require.ErrorIs(t, e.orgs.CheckPermission(ctx, org.ID, member.ID, domain.RoleAdmin), domain.ErrPermission)
	require.ErrorIs(t, e.orgs.CheckPermission(ctx, org.ID, outsider.ID, domain.RoleMember), domain.ErrPermission)
}

func TestListMembers(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.seedUser(t, "alice")
	org := e.seedOrg(t, owner)
	e.seedMember(t, org.ID, domain.RoleMember)

	members, err := e.orgs.ListMembers(ctx, org.ID, owner.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)

	outsider := e.seedUser(t, "eve")
	_, err = e.orgs.ListMembers(ctx, org.ID, outsider.ID)
	require.ErrorIs(t, err, domain.ErrPermission)
}
