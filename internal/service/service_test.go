package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkwellhq/inkwell/internal/blob"
	"github.com/inkwellhq/inkwell/internal/domain"
	"github.com/inkwellhq/inkwell/internal/fanout"
	"github.com/inkwellhq/inkwell/internal/jobs"
	"github.com/inkwellhq/inkwell/internal/store"
	"github.com/inkwellhq/inkwell/internal/store/drivers/sqlite"
	"github.com/inkwellhq/inkwell/pkg/idx"
	"github.com/inkwellhq/inkwell/pkg/ratex"
)

type env struct {
	store    store.Store
	blobs    *blob.Memory
	hub      *fanout.Hub
	verifier *fanout.HS256Verifier
	broker   *jobs.Broker

	orgs    *OrganizationService
	invites *InviteService
	users   *UserService
	studio  *StudioService
}

func newTestEnv(t *testing.T) *env {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "service_test.db"))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	verifier := fanout.NewHS256Verifier([]byte("test-secret"), "inkwell-test")
	hub := fanout.New(verifier, slog.Default())
	hub.Start()
	t.Cleanup(hub.Stop)

	broker := jobs.NewBroker(st)
	blobs := blob.NewMemory("http://localhost:8080/blobs", []byte("blob-secret"))

	// Effectively unlimited unless a test builds its own strict limiter.
	limiter := ratex.NewLimiter(ratex.Config{RequestsPerWindow: 10_000, Window: time.Minute})

	orgs := NewOrganizationService(st, hub, limiter)
	return &env{
		store:    st,
		blobs:    blobs,
		hub:      hub,
		verifier: verifier,
		broker:   broker,
		orgs:     orgs,
		invites:  NewInviteService(st, broker, hub, "http://localhost:8080"),
		users:    NewUserService(st, broker, "http://localhost:8080"),
		studio:   NewStudioService(st, blobs, broker, hub, orgs),
	}
}

var seedCounter atomic.Int64

func (e *env) seedUser(t *testing.T, name string) domain.User {
	t.Helper()

	now := time.Now()
	u := domain.User{
		ID:           idx.New().String(),
		Name:         name,
		Email:        fmt.Sprintf("%s-%d@example.com", name, seedCounter.Add(1)),
		PasswordHash: "x",
		VerifiedAt:   &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, e.store.Users().CreateUser(context.Background(), u))
	return u
}

func (e *env) seedOrg(t *testing.T, owner domain.User) domain.Organization {
	t.Helper()

	org, err := e.orgs.CreateOrganization(context.Background(), owner.ID, "Acme Corp", "test org")
	require.NoError(t, err)
	return org
}

func (e *env) seedMember(t *testing.T, orgID string, role domain.Role) domain.User {
	t.Helper()

	u := e.seedUser(t, "member")
	require.NoError(t, e.store.Memberships().CreateMembership(context.Background(), domain.Membership{
		OrgID:    orgID,
		UserID:   u.ID,
		Role:     role,
		JoinedAt: time.Now(),
	}))
	return u
}

// roomConn opens a live connection joined to the organization's room.
func (e *env) roomConn(t *testing.T, userID, orgID string) *fanout.Conn {
	t.Helper()

	token, err := e.verifier.Mint(userID, time.Minute)
	require.NoError(t, err)
	conn, err := e.hub.Connect(token)
	require.NoError(t, err)
	require.NoError(t, e.hub.Join(conn, orgID))
	return conn
}

func requireEvent(t *testing.T, conn *fanout.Conn, name string) fanout.Event {
	t.Helper()

	select {
	case evt := <-conn.Events():
		require.Equal(t, name, evt.Name)
		return evt
	case <-time.After(time.Second):
		t.Fatalf("expected %s event", name)
		return fanout.Event{}
	}
}

func requireNoEvent(t *testing.T, conn *fanout.Conn) {
	t.Helper()

	select {
	case evt := <-conn.Events():
		t.Fatalf("unexpected event: %v", evt)
	default:
	}
}

// extractToken leases the most recently queued email and pulls the opaque
// token out of the first link containing marker, e.g. "/verify/".
func extractToken(t *testing.T, e *env, marker string) string {
	t.Helper()

	leased, err := e.store.Jobs().LeaseJobs(context.Background(), domain.QueueEmail, "test-reader", 10, time.Now(), time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, leased)

	var p jobs.EmailPayload
	require.NoError(t, json.Unmarshal(leased[len(leased)-1].Payload, &p))

	_, rest, found := strings.Cut(p.HTMLBody, marker)
	require.True(t, found, "email body has no %s link", marker)
	token, _, found := strings.Cut(rest, `"`)
	require.True(t, found)
	return token
}

// queueDepth counts jobs on queue by status.
func (e *env) queueDepth(t *testing.T, queue string, status domain.JobStatus) int {
	t.Helper()

	n, err := e.store.Jobs().CountJobs(context.Background(), queue, status)
	require.NoError(t, err)
	return n
}
