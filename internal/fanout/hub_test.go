package fanout

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *HS256Verifier) {
	t.Helper()
	verifier := NewHS256Verifier([]byte("test-secret"), "inkwell-test")
	return New(verifier, slog.Default()), verifier
}

func connectUser(t *testing.T, h *Hub, v *HS256Verifier, userID string) *Conn {
	t.Helper()
	token, err := v.Mint(userID, time.Minute)
	require.NoError(t, err)
	c, err := h.Connect(token)
	require.NoError(t, err)
	return c
}

func TestBroadcastReachesOnlyRoomMembers(t *testing.T) {
	t.Parallel()

	h, v := newTestHub(t)
	h.Start()
	defer h.Stop()

	a := connectUser(t, h, v, "user-a")
	b := connectUser(t, h, v, "user-b")

	require.NoError(t, h.Join(a, "org-x"))
	// b deliberately does not join org-x.

	h.MemberJoined("org-x", MemberJoinedPayload{UserID: "user-c", Role: "MEMBER"})

	select {
	case evt := <-a.Events():
		require.Equal(t, EventMemberJoined, evt.Name)
		require.Equal(t, "org-x", evt.OrgID)
		payload, ok := evt.Payload.(MemberJoinedPayload)
		require.True(t, ok)
		require.Equal(t, "user-c", payload.UserID)
	case <-time.After(time.Second):
		t.Fatal("expected event for room member")
	}

	select {
	case evt := <-b.Events():
		t.Fatalf("unexpected event for non-member: %v", evt)
	default:
	}
}

func TestConnectRefusesBadToken(t *testing.T) {
	t.Parallel()

	h, _ := newTestHub(t)
	h.Start()
	defer h.Stop()

	_, err := h.Connect("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)

	// Expired tokens are refused too.
	expired, mintErr := NewHS256Verifier([]byte("test-secret"), "inkwell-test").Mint("user-a", -time.Minute)
	require.NoError(t, mintErr)
	_, err = h.Connect(expired)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestEmitBeforeStartIsNoOp(t *testing.T) {
	t.Parallel()

	h, v := newTestHub(t)

	// Must not panic or fail the caller.
	h.DocumentGenerated("org-x", DocumentGeneratedPayload{DocumentID: "d1"})

	token, err := v.Mint("user-a", time.Minute)
	require.NoError(t, err)
	_, err = h.Connect(token)
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestDisconnectLeavesAllRooms(t *testing.T) {
	t.Parallel()

	h, v := newTestHub(t)
	h.Start()
	defer h.Stop()

	a := connectUser(t, h, v, "user-a")
	require.NoError(t, h.Join(a, "org-x"))
	require.NoError(t, h.Join(a, "org-y"))

	h.Disconnect(a)

	// Channel closed, no further deliveries.
	_, open := <-a.Events()
	require.False(t, open)

	h.MemberRemoved("org-x", MemberRemovedPayload{UserID: "user-z"})
	h.MemberRemoved("org-y", MemberRemovedPayload{UserID: "user-z"})
}

func TestLeaveStopsDelivery(t *testing.T) {
	t.Parallel()

	h, v := newTestHub(t)
	h.Start()
	defer h.Stop()

	a := connectUser(t, h, v, "user-a")
	require.NoError(t, h.Join(a, "org-x"))
	h.Leave(a, "org-x")

	h.MemberRoleUpdated("org-x", MemberRoleUpdatedPayload{UserID: "user-b", Role: "ADMIN"})

	select {
	case evt := <-a.Events():
		t.Fatalf("unexpected event after leave: %v", evt)
	default:
	}
}

func TestSlowConsumerDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()

	h, v := newTestHub(t)
	h.Start()
	defer h.Stop()

	a := connectUser(t, h, v, "user-a")
	require.NoError(t, h.Join(a, "org-x"))

	// Overfill the send buffer; the emitter must never stall.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < defaultSendBuffer*3; i++ {
			h.MemberJoined("org-x", MemberJoinedPayload{UserID: "u", Role: "MEMBER"})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast blocked on a slow consumer")
	}
}
