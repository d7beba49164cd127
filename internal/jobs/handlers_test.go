package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkwellhq/inkwell/internal/blob"
	"github.com/inkwellhq/inkwell/internal/domain"
	"github.com/inkwellhq/inkwell/internal/store"
	"github.com/inkwellhq/inkwell/pkg/idx"
)

type fakeSender struct {
	sent []EmailPayload
	err  error
}

func (f *fakeSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, EmailPayload{To: to, Subject: subject, HTMLBody: htmlBody})
	return nil
}

func emailJob(t *testing.T, p EmailPayload) domain.Job {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return domain.Job{ID: idx.New().String(), Queue: domain.QueueEmail, Payload: raw}
}

func TestEmailHandlerSends(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	h := NewEmailHandler(sender)

	err := h.Handle(context.Background(), emailJob(t, EmailPayload{
		To:       "invitee@example.com",
		Subject:  "You have been invited",
		HTMLBody: "<p>Join us</p>",
	}))
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	require.Equal(t, "invitee@example.com", sender.sent[0].To)
}

func TestEmailHandlerRejectsBadPayload(t *testing.T) {
	t.Parallel()

	h := NewEmailHandler(&fakeSender{})

	err := h.Handle(context.Background(), domain.Job{Payload: []byte("not json")})
	require.Error(t, err)

	err = h.Handle(context.Background(), emailJob(t, EmailPayload{Subject: "no recipient"}))
	require.Error(t, err)

	err = h.Handle(context.Background(), emailJob(t, EmailPayload{To: "a@b.c"}))
	require.NoError(t, err)
}

func TestEmailHandlerPropagatesSendFailure(t *testing.T) {
	t.Parallel()

	h := NewEmailHandler(&fakeSender{err: errors.New("relay down")})
	err := h.Handle(context.Background(), emailJob(t, EmailPayload{To: "a@b.c"}))
	require.ErrorContains(t, err, "relay down")
}

func seedTemplate(t *testing.T, st store.Store, storageKey string) domain.Template {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	user := domain.User{
		ID:           idx.New().String(),
		Name:         "Owner",
		Email:        idx.New().String() + "@example.com",
		PasswordHash: "x",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.Users().CreateUser(ctx, user))

	org := domain.Organization{
		ID:         idx.New().String(),
		Name:       "Acme",
		JoinPIN:    idx.New().String()[:6],
		HeadUserID: user.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, st.Organizations().CreateOrganization(ctx, org))

	tmpl := domain.Template{
		ID:         idx.New().String(),
		OrgID:      org.ID,
		Name:       "Edited copy",
		StorageKey: storageKey,
		Temporary:  true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, st.Templates().CreateTemplate(ctx, tmpl))
	return tmpl
}

func cleanupJob(t *testing.T, p CleanupPayload) domain.Job {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return domain.Job{ID: idx.New().String(), Queue: domain.QueueFileCleanup, Payload: raw}
}

func TestCleanupHandlerDeletesBlobThenRow(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	blobs := blob.NewMemory("http://test/blobs", []byte("secret"))
	ctx := context.Background()

	tmpl := seedTemplate(t, st, "templates/doomed")
	require.NoError(t, blobs.Put(ctx, tmpl.StorageKey, []byte("content"), "application/octet-stream", nil))

	h := NewCleanupHandler(st, blobs, slog.Default())
	require.NoError(t, h.Handle(ctx, cleanupJob(t, CleanupPayload{TemplateID: tmpl.ID, Reason: "deleted"})))

	exists, err := blobs.Exists(ctx, tmpl.StorageKey)
	require.NoError(t, err)
	require.False(t, exists)

	_, err = st.Templates().GetTemplateByID(ctx, tmpl.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCleanupHandlerMissingRowIsNoOp(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	blobs := blob.NewMemory("http://test/blobs", []byte("secret"))

	h := NewCleanupHandler(st, blobs, slog.Default())
	err := h.Handle(context.Background(), cleanupJob(t, CleanupPayload{TemplateID: "no-such-template"}))
	require.NoError(t, err)
}

func TestCleanupHandlerToleratesMissingBlob(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	blobs := blob.NewMemory("http://test/blobs", []byte("secret"))
	ctx := context.Background()

	// Row exists but the blob was never uploaded or already reaped.
	tmpl := seedTemplate(t, st, "templates/ghost")

	h := NewCleanupHandler(st, blobs, slog.Default())
	require.NoError(t, h.Handle(ctx, cleanupJob(t, CleanupPayload{TemplateID: tmpl.ID})))

	_, err := st.Templates().GetTemplateByID(ctx, tmpl.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCleanupHandlerIsIdempotentUnderRedelivery(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	blobs := blob.NewMemory("http://test/blobs", []byte("secret"))
	ctx := context.Background()

	tmpl := seedTemplate(t, st, "templates/twice")
	require.NoError(t, blobs.Put(ctx, tmpl.StorageKey, []byte("content"), "application/octet-stream", nil))

	h := NewCleanupHandler(st, blobs, slog.Default())
	job := cleanupJob(t, CleanupPayload{TemplateID: tmpl.ID})
	require.NoError(t, h.Handle(ctx, job))
	require.NoError(t, h.Handle(ctx, job))
}
