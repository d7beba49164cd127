package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inkwellhq/inkwell/internal/blob"
	"github.com/inkwellhq/inkwell/internal/domain"
	"github.com/inkwellhq/inkwell/internal/store"
)

// CleanupPayload is the wire format of jobs on the file cleanup queue.
type CleanupPayload struct {
	TemplateID string `json:"template_id"`
	Reason     string `json:"reason,omitempty"`
}

// CleanupHandler removes one template and its stored file. It is fully
// idempotent: a missing row or missing blob is treated as already done,
// which makes redelivery after a lapsed lease safe.
type CleanupHandler struct {
	store store.Store
	blobs blob.Store
	log   *slog.Logger
}

func NewCleanupHandler(st store.Store, blobs blob.Store, logger *slog.Logger) *CleanupHandler {
	return &CleanupHandler{store: st, blobs: blobs, log: logger}
}

func (h *CleanupHandler) Handle(ctx context.Context, job domain.Job) error {
	var p CleanupPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode cleanup payload: %w", err)
	}
	if p.TemplateID == "" {
		return fmt.Errorf("cleanup payload missing template id")
	}

	tmpl, err := h.store.Templates().GetTemplateByID(ctx, p.TemplateID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load template %s: %w", p.TemplateID, err)
	}

	// Blob first. If the row delete then fails the retry re-deletes the
	// blob as a no-op; the reverse order could strand an unreachable file.
	if tmpl.StorageKey != "" {
		if err := h.blobs.Delete(ctx, tmpl.StorageKey); err != nil && !errors.Is(err, blob.ErrNotFound) {
			return fmt.Errorf("delete blob %s: %w", tmpl.StorageKey, err)
		}
	}

	if err := h.store.Templates().DeleteTemplate(ctx, tmpl.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete template %s: %w", tmpl.ID, err)
	}

	h.log.Info("template cleaned up",
		slog.String("template_id", tmpl.ID),
		slog.String("reason", p.Reason),
	)
	return nil
}
