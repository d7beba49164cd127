package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkwellhq/inkwell/internal/blob"
	"github.com/inkwellhq/inkwell/internal/domain"
	"github.com/inkwellhq/inkwell/internal/fanout"
	"github.com/inkwellhq/inkwell/internal/jobs"
	"github.com/inkwellhq/inkwell/internal/store"
	"github.com/inkwellhq/inkwell/pkg/idx"
	"github.com/inkwellhq/inkwell/pkg/slogx"
)

// DownloadTTL is how long presigned document downloads stay valid.
const DownloadTTL = 15 * time.Minute

// StudioService covers template management and document generation.
type StudioService struct {
	store  store.Store
	blobs  blob.Store
	broker *jobs.Broker
	hub    *fanout.Hub
	orgs   *OrganizationService
}

func NewStudioService(st store.Store, blobs blob.Store, broker *jobs.Broker, hub *fanout.Hub, orgs *OrganizationService) *StudioService {
	return &StudioService{store: st, blobs: blobs, broker: broker, hub: hub, orgs: orgs}
}

// CreateTemplate stores a template for the organization. Temporary
// templates (the flag or the edit-session name prefix) are reaped by the
// cleanup sweep once they outlive the configured age.
func (s *StudioService) CreateTemplate(ctx context.Context, orgID, actorID, name string, content []byte, temporary bool) (domain.Template, error) {
	log := slogx.FromContext(ctx)

	if name == "" {
		return domain.Template{}, domain.Validationf("Template name is required")
	}
	if err := s.orgs.CheckPermission(ctx, orgID, actorID, domain.RoleMember); err != nil {
		return domain.Template{}, err
	}

	var storageKey string
	if len(content) > 0 {
		storageKey = "templates/" + uuid.NewString()
		if err := s.blobs.Put(ctx, storageKey, content, "application/octet-stream", map[string]string{"org_id": orgID}); err != nil {
			return domain.Template{}, fmt.Errorf("store template content: %w", err)
		}
	}

	now := time.Now()
	tmpl := domain.Template{
		ID:         idx.New().String(),
		OrgID:      orgID,
		Name:       name,
		StorageKey: storageKey,
		Temporary:  temporary,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Templates().CreateTemplate(ctx, tmpl); err != nil {
		return domain.Template{}, fmt.Errorf("create template: %w", err)
	}

	log.Info("template created",
		slog.String("org_id", orgID),
		slog.String("template_id", tmpl.ID),
		slog.Bool("temporary", temporary),
	)
	return tmpl, nil
}

// DeleteTemplate schedules removal of the template and its stored file.
// The delete itself runs on the cleanup queue so a slow or unavailable
// object store never blocks the caller.
func (s *StudioService) DeleteTemplate(ctx context.Context, orgID, actorID, templateID string) error {
	log := slogx.FromContext(ctx)

	if err := s.orgs.CheckPermission(ctx, orgID, actorID, domain.RoleAdmin); err != nil {
		return err
	}

	tmpl, err := s.store.Templates().GetTemplateByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFoundf("Template not found")
		}
		return fmt.Errorf("load template: %w", err)
	}
	if tmpl.OrgID != orgID {
		return domain.NotFoundf("Template not found")
	}

	_, err = s.broker.Enqueue(ctx, domain.QueueFileCleanup, jobs.CleanupPayload{
		TemplateID: templateID,
		Reason:     "deleted",
	})
	if err != nil {
		return fmt.Errorf("enqueue template cleanup: %w", err)
	}

	log.Info("template delete scheduled",
		slog.String("org_id", orgID),
		slog.String("template_id", templateID),
	)
	return nil
}

// GenerateDocument stores a rendered document and records it, announcing it
// to the organization's room once the row is committed.
func (s *StudioService) GenerateDocument(ctx context.Context, orgID, actorID, templateID, name string, rendered []byte) (domain.GeneratedDocument, error) {
	log := slogx.FromContext(ctx)

	if name == "" {
		return domain.GeneratedDocument{}, domain.Validationf("Document name is required")
	}
	if len(rendered) == 0 {
		return domain.GeneratedDocument{}, domain.Validationf("Document content is required")
	}
	if err := s.orgs.CheckPermission(ctx, orgID, actorID, domain.RoleMember); err != nil {
		return domain.GeneratedDocument{}, err
	}

	if templateID != "" {
		tmpl, err := s.store.Templates().GetTemplateByID(ctx, templateID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.GeneratedDocument{}, domain.NotFoundf("Template not found")
			}
			return domain.GeneratedDocument{}, fmt.Errorf("load template: %w", err)
		}
		if tmpl.OrgID != orgID {
			return domain.GeneratedDocument{}, domain.NotFoundf("Template not found")
		}
	}

	storageKey := "documents/" + uuid.NewString()
	if err := s.blobs.Put(ctx, storageKey, rendered, "application/pdf", map[string]string{"org_id": orgID}); err != nil {
		return domain.GeneratedDocument{}, fmt.Errorf("store document: %w", err)
	}

	doc := domain.GeneratedDocument{
		ID:         idx.New().String(),
		OrgID:      orgID,
		TemplateID: templateID,
		Name:       name,
		StorageKey: storageKey,
		CreatedAt:  time.Now(),
	}
	if err := s.store.Documents().CreateDocument(ctx, doc); err != nil {
		return domain.GeneratedDocument{}, fmt.Errorf("create document: %w", err)
	}

	log.Info("document generated",
		slog.String("org_id", orgID),
		slog.String("document_id", doc.ID),
	)
	s.hub.DocumentGenerated(orgID, fanout.DocumentGeneratedPayload{
		DocumentID: doc.ID,
		Name:       doc.Name,
		TemplateID: doc.TemplateID,
	})
	return doc, nil
}

// ListDocuments returns the organization's generated documents, visible to
// any member.
func (s *StudioService) ListDocuments(ctx context.Context, orgID, actorID string) ([]domain.GeneratedDocument, error) {
	if err := s.orgs.CheckPermission(ctx, orgID, actorID, domain.RoleMember); err != nil {
		return nil, err
	}
	docs, err := s.store.Documents().ListDocumentsByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// PresignDownload returns a time-limited URL for the document's content.
// Expiry is enforced when the URL is used, not when it is issued.
func (s *StudioService) PresignDownload(ctx context.Context, orgID, actorID, documentID string) (string, error) {
	if err := s.orgs.CheckPermission(ctx, orgID, actorID, domain.RoleMember); err != nil {
		return "", err
	}

	doc, err := s.store.Documents().GetDocumentByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", domain.NotFoundf("Document not found")
		}
		return "", fmt.Errorf("load document: %w", err)
	}
	if doc.OrgID != orgID {
		return "", domain.NotFoundf("Document not found")
	}

	url, err := s.blobs.PresignDownload(ctx, doc.StorageKey, DownloadTTL)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return url, nil
}
