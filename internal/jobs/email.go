package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/inkwellhq/inkwell/internal/domain"
	"github.com/inkwellhq/inkwell/internal/mail"
)

// EmailPayload is the wire format of jobs on the email queue.
type EmailPayload struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
}

// EmailHandler delivers queued mail through the configured sender.
type EmailHandler struct {
	sender mail.Sender
}

func NewEmailHandler(sender mail.Sender) *EmailHandler {
	return &EmailHandler{sender: sender}
}

func (h *EmailHandler) Handle(ctx context.Context, job domain.Job) error {
	var p EmailPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode email payload: %w", err)
	}
	if p.To == "" {
		return fmt.Errorf("email payload missing recipient")
	}
	return h.sender.Send(ctx, p.To, p.Subject, p.HTMLBody)
}
