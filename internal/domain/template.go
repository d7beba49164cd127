package domain

import (
	"strings"
	"time"
)

type Template struct {
	ID         string
	OrgID      string
	Name       string
	StorageKey string // empty when no blob has been uploaded
	Temporary  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TempNamePrefix marks templates produced by ad-hoc edit sessions. The
// cleanup sweep reaps them once they outlive the configured age threshold.
const TempNamePrefix = "Edited"

// SweepCandidate reports whether the template matches the temporary
// heuristic and is older than maxAge at now.
func (t Template) SweepCandidate(now time.Time, maxAge time.Duration) bool {
	if !t.Temporary && !strings.HasPrefix(t.Name, TempNamePrefix) {
		return false
	}
	return now.Sub(t.CreatedAt) > maxAge
}

type GeneratedDocument struct {
	ID         string
	OrgID      string
	TemplateID string // empty for free-form documents
	Name       string
	StorageKey string
	CreatedAt  time.Time
}
