package domain

import "time"

const (
	OrgNameMinLen = 2
	OrgNameMaxLen = 191
)

type Organization struct {
	ID          string
	Name        string
	Description string
	// JoinPIN is a 6-digit shared secret enabling self-service joining.
	// Unique across organizations; creation retries on collision.
	JoinPIN    string
	HeadUserID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Membership struct {
	OrgID    string
	UserID   string
	Role     Role
	JoinedAt time.Time
}
