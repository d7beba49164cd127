package domain

import "time"

// InviteStatus is the invite lifecycle state. PENDING is the only
// non-terminal state; there is no transition out of a terminal state.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "PENDING"
	InviteStatusAccepted InviteStatus = "ACCEPTED"
	InviteStatusDeclined InviteStatus = "DECLINED"
	InviteStatusExpired  InviteStatus = "EXPIRED"
)

// Terminal reports whether s is final.
func (s InviteStatus) Terminal() bool { return s != InviteStatusPending }

// InviteTTL is how long an invite stays redeemable after issuance.
const InviteTTL = 7 * 24 * time.Hour

type Invite struct {
	ID        string
	OrgID     string
	Email     string
	InvitedBy string
	Role      Role // role granted on acceptance
	TokenHash string
	Status    InviteStatus
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExpiredAt reports whether the invite's deadline has passed at now. This is
// the clock check only; status reconciliation is the service's job.
func (i Invite) ExpiredAt(now time.Time) bool { return now.After(i.ExpiresAt) }
