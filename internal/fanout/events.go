package fanout

// Event names delivered to organization rooms.
const (
	EventDocumentGenerated = "document.generated"
	EventMemberJoined      = "member.joined"
	EventMemberRoleUpdated = "member.role_updated"
	EventMemberRemoved     = "member.removed"
)

// Event is one typed broadcast. Delivery is best-effort, at-most-once and
// in-memory; consumers treat it as a freshness hint, never as truth.
type Event struct {
	Name    string `json:"name"`
	OrgID   string `json:"org_id"`
	Payload any    `json:"payload"`
}

type DocumentGeneratedPayload struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	TemplateID string `json:"template_id,omitempty"`
}

type MemberJoinedPayload struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type MemberRoleUpdatedPayload struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type MemberRemovedPayload struct {
	UserID string `json:"user_id"`
}
