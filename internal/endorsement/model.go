// internal/endorsement/model.go
package endorsement

import (
	"strings"
	"time"
)

// Status is the persisted lifecycle status of an endorsement.
type Status string

const (
	StatusPendingVerification Status = "pending_verification"
	StatusPendingReview       Status = "pending_review"
	StatusApproved            Status = "approved"
	StatusRejected            Status = "rejected"
)

type EndorsementType string

const (
	TypeFree EndorsementType = "free"
	TypePaid EndorsementType = "paid"
)

// Endorsement is the single entity of the lifecycle. TokenHash and
// ReviewedBy never leave the service boundary.
type Endorsement struct {
	ID                string          `json:"id"`
	OrganizationName  string          `json:"organizationName"`
	ContactPersonName string          `json:"contactPersonName"`
	Email             string          `json:"email"`
	Country           string          `json:"country"`
	EndorserCategory  string          `json:"endorserCategory"`
	EndorsementType   EndorsementType `json:"endorsementType"`
	EndorsementTier   string          `json:"endorsementTier,omitempty"`
	Headline          string          `json:"headline"`
	Statement         string          `json:"statement"`
	LogoRef           string          `json:"logoRef,omitempty"`
	VideoLink         string          `json:"videoLink,omitempty"`
	Website           string          `json:"website,omitempty"`

	Status          Status     `json:"status"`
	Verified        bool       `json:"verified"`
	Featured        bool       `json:"featured"`
	TokenHash       string     `json:"-"`
	TokenExpiresAt  *time.Time `json:"-"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	ReviewedBy      string     `json:"-"`

	CreatedAt  time.Time  `json:"createdAt"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (e *Endorsement) Clone() *Endorsement {
	if e == nil {
		return nil
	}
	out := *e
	out.TokenExpiresAt = cloneTime(e.TokenExpiresAt)
	out.VerifiedAt = cloneTime(e.VerifiedAt)
	out.ApprovedAt = cloneTime(e.ApprovedAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// NormalizeEmail is the canonical form used for lookups and uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ShowcaseQuery filters the public showcase. Empty fields do not filter.
type ShowcaseQuery struct {
	Search   string `json:"search,omitempty"`
	Category string `json:"category,omitempty"`
	Country  string `json:"country,omitempty"`
}

// Normalize trims surrounding whitespace from every filter.
func (q ShowcaseQuery) Normalize() ShowcaseQuery {
	return ShowcaseQuery{
		Search:   strings.TrimSpace(q.Search),
		Category: strings.TrimSpace(q.Category),
		Country:  strings.TrimSpace(q.Country),
	}
}

// PublicEndorsement is the showcase projection of an approved endorsement.
type PublicEndorsement struct {
	ID                string          `json:"id"`
	OrganizationName  string          `json:"organizationName"`
	ContactPersonName string          `json:"contactPersonName"`
	Country           string          `json:"country"`
	EndorserCategory  string          `json:"endorserCategory"`
	EndorsementType   EndorsementType `json:"endorsementType"`
	EndorsementTier   string          `json:"endorsementTier,omitempty"`
	Headline          string          `json:"headline"`
	Statement         string          `json:"statement"`
	LogoRef           string          `json:"logoRef,omitempty"`
	VideoLink         string          `json:"videoLink,omitempty"`
	Website           string          `json:"website,omitempty"`
	Featured          bool            `json:"featured"`
	ApprovedAt        *time.Time      `json:"approvedAt,omitempty"`
}

// ToPublic projects the record onto its public fields.
func (e *Endorsement) ToPublic() PublicEndorsement {
	return PublicEndorsement{
		ID:                e.ID,
		OrganizationName:  e.OrganizationName,
		ContactPersonName: e.ContactPersonName,
		Country:           e.Country,
		EndorserCategory:  e.EndorserCategory,
		EndorsementType:   e.EndorsementType,
		EndorsementTier:   e.EndorsementTier,
		Headline:          e.Headline,
		Statement:         e.Statement,
		LogoRef:           e.LogoRef,
		VideoLink:         e.VideoLink,
		Website:           e.Website,
		Featured:          e.Featured,
		ApprovedAt:        cloneTime(e.ApprovedAt),
	}
}

// NotificationKind identifies a message template.
type NotificationKind string

const (
	KindVerificationRequest NotificationKind = "verification_request"
	KindApprovalNotice      NotificationKind = "approval_notice"
	KindRejectionNotice     NotificationKind = "rejection_notice"
	KindReviewRequested     NotificationKind = "review_requested"
)

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobSending JobStatus = "sending"
	JobSent    JobStatus = "sent"
	JobFailed  JobStatus = "failed"
	// JobSuperseded marks a verification message replaced by a newer token
	// before it was sent.
	JobSuperseded JobStatus = "superseded"
)

// NotificationPayload carries the transition-specific data a template needs.
type NotificationPayload struct {
	EndorsementID    string     `json:"endorsementId"`
	ContactName      string     `json:"contactName"`
	OrganizationName string     `json:"organizationName"`
	Email            string     `json:"email"`
	Token            string     `json:"token,omitempty"`
	TokenExpiresAt   *time.Time `json:"tokenExpiresAt,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	Headline         string     `json:"headline,omitempty"`
}

// NotificationJob is an outbox row written in the same transaction as the
// transition that produced it.
type NotificationJob struct {
	ID            string              `json:"id"`
	EndorsementID string              `json:"endorsementId"`
	Kind          NotificationKind    `json:"kind"`
	Recipient     string              `json:"recipient"`
	Payload       NotificationPayload `json:"payload"`
	Status        JobStatus           `json:"status"`
	Attempts      int                 `json:"attempts"`
	NextAttemptAt time.Time           `json:"nextAttemptAt"`
	LockedUntil   *time.Time          `json:"lockedUntil,omitempty"`
	LastError     string              `json:"lastError,omitempty"`
	SentAt        *time.Time          `json:"sentAt,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// JobBuilder builds the notification for a committed transition from the
// updated record. A nil builder or a nil result enqueues nothing.
type JobBuilder func(updated *Endorsement) *NotificationJob
