// internal/endorsement/jobs.go
package endorsement

import (
	"time"

	"github.com/google/uuid"
)

func newJob(kind NotificationKind, e *Endorsement, now time.Time) *NotificationJob {
	return &NotificationJob{
		ID:            uuid.NewString(),
		EndorsementID: e.ID,
		Kind:          kind,
		Recipient:     e.Email,
		Payload: NotificationPayload{
			EndorsementID:    e.ID,
			ContactName:      e.ContactPersonName,
			OrganizationName: e.OrganizationName,
			Email:            e.Email,
			Headline:         e.Headline,
		},
		Status:        JobPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// verificationJob carries the raw token; it is the only place the raw value
// is persisted, and only until the message is sent.
func verificationJob(e *Endorsement, tok Token, now time.Time) *NotificationJob {
	job := newJob(KindVerificationRequest, e, now)
	job.Payload.Token = tok.Raw
	job.Payload.TokenExpiresAt = timePtr(tok.ExpiresAt)
	return job
}

func approvalJob(now time.Time) JobBuilder {
	return func(e *Endorsement) *NotificationJob {
		return newJob(KindApprovalNotice, e, now)
	}
}

func rejectionJob(now time.Time) JobBuilder {
	return func(e *Endorsement) *NotificationJob {
		job := newJob(KindRejectionNotice, e, now)
		job.Payload.Reason = e.RejectionReason
		return job
	}
}

// reviewRequestedJob alerts reviewers; the recipient is the reviewer topic,
// not the submitter.
func reviewRequestedJob(now time.Time) JobBuilder {
	return func(e *Endorsement) *NotificationJob {
		job := newJob(KindReviewRequested, e, now)
		job.Recipient = "reviewers"
		return job
	}
}
