// internal/endorsement/transitions.go
package endorsement

import (
	"crypto/subtle"
	"time"
)

// allowedTransitions lists every legal status change. None is reversible.
var allowedTransitions = map[Status][]Status{
	StatusPendingVerification: {StatusPendingReview, StatusRejected},
	StatusPendingReview:       {StatusApproved, StatusRejected},
	StatusApproved:            {},
	StatusRejected:            {},
}

// CanTransition checks if a status transition is allowed.
func CanTransition(from, to Status) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// MutationKind names a guarded store update.
type MutationKind string

const (
	MutationVerify       MutationKind = "verify"
	MutationApprove      MutationKind = "approve"
	MutationReject       MutationKind = "reject"
	MutationFeature      MutationKind = "feature"
	MutationUnfeature    MutationKind = "unfeature"
	MutationReissueToken MutationKind = "reissue_token"
)

// Mutation is a compare-and-swap update. Its guard is evaluated against the
// persisted record at write time; Stores must apply it atomically.
type Mutation struct {
	Kind MutationKind
	// TokenHash is the expected hash for verify and the new hash for reissue.
	TokenHash      string
	TokenExpiresAt time.Time
	Reason         string
	Actor          string
	At             time.Time
}

// Permits reports whether the mutation's guard holds for e.
func (m Mutation) Permits(e *Endorsement) bool {
	switch m.Kind {
	case MutationVerify:
		return e.Status == StatusPendingVerification &&
			!e.Verified &&
			CanTransition(e.Status, StatusPendingReview) &&
			hashesEqual(e.TokenHash, m.TokenHash) &&
			e.TokenExpiresAt != nil && m.At.Before(*e.TokenExpiresAt)
	case MutationApprove:
		return e.Status == StatusPendingReview && e.Verified && CanTransition(e.Status, StatusApproved)
	case MutationReject:
		return CanTransition(e.Status, StatusRejected)
	case MutationFeature:
		return e.Status == StatusApproved && !e.Featured
	case MutationUnfeature:
		return e.Featured
	case MutationReissueToken:
		return e.Status == StatusPendingVerification && !e.Verified
	default:
		return false
	}
}

// ApplyTo performs the mutation on e. Callers must check Permits first.
func (m Mutation) ApplyTo(e *Endorsement) {
	switch m.Kind {
	case MutationVerify:
		e.Verified = true
		e.Status = StatusPendingReview
		e.VerifiedAt = timePtr(m.At)
		e.TokenHash = ""
		e.TokenExpiresAt = nil
	case MutationApprove:
		e.Status = StatusApproved
		e.ApprovedAt = timePtr(m.At)
		e.ReviewedBy = m.Actor
	case MutationReject:
		e.Status = StatusRejected
		e.RejectionReason = m.Reason
		e.ReviewedBy = m.Actor
	case MutationFeature:
		e.Featured = true
		e.ReviewedBy = m.Actor
	case MutationUnfeature:
		e.Featured = false
		e.ReviewedBy = m.Actor
	case MutationReissueToken:
		e.TokenHash = m.TokenHash
		e.TokenExpiresAt = timePtr(m.TokenExpiresAt)
	}
	e.UpdatedAt = m.At
}

func hashesEqual(stored, presented string) bool {
	if stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

// CheckInvariants reports the first lifecycle invariant e violates, if any.
func CheckInvariants(e *Endorsement) error {
	switch {
	case e.Featured && e.Status != StatusApproved:
		return NewValidationError("featured", "featured requires status approved")
	case e.Status == StatusRejected && e.RejectionReason == "":
		return NewValidationError("rejectionReason", "rejected records need a reason")
	case e.Status != StatusRejected && e.RejectionReason != "":
		return NewValidationError("rejectionReason", "only rejected records carry a reason")
	case (e.Status == StatusPendingReview || e.Status == StatusApproved) && !e.Verified:
		return NewValidationError("verified", "review requires a verified email")
	case e.Verified && e.VerifiedAt == nil:
		return NewValidationError("verifiedAt", "verified records carry verified_at")
	case e.Status == StatusApproved && e.ApprovedAt == nil:
		return NewValidationError("approvedAt", "approved records carry approved_at")
	}
	return nil
}
