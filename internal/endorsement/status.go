// internal/endorsement/status.go
package endorsement

import (
	"context"
	"time"

	"endorsement-workers/internal/common/observability"
)

// DisplayState is the submitter-facing summary of where a record stands.
type DisplayState string

const (
	DisplayEmailVerificationRequired DisplayState = "email_verification_required"
	DisplayUnderReview               DisplayState = "under_review"
	DisplayApproved                  DisplayState = "approved"
	DisplayRejected                  DisplayState = "rejected"
	DisplayProcessing                DisplayState = "processing"
)

var displayLabels = map[DisplayState]string{
	DisplayEmailVerificationRequired: "Email verification required",
	DisplayUnderReview:               "Under review",
	DisplayApproved:                  "Approved",
	DisplayRejected:                  "Rejected",
	DisplayProcessing:                "Processing",
}

// Label is the human-readable form of the state.
func (d DisplayState) Label() string {
	if l, ok := displayLabels[d]; ok {
		return l
	}
	return displayLabels[DisplayProcessing]
}

// DeriveDisplayState maps (status, verified) onto a display state. Any
// combination not modeled falls back to processing.
func DeriveDisplayState(status Status, verified bool) DisplayState {
	switch {
	case status == StatusPendingVerification && !verified:
		return DisplayEmailVerificationRequired
	case status == StatusPendingReview:
		return DisplayUnderReview
	case status == StatusApproved:
		return DisplayApproved
	case status == StatusRejected:
		return DisplayRejected
	default:
		return DisplayProcessing
	}
}

// StatusView is what a submitter sees about their own endorsement.
type StatusView struct {
	ID               string          `json:"id"`
	OrganizationName string          `json:"organizationName"`
	Headline         string          `json:"headline"`
	EndorsementType  EndorsementType `json:"endorsementType"`
	Status           Status          `json:"status"`
	Verified         bool            `json:"verified"`
	Featured         bool            `json:"featured"`
	DisplayState     DisplayState    `json:"displayState"`
	DisplayLabel     string          `json:"displayLabel"`
	RejectionReason  string          `json:"rejectionReason,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	VerifiedAt       *time.Time      `json:"verifiedAt,omitempty"`
	ApprovedAt       *time.Time      `json:"approvedAt,omitempty"`
}

// NewStatusView projects e for its submitter. The rejection reason is only
// included once the record is rejected.
func NewStatusView(e *Endorsement) StatusView {
	state := DeriveDisplayState(e.Status, e.Verified)
	view := StatusView{
		ID:               e.ID,
		OrganizationName: e.OrganizationName,
		Headline:         e.Headline,
		EndorsementType:  e.EndorsementType,
		Status:           e.Status,
		Verified:         e.Verified,
		Featured:         e.Featured,
		DisplayState:     state,
		DisplayLabel:     state.Label(),
		CreatedAt:        e.CreatedAt,
		VerifiedAt:       cloneTime(e.VerifiedAt),
		ApprovedAt:       cloneTime(e.ApprovedAt),
	}
	if e.Status == StatusRejected {
		view.RejectionReason = e.RejectionReason
	}
	return view
}

type StatusService struct {
	store Store
}

func NewStatusService(store Store) *StatusService {
	return &StatusService{store: store}
}

// Lookup returns the status of the endorsement registered under email.
func (s *StatusService) Lookup(ctx context.Context, email string) (view *StatusView, err error) {
	ctx, span := observability.StartSpan(ctx, "endorsement.status")
	defer func() { observability.EndSpan(span, err) }()

	email = NormalizeEmail(email)
	if email == "" {
		return nil, NewValidationError("email", "is required")
	}

	e, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	v := NewStatusView(e)
	return &v, nil
}
