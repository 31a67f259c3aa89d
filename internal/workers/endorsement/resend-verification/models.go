// internal/workers/endorsement/resend-verification/models.go
package resendverification

import "time"

type Input struct {
	Email string `json:"email"`
}

type Output struct {
	Success        bool       `json:"success"`
	Message        string     `json:"message"`
	ErrorCode      string     `json:"errorCode,omitempty"`
	EndorsementID  string     `json:"endorsementId,omitempty"`
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty"`
}

const (
	MessageResent          = "A new verification link has been sent."
	MessageAlreadyVerified = "This email address is already verified."
	MessageNotPending      = "This endorsement is no longer awaiting verification."
	MessageNotFound        = "No endorsement found for this email."
)
