// internal/workers/endorsement/verify-endorsement/models.go
package verifyendorsement

import "endorsement-workers/internal/endorsement"

type Input struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// Output is returned to the verification page. Lifecycle failures complete
// the job with Success=false instead of failing it.
type Output struct {
	Success     bool                    `json:"success"`
	Message     string                  `json:"message"`
	ErrorCode   string                  `json:"errorCode,omitempty"`
	Endorsement *endorsement.StatusView `json:"endorsement,omitempty"`
}

const (
	MessageVerified        = "Email verified. Your endorsement is now under review."
	MessageAlreadyVerified = "This verification link was already used."
	MessageInvalidToken    = "This verification link is invalid or has expired."
	MessageNotFound        = "No endorsement found for this email."
	MessageMissingInput    = "Email and token are required."
)
