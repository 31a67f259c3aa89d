// internal/workers/endorsement/check-endorsement-status/models.go
package checkendorsementstatus

import "endorsement-workers/internal/endorsement"

type Input struct {
	Email string `json:"email"`
}

type Output struct {
	Found       bool                    `json:"found"`
	Message     string                  `json:"message,omitempty"`
	Endorsement *endorsement.StatusView `json:"endorsement,omitempty"`
}

const MessageNotFound = "No endorsement found for this email."
