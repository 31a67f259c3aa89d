// internal/workers/endorsement/moderate-endorsement/models.go
package moderateendorsement

import (
	"time"

	"endorsement-workers/internal/endorsement"
)

// Input is a reviewer decision from the review task form. ReviewerID is
// the authenticated assignee of the user task.
type Input struct {
	EndorsementID string `json:"endorsementId"`
	Action        string `json:"action"`
	Reason        string `json:"reason,omitempty"`
	ReviewerID    string `json:"reviewerId"`
}

type Output struct {
	EndorsementID   string             `json:"endorsementId"`
	Action          string             `json:"action"`
	Status          endorsement.Status `json:"status"`
	Verified        bool               `json:"verified"`
	Featured        bool               `json:"featured"`
	RejectionReason string             `json:"rejectionReason,omitempty"`
	ApprovedAt      *time.Time         `json:"approvedAt,omitempty"`
}
