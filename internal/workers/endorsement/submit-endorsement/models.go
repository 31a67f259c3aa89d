// internal/workers/endorsement/submit-endorsement/models.go
package submitendorsement

import (
	"time"

	"endorsement-workers/internal/endorsement"
)

// Input is the validated intake form as process variables.
type Input struct {
	OrganizationName  string `json:"organizationName"`
	ContactPersonName string `json:"contactPersonName"`
	Email             string `json:"email"`
	Country           string `json:"country"`
	EndorserCategory  string `json:"endorserCategory"`
	EndorsementType   string `json:"endorsementType"`
	EndorsementTier   string `json:"endorsementTier,omitempty"`
	Headline          string `json:"headline"`
	Statement         string `json:"statement"`
	LogoRef           string `json:"logoRef,omitempty"`
	VideoLink         string `json:"videoLink,omitempty"`
	Website           string `json:"website,omitempty"`
}

func (in *Input) toSubmission() endorsement.Submission {
	return endorsement.Submission{
		OrganizationName:  in.OrganizationName,
		ContactPersonName: in.ContactPersonName,
		Email:             in.Email,
		Country:           in.Country,
		EndorserCategory:  in.EndorserCategory,
		EndorsementType:   in.EndorsementType,
		EndorsementTier:   in.EndorsementTier,
		Headline:          in.Headline,
		Statement:         in.Statement,
		LogoRef:           in.LogoRef,
		VideoLink:         in.VideoLink,
		Website:           in.Website,
	}
}

type Output struct {
	EndorsementID string             `json:"endorsementId"`
	Status        endorsement.Status `json:"status"`
	CreatedAt     time.Time          `json:"createdAt"`
}
