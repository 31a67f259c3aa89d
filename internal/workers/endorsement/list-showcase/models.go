// internal/workers/endorsement/list-showcase/models.go
package listshowcase

import "endorsement-workers/internal/endorsement"

type Input struct {
	Search   string `json:"search,omitempty"`
	Category string `json:"category,omitempty"`
	Country  string `json:"country,omitempty"`
}

type Output struct {
	Endorsements []endorsement.PublicEndorsement `json:"endorsements"`
	Total        int                             `json:"total"`
}
