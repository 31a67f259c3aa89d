// internal/endorsement/submission.go
package endorsement

import (
	"context"
	"strings"
	"time"

	"endorsement-workers/internal/common/logger"
	"endorsement-workers/internal/common/metrics"
	"endorsement-workers/internal/common/observability"
	"endorsement-workers/internal/common/validation"

	"github.com/google/uuid"
)

// Submission is the payload handed over by the intake form.
type Submission struct {
	OrganizationName  string `json:"organization_name"`
	ContactPersonName string `json:"contact_person_name"`
	Email             string `json:"email"`
	Country           string `json:"country"`
	EndorserCategory  string `json:"endorser_category"`
	EndorsementType   string `json:"endorsement_type"`
	EndorsementTier   string `json:"endorsement_tier,omitempty"`
	Headline          string `json:"headline"`
	Statement         string `json:"statement"`
	LogoRef           string `json:"logo_ref,omitempty"`
	VideoLink         string `json:"video_link,omitempty"`
	Website           string `json:"website,omitempty"`
}

// SubmissionSchema describes a well-formed submission.
func SubmissionSchema() validation.JSONSchema {
	text := func(max int) validation.Property {
		return validation.Property{Type: "string", MinLength: validation.IntPtr(1), MaxLength: validation.IntPtr(max)}
	}
	optional := func(max int) validation.Property {
		return validation.Property{Type: "string", MaxLength: validation.IntPtr(max)}
	}
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"organization_name":   text(200),
			"contact_person_name": text(200),
			"email":               text(254),
			"country":             text(100),
			"endorser_category":   text(100),
			"endorsement_type":    {Type: "string", Enum: []string{string(TypeFree), string(TypePaid)}},
			"endorsement_tier":    optional(50),
			"headline":            text(200),
			"statement":           text(5000),
			"logo_ref":            optional(500),
			"video_link":          optional(500),
			"website":             optional(500),
		},
		Required: []string{
			"organization_name", "contact_person_name", "email", "country",
			"endorser_category", "endorsement_type", "headline", "statement",
		},
		AdditionalProperties: false,
	}
}

// Normalize trims every field and canonicalizes the email.
func (s Submission) Normalize() Submission {
	out := Submission{
		OrganizationName:  strings.TrimSpace(s.OrganizationName),
		ContactPersonName: strings.TrimSpace(s.ContactPersonName),
		Email:             NormalizeEmail(s.Email),
		Country:           strings.TrimSpace(s.Country),
		EndorserCategory:  strings.TrimSpace(s.EndorserCategory),
		EndorsementType:   strings.ToLower(strings.TrimSpace(s.EndorsementType)),
		EndorsementTier:   strings.TrimSpace(s.EndorsementTier),
		Headline:          strings.TrimSpace(s.Headline),
		Statement:         strings.TrimSpace(s.Statement),
		LogoRef:           strings.TrimSpace(s.LogoRef),
		VideoLink:         strings.TrimSpace(s.VideoLink),
		Website:           strings.TrimSpace(s.Website),
	}
	return out
}

// Validate checks the normalized submission against SubmissionSchema and the
// email and link formats.
func (s Submission) Validate() error {
	verr := &ValidationError{}

	result := validation.ValidateInput(s.document(), SubmissionSchema())
	for _, fe := range result.Errors {
		verr.Add(fe.Field, fe.Message)
	}

	if s.Email != "" && !validation.ValidateEmail(s.Email) {
		verr.Add("email", "must be a valid email address")
	}
	for field, link := range map[string]string{"website": s.Website, "video_link": s.VideoLink} {
		if link != "" && !validation.ValidateURL(link) {
			verr.Add(field, "must be an http(s) URL")
		}
	}

	if verr.Empty() {
		return nil
	}
	return verr
}

// document maps the non-empty fields onto their schema keys so a blank field
// reads as missing.
func (s Submission) document() map[string]interface{} {
	fields := map[string]string{
		"organization_name":   s.OrganizationName,
		"contact_person_name": s.ContactPersonName,
		"email":               s.Email,
		"country":             s.Country,
		"endorser_category":   s.EndorserCategory,
		"endorsement_type":    s.EndorsementType,
		"endorsement_tier":    s.EndorsementTier,
		"headline":            s.Headline,
		"statement":           s.Statement,
		"logo_ref":            s.LogoRef,
		"video_link":          s.VideoLink,
		"website":             s.Website,
	}
	doc := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if v != "" {
			doc[k] = v
		}
	}
	return doc
}

// Intake turns a submission into a pending_verification record and queues
// the verification message in the same write.
type Intake struct {
	store  Store
	issuer *TokenIssuer
	now    func() time.Time
	logger logger.Logger
}

func NewIntake(store Store, issuer *TokenIssuer, now func() time.Time, log logger.Logger) *Intake {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Intake{store: store, issuer: issuer, now: now, logger: log}
}

// Submit validates sub and creates the record. One endorsement exists per
// email; a second submission fails with ErrDuplicateSubmission.
func (i *Intake) Submit(ctx context.Context, sub Submission) (result *Endorsement, err error) {
	ctx, span := observability.StartSpan(ctx, "endorsement.submit")
	defer func() { observability.EndSpan(span, err) }()

	sub = sub.Normalize()
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	tok, err := i.issuer.Issue()
	if err != nil {
		return nil, err
	}

	now := i.now().UTC()
	e := &Endorsement{
		ID:                uuid.NewString(),
		OrganizationName:  sub.OrganizationName,
		ContactPersonName: sub.ContactPersonName,
		Email:             sub.Email,
		Country:           sub.Country,
		EndorserCategory:  sub.EndorserCategory,
		EndorsementType:   EndorsementType(sub.EndorsementType),
		EndorsementTier:   sub.EndorsementTier,
		Headline:          sub.Headline,
		Statement:         sub.Statement,
		LogoRef:           sub.LogoRef,
		VideoLink:         sub.VideoLink,
		Website:           sub.Website,
		Status:            StatusPendingVerification,
		TokenHash:         tok.Hash,
		TokenExpiresAt:    timePtr(tok.ExpiresAt),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := i.store.Create(ctx, e, verificationJob(e, tok, now)); err != nil {
		return nil, err
	}

	metrics.LifecycleTransitions.WithLabelValues("submit").Inc()
	i.logger.Info("Endorsement submitted", map[string]interface{}{
		"endorsementId": e.ID,
		"type":          e.EndorsementType,
	})
	return e.Clone(), nil
}
