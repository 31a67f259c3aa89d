// Package endorsementtest builds in-memory lifecycles for worker tests.
package endorsementtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"endorsement-workers/internal/common/logger"
	"endorsement-workers/internal/endorsement"

	"github.com/stretchr/testify/require"
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Fixture wires every lifecycle service to one MemoryStore and Clock.
type Fixture struct {
	Store    *endorsement.MemoryStore
	Clock    *Clock
	Issuer   *endorsement.TokenIssuer
	Intake   *endorsement.Intake
	Verifier *endorsement.Verifier
	Engine   *endorsement.Engine
	Status   *endorsement.StatusService
}

func New(t testing.TB) *Fixture {
	store := endorsement.NewMemoryStore()
	clock := &Clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	issuer := endorsement.NewTokenIssuer(endorsement.DefaultTokenTTL, clock.Now)
	log := logger.NewTestLogger(t)
	return &Fixture{
		Store:    store,
		Clock:    clock,
		Issuer:   issuer,
		Intake:   endorsement.NewIntake(store, issuer, clock.Now, log),
		Verifier: endorsement.NewVerifier(store, issuer, clock.Now, log),
		Engine:   endorsement.NewEngine(store, clock.Now, log),
		Status:   endorsement.NewStatusService(store),
	}
}

func Submission(email string) endorsement.Submission {
	return endorsement.Submission{
		OrganizationName:  "Acme Cooperative",
		ContactPersonName: "Sam Rivera",
		Email:             email,
		Country:           "Kenya",
		EndorserCategory:  "NGO",
		EndorsementType:   "free",
		Headline:          "Open standards for all",
		Statement:         "We support this initiative wholeheartedly.",
	}
}

// Submit creates a pending record and returns it with its raw token.
func (f *Fixture) Submit(t testing.TB, email string) (*endorsement.Endorsement, string) {
	t.Helper()
	e, err := f.Intake.Submit(context.Background(), Submission(email))
	require.NoError(t, err)
	return e, f.LatestToken(t, e.ID)
}

// LatestToken reads the raw token from the newest verification job.
func (f *Fixture) LatestToken(t testing.TB, id string) string {
	t.Helper()
	token := ""
	for _, job := range f.Jobs(id, endorsement.KindVerificationRequest) {
		token = job.Payload.Token
	}
	require.NotEmpty(t, token, "no verification job for %s", id)
	return token
}

// Verified submits and verifies, leaving the record in pending_review.
func (f *Fixture) Verified(t testing.TB, email string) *endorsement.Endorsement {
	t.Helper()
	_, token := f.Submit(t, email)
	e, err := f.Verifier.Verify(context.Background(), email, token)
	require.NoError(t, err)
	return e
}

// Approved verifies and approves a record.
func (f *Fixture) Approved(t testing.TB, email string) *endorsement.Endorsement {
	t.Helper()
	e := f.Verified(t, email)
	out, err := f.Engine.Apply(context.Background(), endorsement.Reviewer{ID: "rev-1"}, e.ID, endorsement.Approve{})
	require.NoError(t, err)
	return out
}

// Jobs returns the outbox rows of kind for one endorsement, oldest first.
func (f *Fixture) Jobs(id string, kind endorsement.NotificationKind) []endorsement.NotificationJob {
	var out []endorsement.NotificationJob
	for _, job := range f.Store.Jobs() {
		if job.EndorsementID == id && job.Kind == kind {
			out = append(out, job)
		}
	}
	return out
}
