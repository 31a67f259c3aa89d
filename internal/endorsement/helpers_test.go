package endorsement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type lifecycle struct {
	store    *MemoryStore
	clock    *fakeClock
	issuer   *TokenIssuer
	intake   *Intake
	verifier *Verifier
	engine   *Engine
}

func newLifecycle() *lifecycle {
	store := NewMemoryStore()
	clock := newFakeClock()
	issuer := NewTokenIssuer(DefaultTokenTTL, clock.Now)
	return &lifecycle{
		store:    store,
		clock:    clock,
		issuer:   issuer,
		intake:   NewIntake(store, issuer, clock.Now, nil),
		verifier: NewVerifier(store, issuer, clock.Now, nil),
		engine:   NewEngine(store, clock.Now, nil),
	}
}

func validSubmission(email string) Submission {
	return Submission{
		OrganizationName:  "Acme Cooperative",
		ContactPersonName: "Sam Rivera",
		Email:             email,
		Country:           "Kenya",
		EndorserCategory:  "NGO",
		EndorsementType:   "free",
		Headline:          "Open standards for all",
		Statement:         "We support this initiative wholeheartedly.",
		Website:           "https://acme.example.org",
	}
}

// submit creates a record and returns it with the raw token from its
// verification job.
func (l *lifecycle) submit(t *testing.T, email string) (*Endorsement, string) {
	t.Helper()
	e, err := l.intake.Submit(context.Background(), validSubmission(email))
	require.NoError(t, err)
	return e, l.latestToken(t, e.ID)
}

func (l *lifecycle) latestToken(t *testing.T, id string) string {
	t.Helper()
	token := ""
	for _, j := range l.store.Jobs() {
		if j.EndorsementID == id && j.Kind == KindVerificationRequest {
			token = j.Payload.Token
		}
	}
	require.NotEmpty(t, token)
	return token
}

func (l *lifecycle) verified(t *testing.T, email string) *Endorsement {
	t.Helper()
	_, token := l.submit(t, email)
	e, err := l.verifier.Verify(context.Background(), email, token)
	require.NoError(t, err)
	return e
}

func (l *lifecycle) approved(t *testing.T, email string) *Endorsement {
	t.Helper()
	e := l.verified(t, email)
	out, err := l.engine.Apply(context.Background(), Reviewer{ID: "rev-1"}, e.ID, Approve{})
	require.NoError(t, err)
	return out
}

func (l *lifecycle) jobsFor(id string, kind NotificationKind) []NotificationJob {
	var out []NotificationJob
	for _, j := range l.store.Jobs() {
		if j.EndorsementID == id && j.Kind == kind {
			out = append(out, j)
		}
	}
	return out
}
