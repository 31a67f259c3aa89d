// internal/endorsement/store.go
package endorsement

import (
	"context"
	"time"
)

// Store is the single source of truth for endorsements. Every state change
// goes through Apply, which writes only when the mutation's guard holds.
type Store interface {
	// Create inserts a new record together with its notification job.
	// It fails with ErrDuplicateSubmission when the email is taken.
	Create(ctx context.Context, e *Endorsement, job *NotificationJob) error
	GetByID(ctx context.Context, id string) (*Endorsement, error)
	GetByEmail(ctx context.Context, email string) (*Endorsement, error)
	// Apply runs m as a compare-and-swap. On a failed guard it returns a
	// *StaleError with the current record and writes nothing. The job from
	// notify is stored in the same transaction as the update.
	Apply(ctx context.Context, id string, m Mutation, notify JobBuilder) (*Endorsement, error)
	SearchApproved(ctx context.Context, q ShowcaseQuery) ([]*Endorsement, error)
}

// Outbox is the dispatcher's view of pending notification jobs.
type Outbox interface {
	// ClaimJobs leases up to limit due jobs, including jobs whose previous
	// lease expired.
	ClaimJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*NotificationJob, error)
	CompleteJob(ctx context.Context, id string, at time.Time) error
	RescheduleJob(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error
	FailJob(ctx context.Context, id string, attempts int, lastErr string) error
}

// TransitionListener observes committed transitions. Failures are logged and
// never affect the transition result.
type TransitionListener interface {
	OnTransition(ctx context.Context, e *Endorsement, kind MutationKind) error
}

// TransitionListenerFunc adapts a function to TransitionListener.
type TransitionListenerFunc func(ctx context.Context, e *Endorsement, kind MutationKind) error

func (f TransitionListenerFunc) OnTransition(ctx context.Context, e *Endorsement, kind MutationKind) error {
	return f(ctx, e, kind)
}
