// internal/endorsement/memory_store.go
package endorsement

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records and the notification outbox in process. A single
// mutex makes every guard check and write atomic.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Endorsement
	byEmail map[string]string
	jobs    map[string]*NotificationJob
	order   []string
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Outbox = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[string]*Endorsement{},
		byEmail: map[string]string{},
		jobs:    map[string]*NotificationJob{},
	}
}

func (s *MemoryStore) Create(ctx context.Context, e *Endorsement, job *NotificationJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	email := NormalizeEmail(e.Email)
	if _, exists := s.byEmail[email]; exists {
		return ErrDuplicateSubmission
	}
	if _, exists := s.records[e.ID]; exists {
		return ErrDuplicateSubmission
	}

	s.records[e.ID] = e.Clone()
	s.byEmail[email] = e.ID
	s.enqueueLocked(job)
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*Endorsement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*Endorsement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.records[id].Clone(), nil
}

func (s *MemoryStore) Apply(ctx context.Context, id string, m Mutation, notify JobBuilder) (*Endorsement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !m.Permits(e) {
		return nil, &StaleError{Current: e.Clone()}
	}

	m.ApplyTo(e)
	updated := e.Clone()
	if m.Kind == MutationReissueToken {
		s.supersedeLocked(id, KindVerificationRequest, m.At)
	}
	if notify != nil {
		s.enqueueLocked(notify(updated))
	}
	return updated, nil
}

func (s *MemoryStore) SearchApproved(ctx context.Context, q ShowcaseQuery) ([]*Endorsement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	q = q.Normalize()
	var out []*Endorsement
	for _, e := range s.records {
		if MatchesShowcase(e, q) {
			out = append(out, e.Clone())
		}
	}
	SortShowcase(out)
	return out, nil
}

// supersedeLocked retires unsent jobs of kind for one endorsement.
func (s *MemoryStore) supersedeLocked(endorsementID string, kind NotificationKind, at time.Time) {
	for _, id := range s.order {
		j := s.jobs[id]
		if j.EndorsementID == endorsementID && j.Kind == kind && j.Status == JobPending {
			j.Status = JobSuperseded
			j.UpdatedAt = at
		}
	}
}

func (s *MemoryStore) enqueueLocked(job *NotificationJob) {
	if job == nil {
		return
	}
	j := *job
	if j.Status == "" {
		j.Status = JobPending
	}
	s.jobs[j.ID] = &j
	s.order = append(s.order, j.ID)
}

func (s *MemoryStore) ClaimJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*NotificationJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*NotificationJob
	for _, id := range s.order {
		j := s.jobs[id]
		switch {
		case j.Status == JobPending && !j.NextAttemptAt.After(now):
		case j.Status == JobSending && j.LockedUntil != nil && j.LockedUntil.Before(now):
		default:
			continue
		}
		due = append(due, j)
	}
	sort.SliceStable(due, func(a, b int) bool { return due[a].NextAttemptAt.Before(due[b].NextAttemptAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]*NotificationJob, 0, len(due))
	for _, j := range due {
		j.Status = JobSending
		j.LockedUntil = timePtr(now.Add(lease))
		j.UpdatedAt = now
		c := *j
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryStore) CompleteJob(ctx context.Context, id string, at time.Time) error {
	return s.updateJob(ctx, id, func(j *NotificationJob) {
		j.Status = JobSent
		j.SentAt = timePtr(at)
		j.LockedUntil = nil
		j.UpdatedAt = at
	})
}

func (s *MemoryStore) RescheduleJob(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	return s.updateJob(ctx, id, func(j *NotificationJob) {
		j.Status = JobPending
		j.Attempts = attempts
		j.NextAttemptAt = next
		j.LastError = lastErr
		j.LockedUntil = nil
	})
}

func (s *MemoryStore) FailJob(ctx context.Context, id string, attempts int, lastErr string) error {
	return s.updateJob(ctx, id, func(j *NotificationJob) {
		j.Status = JobFailed
		j.Attempts = attempts
		j.LastError = lastErr
		j.LockedUntil = nil
	})
}

func (s *MemoryStore) updateJob(ctx context.Context, id string, fn func(*NotificationJob)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	fn(j)
	return nil
}

// Jobs returns a snapshot of every notification job in enqueue order.
func (s *MemoryStore) Jobs() []NotificationJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]NotificationJob, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.jobs[id])
	}
	return out
}
