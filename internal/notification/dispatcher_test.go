package notification

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"endorsement-workers/internal/common/config"
	"endorsement-workers/internal/common/logger"
	"endorsement-workers/internal/common/retry"
	"endorsement-workers/internal/endorsement"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to string, msg Message) (string, error) {
	args := m.Called(ctx, to, msg)
	return args.String(0), args.Error(1)
}

type MockAlerter struct {
	mock.Mock
}

func (m *MockAlerter) Alert(ctx context.Context, endorsementID string, msg Message) (string, error) {
	args := m.Called(ctx, endorsementID, msg)
	return args.String(0), args.Error(1)
}

var dispatchNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
		Lease:        time.Minute,
		MaxAttempts:  3,
		Send:         retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Reschedule:   retry.Policy{BaseDelay: 30 * time.Second, MaxDelay: 10 * time.Minute},
	}
}

func seedJob(t *testing.T, store *endorsement.MemoryStore, kind endorsement.NotificationKind) *endorsement.NotificationJob {
	t.Helper()
	job := testJob(kind)
	job.Status = endorsement.JobPending
	job.NextAttemptAt = dispatchNow
	job.Payload.Reason = "not a fit"
	require.NoError(t, store.Create(context.Background(), &endorsement.Endorsement{
		ID:     job.EndorsementID,
		Email:  job.Recipient,
		Status: endorsement.StatusPendingVerification,
	}, job))
	return job
}

func newTestDispatcher(t *testing.T, store *endorsement.MemoryStore, mailer Mailer, alerter Alerter) *Dispatcher {
	d := NewDispatcher(store, NewTemplates(testLinks()), mailer, alerter, testOptions(), logger.NewTestLogger(t), nil)
	d.now = func() time.Time { return dispatchNow }
	return d
}

func onlyJob(t *testing.T, store *endorsement.MemoryStore) endorsement.NotificationJob {
	t.Helper()
	jobs := store.Jobs()
	require.Len(t, jobs, 1)
	return jobs[0]
}

func TestDispatchOnce_SendsAndCompletes(t *testing.T) {
	store := endorsement.NewMemoryStore()
	seedJob(t, store, endorsement.KindVerificationRequest)
	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, "sam+test@x.org", mock.MatchedBy(func(m Message) bool {
		return m.Subject == "Confirm your endorsement for Acme & Sons"
	})).Return("msg-1", nil).Once()

	n, err := newTestDispatcher(t, store, mailer, nil).DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job := onlyJob(t, store)
	assert.Equal(t, endorsement.JobSent, job.Status)
	require.NotNil(t, job.SentAt)
	mailer.AssertExpectations(t)

	n, err = newTestDispatcher(t, store, mailer, nil).DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatchOnce_RetriesTransientThenSucceeds(t *testing.T) {
	store := endorsement.NewMemoryStore()
	seedJob(t, store, endorsement.KindApprovalNotice)
	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything).Return("", fmt.Errorf("send email: %w", syscall.ECONNRESET)).Once()
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything).Return("msg-2", nil).Once()

	_, err := newTestDispatcher(t, store, mailer, nil).DispatchOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, endorsement.JobSent, onlyJob(t, store).Status)
	mailer.AssertNumberOfCalls(t, "Send", 2)
}

func TestDispatchOnce_ReschedulesWithBackoff(t *testing.T) {
	store := endorsement.NewMemoryStore()
	seedJob(t, store, endorsement.KindRejectionNotice)
	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything).Return("", &smithy.GenericAPIError{Code: "Throttling", Message: "Maximum sending rate exceeded"})

	_, err := newTestDispatcher(t, store, mailer, nil).DispatchOnce(context.Background())
	require.NoError(t, err)

	job := onlyJob(t, store)
	assert.Equal(t, endorsement.JobPending, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, dispatchNow.Add(30*time.Second), job.NextAttemptAt)
	assert.Contains(t, job.LastError, "Maximum sending rate exceeded")
	mailer.AssertNumberOfCalls(t, "Send", 2)
}

func TestDispatchOnce_FailsAfterMaxAttempts(t *testing.T) {
	store := endorsement.NewMemoryStore()
	seedJob(t, store, endorsement.KindApprovalNotice)
	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything).Return("", fmt.Errorf("dial tcp: %w", syscall.ETIMEDOUT))

	d := newTestDispatcher(t, store, mailer, nil)
	for i := 0; i < testOptions().MaxAttempts; i++ {
		_, err := d.DispatchOnce(context.Background())
		require.NoError(t, err)
		d.now = func() time.Time { return dispatchNow.Add(time.Hour * time.Duration(i+1)) }
	}

	job := onlyJob(t, store)
	assert.Equal(t, endorsement.JobFailed, job.Status)
	assert.Equal(t, 3, job.Attempts)
}

func TestDispatchOnce_UnclassifiedErrorSkipsInProcessRetry(t *testing.T) {
	store := endorsement.NewMemoryStore()
	seedJob(t, store, endorsement.KindApprovalNotice)
	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("unexpected response")).Once()

	_, err := newTestDispatcher(t, store, mailer, nil).DispatchOnce(context.Background())
	require.NoError(t, err)

	job := onlyJob(t, store)
	assert.Equal(t, endorsement.JobPending, job.Status)
	assert.Equal(t, 1, job.Attempts)
	mailer.AssertExpectations(t)
}

func TestDispatchOnce_SkipsSupersededVerification(t *testing.T) {
	store := endorsement.NewMemoryStore()
	job := seedJob(t, store, endorsement.KindVerificationRequest)
	_, err := store.Apply(context.Background(), job.EndorsementID, endorsement.Mutation{
		Kind:           endorsement.MutationReissueToken,
		TokenHash:      "fresh-hash",
		TokenExpiresAt: dispatchNow.Add(time.Hour),
		At:             dispatchNow,
	}, nil)
	require.NoError(t, err)

	mailer := new(MockMailer)
	n, err := newTestDispatcher(t, store, mailer, nil).DispatchOnce(context.Background())
	require.NoError(t, err)

	assert.Zero(t, n)
	assert.Equal(t, endorsement.JobSuperseded, onlyJob(t, store).Status)
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchOnce_PermanentErrorFailsImmediately(t *testing.T) {
	store := endorsement.NewMemoryStore()
	seedJob(t, store, endorsement.KindApprovalNotice)
	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything).Return("", Permanent(errors.New("MessageRejected"))).Once()

	_, err := newTestDispatcher(t, store, mailer, nil).DispatchOnce(context.Background())
	require.NoError(t, err)

	job := onlyJob(t, store)
	assert.Equal(t, endorsement.JobFailed, job.Status)
	assert.Equal(t, 1, job.Attempts)
	mailer.AssertExpectations(t)
}

func TestDispatchOnce_ReviewAlerts(t *testing.T) {
	t.Run("published to reviewers", func(t *testing.T) {
		store := endorsement.NewMemoryStore()
		seedJob(t, store, endorsement.KindReviewRequested)
		alerter := new(MockAlerter)
		alerter.On("Alert", mock.Anything, "end-1", mock.Anything).Return("sns-1", nil).Once()

		_, err := newTestDispatcher(t, store, new(MockMailer), alerter).DispatchOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, endorsement.JobSent, onlyJob(t, store).Status)
		alerter.AssertExpectations(t)
	})

	t.Run("skipped when disabled", func(t *testing.T) {
		store := endorsement.NewMemoryStore()
		seedJob(t, store, endorsement.KindReviewRequested)
		mailer := new(MockMailer)

		_, err := newTestDispatcher(t, store, mailer, nil).DispatchOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, endorsement.JobSent, onlyJob(t, store).Status)
		mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestDispatchOnce_ReclaimsExpiredLease(t *testing.T) {
	store := endorsement.NewMemoryStore()
	seedJob(t, store, endorsement.KindApprovalNotice)

	claimed, err := store.ClaimJobs(context.Background(), dispatchNow, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything).Return("msg", nil).Once()
	d := newTestDispatcher(t, store, mailer, nil)

	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	d.now = func() time.Time { return dispatchNow.Add(2 * time.Minute) }
	n, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, endorsement.JobSent, onlyJob(t, store).Status)
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := endorsement.NewMemoryStore()
	seedJob(t, store, endorsement.KindApprovalNotice)
	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything).Return("msg", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newTestDispatcher(t, store, mailer, nil).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return store.Jobs()[0].Status == endorsement.JobSent
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestOptionsFromConfigDefaults(t *testing.T) {
	opts := OptionsFromConfig(config.DispatcherConfig{})
	assert.Equal(t, 5*time.Second, opts.PollInterval)
	assert.Equal(t, 20, opts.BatchSize)
	assert.Equal(t, 8, opts.MaxAttempts)
	assert.Equal(t, retry.DefaultPolicy.MaxAttempts, opts.Send.MaxAttempts)
	assert.Equal(t, 10*time.Minute, opts.Reschedule.MaxDelay)
}
