package endorsement

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func columnNames() []string {
	cols := strings.Split(endorsementColumns, ",")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return cols
}

func nullable(t *time.Time) driver.Value {
	if t == nil {
		return nil
	}
	return *t
}

func endorsementRow(e *Endorsement) []driver.Value {
	return []driver.Value{
		e.ID, e.OrganizationName, e.ContactPersonName, e.Email, e.Country,
		e.EndorserCategory, string(e.EndorsementType), e.EndorsementTier, e.Headline, e.Statement,
		e.LogoRef, e.VideoLink, e.Website, string(e.Status), e.Verified, e.Featured, e.TokenHash,
		nullable(e.TokenExpiresAt), e.RejectionReason, e.ReviewedBy, e.CreatedAt, nullable(e.VerifiedAt),
		nullable(e.ApprovedAt), e.UpdatedAt,
	}
}

func sampleRecord(status Status, verified bool) *Endorsement {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	e := &Endorsement{
		ID:                "end-1",
		OrganizationName:  "Acme Cooperative",
		ContactPersonName: "Sam Rivera",
		Email:             "a@x.org",
		Country:           "Kenya",
		EndorserCategory:  "NGO",
		EndorsementType:   TypeFree,
		Headline:          "Open standards",
		Statement:         "We support it.",
		Status:            status,
		Verified:          verified,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if verified {
		e.VerifiedAt = timePtr(now)
	}
	return e
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStore_CreateWritesRecordAndJob(t *testing.T) {
	store, mock := newMockStore(t)
	e := sampleRecord(StatusPendingVerification, false)
	job := verificationJob(e, Token{Raw: "raw", Hash: "hash", ExpiresAt: e.CreatedAt.Add(DefaultTokenTTL)}, e.CreatedAt)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO endorsements").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notification_jobs").
		WithArgs(job.ID, e.ID, "verification_request", "a@x.org", sqlmock.AnyArg(), job.NextAttemptAt, job.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Create(context.Background(), e, job))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateDuplicateEmail(t *testing.T) {
	store, mock := newMockStore(t)
	e := sampleRecord(StatusPendingVerification, false)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO endorsements").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := store.Create(context.Background(), e, nil)
	assert.ErrorIs(t, err, ErrDuplicateSubmission)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyApproveEnqueuesNotice(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	updated := sampleRecord(StatusApproved, true)
	updated.ApprovedAt = timePtr(now)
	updated.ReviewedBy = "rev-1"

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE endorsements SET status = 'approved'`).
		WithArgs("end-1", now, "rev-1").
		WillReturnRows(sqlmock.NewRows(columnNames()).AddRow(endorsementRow(updated)...))
	mock.ExpectExec("INSERT INTO notification_jobs").
		WithArgs(sqlmock.AnyArg(), "end-1", "approval_notice", "a@x.org", sqlmock.AnyArg(), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := store.Apply(context.Background(), "end-1", Mutation{Kind: MutationApprove, Actor: "rev-1", At: now}, approvalJob(now))
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, got.ApprovedAt.Equal(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyReissueSupersedesUnsentVerification(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	expires := now.Add(DefaultTokenTTL)
	updated := sampleRecord(StatusPendingVerification, false)
	updated.TokenHash = "new-hash"
	updated.TokenExpiresAt = timePtr(expires)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE endorsements SET token_hash = \$3`).
		WithArgs("end-1", now, "new-hash", expires).
		WillReturnRows(sqlmock.NewRows(columnNames()).AddRow(endorsementRow(updated)...))
	mock.ExpectExec(`SET status = 'superseded'`).
		WithArgs("end-1", "verification_request", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notification_jobs").
		WithArgs(sqlmock.AnyArg(), "end-1", "verification_request", "a@x.org", sqlmock.AnyArg(), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tok := Token{Raw: "raw", Hash: "new-hash", ExpiresAt: expires}
	_, err := store.Apply(context.Background(), "end-1", Mutation{
		Kind:           MutationReissueToken,
		TokenHash:      tok.Hash,
		TokenExpiresAt: tok.ExpiresAt,
		At:             now,
	}, func(e *Endorsement) *NotificationJob { return verificationJob(e, tok, now) })
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyGuardFailureReturnsCurrentState(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	current := sampleRecord(StatusPendingVerification, false)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE endorsements SET status = 'approved'`).
		WillReturnRows(sqlmock.NewRows(columnNames()))
	mock.ExpectRollback()
	mock.ExpectQuery(`SELECT .+ FROM endorsements WHERE id = \$1`).
		WithArgs("end-1").
		WillReturnRows(sqlmock.NewRows(columnNames()).AddRow(endorsementRow(current)...))

	_, err := store.Apply(context.Background(), "end-1", Mutation{Kind: MutationApprove, Actor: "rev-1", At: now}, approvalJob(now))

	var stale *StaleError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, StatusPendingVerification, stale.Current.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyMissingRecord(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE endorsements SET featured = TRUE`).
		WillReturnRows(sqlmock.NewRows(columnNames()))
	mock.ExpectRollback()
	mock.ExpectQuery(`SELECT .+ FROM endorsements WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(columnNames()))

	_, err := store.Apply(context.Background(), "missing", Mutation{Kind: MutationFeature, Actor: "rev", At: time.Now()}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyDatabaseErrorRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE endorsements`).WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	_, err := store.Apply(context.Background(), "end-1", Mutation{Kind: MutationUnfeature, Actor: "rev", At: time.Now()}, nil)
	require.Error(t, err)
	var stale *StaleError
	assert.False(t, errors.As(err, &stale))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutationSQL_EveryKind(t *testing.T) {
	for _, kind := range []MutationKind{MutationVerify, MutationApprove, MutationReject, MutationFeature, MutationUnfeature, MutationReissueToken} {
		set, guard, _, err := mutationSQL(Mutation{Kind: kind})
		require.NoError(t, err, kind)
		assert.NotEmpty(t, set, kind)
		assert.NotEmpty(t, guard, kind)
	}
	_, _, _, err := mutationSQL(Mutation{Kind: "purge"})
	assert.Error(t, err)
}

func TestPostgresStore_SearchApprovedBuildsFilters(t *testing.T) {
	store, mock := newMockStore(t)
	rec := sampleRecord(StatusApproved, true)
	rec.ApprovedAt = timePtr(rec.CreatedAt)

	mock.ExpectQuery(`WHERE status = 'approved' AND \(organization_name ILIKE \$1 OR headline ILIKE \$1 OR statement ILIKE \$1\) AND lower\(country\) = lower\(\$2\)`).
		WithArgs(`%50\%%`, "Kenya").
		WillReturnRows(sqlmock.NewRows(columnNames()).AddRow(endorsementRow(rec)...))

	got, err := store.SearchApproved(context.Background(), ShowcaseQuery{Search: " 50% ", Country: "Kenya"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "end-1", got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimJobs(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	payload, err := json.Marshal(NotificationPayload{EndorsementID: "end-1", Email: "a@x.org", Token: "raw"})
	require.NoError(t, err)

	mock.ExpectQuery(`UPDATE notification_jobs`).
		WithArgs(now, now.Add(time.Minute), 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "endorsement_id", "kind", "recipient", "payload", "attempts", "next_attempt_at", "created_at"}).
			AddRow("job-1", "end-1", "verification_request", "a@x.org", payload, 1, now, now))

	jobs, err := store.ClaimJobs(context.Background(), now, 5, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, KindVerificationRequest, jobs[0].Kind)
	assert.Equal(t, "raw", jobs[0].Payload.Token)
	assert.Equal(t, 1, jobs[0].Attempts)
	assert.Equal(t, JobSending, jobs[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_OutboxUpdates(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectExec(`SET status = 'sent'`).WithArgs("job-1", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET status = 'pending'`).WithArgs("job-2", 2, now, "throttled").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET status = 'failed'`).WithArgs("job-3", 5, "rejected address").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.CompleteJob(ctx, "job-1", now))
	require.NoError(t, store.RescheduleJob(ctx, "job-2", 2, now, "throttled"))
	require.NoError(t, store.FailJob(ctx, "job-3", 5, "rejected address"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS endorsements`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
