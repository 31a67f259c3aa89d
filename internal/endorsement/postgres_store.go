// internal/endorsement/postgres_store.go
package endorsement

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"endorsement-workers/internal/common/database"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

const endorsementColumns = `id, organization_name, contact_person_name, email, country,
	endorser_category, endorsement_type, endorsement_tier, headline, statement,
	logo_ref, video_link, website, status, verified, featured, token_hash,
	token_expires_at, rejection_reason, reviewed_by, created_at, verified_at,
	approved_at, updated_at`

// PostgresStore persists endorsements and their notification outbox.
type PostgresStore struct {
	db *sql.DB
}

var (
	_ Store  = (*PostgresStore)(nil)
	_ Outbox = (*PostgresStore)(nil)
)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables and indexes when they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply endorsement schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, e *Endorsement, job *NotificationJob) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO endorsements (`+endorsementColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
			e.ID, e.OrganizationName, e.ContactPersonName, NormalizeEmail(e.Email), e.Country,
			e.EndorserCategory, string(e.EndorsementType), e.EndorsementTier, e.Headline, e.Statement,
			e.LogoRef, e.VideoLink, e.Website, string(e.Status), e.Verified, e.Featured, e.TokenHash,
			nullTime(e.TokenExpiresAt), e.RejectionReason, e.ReviewedBy, e.CreatedAt, nullTime(e.VerifiedAt),
			nullTime(e.ApprovedAt), e.UpdatedAt,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return ErrDuplicateSubmission
			}
			return fmt.Errorf("insert endorsement: %w", err)
		}
		return insertJob(ctx, tx, job)
	})
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Endorsement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+endorsementColumns+` FROM endorsements WHERE id = $1`, id)
	return scanOne(row)
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*Endorsement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+endorsementColumns+` FROM endorsements WHERE lower(email) = $1`, NormalizeEmail(email))
	return scanOne(row)
}

func (s *PostgresStore) Apply(ctx context.Context, id string, m Mutation, notify JobBuilder) (*Endorsement, error) {
	set, guard, extra, err := mutationSQL(m)
	if err != nil {
		return nil, err
	}

	query := `UPDATE endorsements SET ` + set + `, updated_at = $2
		WHERE id = $1 AND ` + guard + `
		RETURNING ` + endorsementColumns
	args := append([]interface{}{id, m.At}, extra...)

	var updated *Endorsement
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		e, err := scanOne(tx.QueryRowContext(ctx, query, args...))
		if err != nil {
			return err
		}
		updated = e
		if m.Kind == MutationReissueToken {
			if err := supersedeJobs(ctx, tx, id, KindVerificationRequest, m.At); err != nil {
				return err
			}
		}
		if notify == nil {
			return nil
		}
		return insertJob(ctx, tx, notify(e))
	})
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// No row matched: either the record is missing or the guard failed.
	current, getErr := s.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, &StaleError{Current: current}
}

// mutationSQL returns the SET and WHERE fragments for m. $1 is the id and
// $2 the mutation time; extra arguments start at $3.
func mutationSQL(m Mutation) (set, guard string, extra []interface{}, err error) {
	switch m.Kind {
	case MutationVerify:
		return `status = 'pending_review', verified = TRUE, verified_at = $2, token_hash = '', token_expires_at = NULL`,
			`status = 'pending_verification' AND verified = FALSE AND token_hash = $3 AND token_hash <> '' AND token_expires_at > $2`,
			[]interface{}{m.TokenHash}, nil
	case MutationApprove:
		return `status = 'approved', approved_at = $2, reviewed_by = $3`,
			`status = 'pending_review' AND verified = TRUE`,
			[]interface{}{m.Actor}, nil
	case MutationReject:
		return `status = 'rejected', rejection_reason = $3, reviewed_by = $4`,
			`status IN ('pending_verification', 'pending_review')`,
			[]interface{}{m.Reason, m.Actor}, nil
	case MutationFeature:
		return `featured = TRUE, reviewed_by = $3`,
			`status = 'approved' AND featured = FALSE`,
			[]interface{}{m.Actor}, nil
	case MutationUnfeature:
		return `featured = FALSE, reviewed_by = $3`,
			`featured = TRUE`,
			[]interface{}{m.Actor}, nil
	case MutationReissueToken:
		return `token_hash = $3, token_expires_at = $4`,
			`status = 'pending_verification' AND verified = FALSE`,
			[]interface{}{m.TokenHash, m.TokenExpiresAt}, nil
	default:
		return "", "", nil, fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
}

func (s *PostgresStore) SearchApproved(ctx context.Context, q ShowcaseQuery) ([]*Endorsement, error) {
	q = q.Normalize()

	var (
		where = []string{`status = 'approved'`}
		args  []interface{}
	)
	if q.Search != "" {
		args = append(args, "%"+escapeLike(q.Search)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(`(organization_name ILIKE $%d OR headline ILIKE $%d OR statement ILIKE $%d)`, n, n, n))
	}
	if q.Category != "" {
		args = append(args, q.Category)
		where = append(where, fmt.Sprintf(`lower(endorser_category) = lower($%d)`, len(args)))
	}
	if q.Country != "" {
		args = append(args, q.Country)
		where = append(where, fmt.Sprintf(`lower(country) = lower($%d)`, len(args)))
	}

	query := `SELECT ` + endorsementColumns + ` FROM endorsements
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY featured DESC, approved_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search showcase: %w", err)
	}
	defer rows.Close()

	var out []*Endorsement
	for rows.Next() {
		e, err := scanEndorsement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search showcase: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ClaimJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*NotificationJob, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		UPDATE notification_jobs
		SET status = 'sending', locked_until = $2, updated_at = $1
		WHERE id IN (
			SELECT id FROM notification_jobs
			WHERE (status = 'pending' AND next_attempt_at <= $1)
			   OR (status = 'sending' AND locked_until < $1)
			ORDER BY next_attempt_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, endorsement_id, kind, recipient, payload, attempts, next_attempt_at, created_at`,
		now, now.Add(lease), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim notification jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*NotificationJob
	for rows.Next() {
		var (
			j       NotificationJob
			kind    string
			payload []byte
		)
		if err := rows.Scan(&j.ID, &j.EndorsementID, &kind, &j.Recipient, &payload, &j.Attempts, &j.NextAttemptAt, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification job: %w", err)
		}
		if err := json.Unmarshal(payload, &j.Payload); err != nil {
			return nil, fmt.Errorf("decode notification payload %s: %w", j.ID, err)
		}
		j.Kind = NotificationKind(kind)
		j.Status = JobSending
		j.LockedUntil = timePtr(now.Add(lease))
		j.UpdatedAt = now
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim notification jobs: %w", err)
	}
	return jobs, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notification_jobs
		SET status = 'sent', sent_at = $2, locked_until = NULL, updated_at = $2
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("complete notification job %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) RescheduleJob(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notification_jobs
		SET status = 'pending', attempts = $2, next_attempt_at = $3, last_error = $4, locked_until = NULL, updated_at = NOW()
		WHERE id = $1`, id, attempts, next, lastErr)
	if err != nil {
		return fmt.Errorf("reschedule notification job %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id string, attempts int, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notification_jobs
		SET status = 'failed', attempts = $2, last_error = $3, locked_until = NULL, updated_at = NOW()
		WHERE id = $1`, id, attempts, lastErr)
	if err != nil {
		return fmt.Errorf("fail notification job %s: %w", id, err)
	}
	return nil
}

// supersedeJobs retires unsent jobs of kind for one endorsement. Jobs already
// leased to a dispatcher are left to finish.
func supersedeJobs(ctx context.Context, tx *sql.Tx, endorsementID string, kind NotificationKind, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE notification_jobs
		SET status = 'superseded', updated_at = $3
		WHERE endorsement_id = $1 AND kind = $2 AND status = 'pending'`,
		endorsementID, string(kind), at)
	if err != nil {
		return fmt.Errorf("supersede %s notifications: %w", kind, err)
	}
	return nil
}

func insertJob(ctx context.Context, tx *sql.Tx, job *NotificationJob) error {
	if job == nil {
		return nil
	}
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("encode notification payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO notification_jobs (id, endorsement_id, kind, recipient, payload, status, attempts, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6, $7, $7)`,
		job.ID, job.EndorsementID, string(job.Kind), job.Recipient, payload, job.NextAttemptAt, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue %s notification: %w", job.Kind, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOne(row rowScanner) (*Endorsement, error) {
	e, err := scanEndorsement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func scanEndorsement(row rowScanner) (*Endorsement, error) {
	var (
		e                                Endorsement
		endorsementType, status          string
		tokenExpires, verified, approved sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.OrganizationName, &e.ContactPersonName, &e.Email, &e.Country,
		&e.EndorserCategory, &endorsementType, &e.EndorsementTier, &e.Headline, &e.Statement,
		&e.LogoRef, &e.VideoLink, &e.Website, &status, &e.Verified, &e.Featured, &e.TokenHash,
		&tokenExpires, &e.RejectionReason, &e.ReviewedBy, &e.CreatedAt, &verified,
		&approved, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan endorsement: %w", err)
	}
	e.EndorsementType = EndorsementType(endorsementType)
	e.Status = Status(status)
	e.TokenExpiresAt = fromNullTime(tokenExpires)
	e.VerifiedAt = fromNullTime(verified)
	e.ApprovedAt = fromNullTime(approved)
	return &e, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
