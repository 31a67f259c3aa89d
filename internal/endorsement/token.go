// internal/endorsement/token.go
package endorsement

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"endorsement-workers/internal/common/logger"
	"endorsement-workers/internal/common/metrics"
	"endorsement-workers/internal/common/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	tokenBytes      = 32
	DefaultTokenTTL = 48 * time.Hour
)

// Token is a freshly issued verification secret. Only Hash is stored on the
// record; Raw goes out in the verification message.
type Token struct {
	Raw       string
	Hash      string
	ExpiresAt time.Time
}

// TokenIssuer mints unguessable single-use tokens.
type TokenIssuer struct {
	ttl     time.Duration
	now     func() time.Time
	entropy io.Reader
}

func NewTokenIssuer(ttl time.Duration, now func() time.Time) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{ttl: ttl, now: now, entropy: rand.Reader}
}

func (i *TokenIssuer) Issue() (Token, error) {
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(i.entropy, b); err != nil {
		return Token{}, fmt.Errorf("generate verification token: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(b)
	return Token{
		Raw:       raw,
		Hash:      HashToken(raw),
		ExpiresAt: i.now().UTC().Add(i.ttl),
	}, nil
}

// HashToken returns the hex SHA-256 digest stored in place of the token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Verifier confirms email ownership and reissues expired links.
type Verifier struct {
	store  Store
	issuer *TokenIssuer
	now    func() time.Time
	logger logger.Logger
}

func NewVerifier(store Store, issuer *TokenIssuer, now func() time.Time, log logger.Logger) *Verifier {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Verifier{store: store, issuer: issuer, now: now, logger: log}
}

// Verify consumes token for the endorsement registered under email. A blank
// email or token fails with a ValidationError before any lookup. A replay
// of a consumed token fails with ErrAlreadyVerified; a wrong, expired or
// superseded token fails with ErrInvalidToken. Of several racing calls with
// the right token exactly one succeeds.
func (v *Verifier) Verify(ctx context.Context, email, token string) (result *Endorsement, err error) {
	ctx, span := observability.StartSpan(ctx, "endorsement.verify")
	defer func() { observability.EndSpan(span, err) }()

	verr := &ValidationError{}
	if strings.TrimSpace(email) == "" {
		verr.Add("email", "is required")
	}
	if strings.TrimSpace(token) == "" {
		verr.Add("token", "is required")
	}
	if !verr.Empty() {
		return nil, verr
	}

	current, err := v.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("endorsement.id", current.ID))

	if current.Verified {
		return nil, ErrAlreadyVerified
	}
	if current.Status != StatusPendingVerification {
		return nil, ErrInvalidToken
	}

	now := v.now().UTC()
	presented := HashToken(token)
	if !hashesEqual(current.TokenHash, presented) {
		return nil, ErrInvalidToken
	}
	if current.TokenExpiresAt == nil || !now.Before(*current.TokenExpiresAt) {
		return nil, ErrTokenExpired
	}

	updated, err := v.store.Apply(ctx, current.ID, Mutation{
		Kind:      MutationVerify,
		TokenHash: presented,
		Actor:     current.Email,
		At:        now,
	}, reviewRequestedJob(now))
	if err != nil {
		var stale *StaleError
		if !errors.As(err, &stale) {
			return nil, err
		}
		metrics.LifecycleConflicts.WithLabelValues(string(MutationVerify)).Inc()
		if stale.Current.Verified {
			return nil, ErrAlreadyVerified
		}
		return nil, ErrInvalidToken
	}

	metrics.LifecycleTransitions.WithLabelValues(string(MutationVerify)).Inc()
	v.logger.Info("Endorsement email verified", map[string]interface{}{
		"endorsementId": updated.ID,
	})
	return updated, nil
}

// Resend issues a fresh token for a record still awaiting verification and
// enqueues a new verification message. The previous token stops working.
func (v *Verifier) Resend(ctx context.Context, email string) (result *Endorsement, err error) {
	ctx, span := observability.StartSpan(ctx, "endorsement.resend_verification")
	defer func() { observability.EndSpan(span, err) }()

	current, err := v.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if current.Verified {
		return nil, ErrAlreadyVerified
	}
	if current.Status != StatusPendingVerification {
		return nil, &TransitionError{Action: "resend verification for", Current: current.Status, Featured: current.Featured}
	}

	tok, err := v.issuer.Issue()
	if err != nil {
		return nil, err
	}

	now := v.now().UTC()
	updated, err := v.store.Apply(ctx, current.ID, Mutation{
		Kind:           MutationReissueToken,
		TokenHash:      tok.Hash,
		TokenExpiresAt: tok.ExpiresAt,
		Actor:          current.Email,
		At:             now,
	}, func(e *Endorsement) *NotificationJob {
		return verificationJob(e, tok, now)
	})
	if err != nil {
		var stale *StaleError
		if !errors.As(err, &stale) {
			return nil, err
		}
		if stale.Current.Verified {
			return nil, ErrAlreadyVerified
		}
		return nil, &TransitionError{Action: "resend verification for", Current: stale.Current.Status, Featured: stale.Current.Featured}
	}

	v.logger.Info("Verification token reissued", map[string]interface{}{
		"endorsementId": updated.ID,
		"expiresAt":     tok.ExpiresAt.Format(time.RFC3339),
	})
	return updated, nil
}
