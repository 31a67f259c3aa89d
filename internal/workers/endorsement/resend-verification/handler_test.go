package resendverification

import (
	"context"
	"testing"
	"time"

	"endorsement-workers/internal/common/config"
	apperrors "endorsement-workers/internal/common/errors"
	"endorsement-workers/internal/common/logger"
	"endorsement-workers/internal/endorsement"
	"endorsement-workers/internal/endorsement/endorsementtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestHandler(t *testing.T, fx *endorsementtest.Fixture) *Handler {
	return NewHandler(LoadConfig(config.WorkerConfig{}), fx.Verifier, logger.NewTestLogger(t))
}

func TestHandler_Execute_ReplacesToken(t *testing.T) {
	fx := endorsementtest.New(t)
	e, oldToken := fx.Submit(t, "sam@x.org")
	fx.Clock.Advance(time.Hour)
	handler := createTestHandler(t, fx)

	output, err := handler.Execute(context.Background(), &Input{Email: "sam@x.org"})
	require.NoError(t, err)
	assert.True(t, output.Success)
	assert.Equal(t, e.ID, output.EndorsementID)
	require.NotNil(t, output.TokenExpiresAt)
	assert.Equal(t, fx.Clock.Now().Add(endorsement.DefaultTokenTTL), *output.TokenExpiresAt)

	jobs := fx.Jobs(e.ID, endorsement.KindVerificationRequest)
	require.Len(t, jobs, 2)
	newToken := jobs[1].Payload.Token
	assert.NotEqual(t, oldToken, newToken)

	_, err = fx.Verifier.Verify(context.Background(), "sam@x.org", oldToken)
	assert.ErrorIs(t, err, endorsement.ErrInvalidToken)
	_, err = fx.Verifier.Verify(context.Background(), "sam@x.org", newToken)
	assert.NoError(t, err)
}

func TestHandler_Execute_Refusals(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(t *testing.T, fx *endorsementtest.Fixture)
		email       string
		wantMessage string
		wantCode    apperrors.ErrorCode
	}{
		{
			name:        "unknown email",
			email:       "nobody@x.org",
			wantMessage: MessageNotFound,
			wantCode:    apperrors.ErrCodeNotFound,
		},
		{
			name:        "already verified",
			setup:       func(t *testing.T, fx *endorsementtest.Fixture) { fx.Verified(t, "sam@x.org") },
			email:       "sam@x.org",
			wantMessage: MessageAlreadyVerified,
			wantCode:    apperrors.ErrCodeAlreadyVerified,
		},
		{
			name: "rejected before verification",
			setup: func(t *testing.T, fx *endorsementtest.Fixture) {
				e, _ := fx.Submit(t, "sam@x.org")
				_, err := fx.Engine.Apply(context.Background(), endorsement.Reviewer{ID: "rev-1"}, e.ID, endorsement.Reject{Reason: "spam"})
				require.NoError(t, err)
			},
			email:       "sam@x.org",
			wantMessage: MessageNotPending,
			wantCode:    apperrors.ErrCodeInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := endorsementtest.New(t)
			if tt.setup != nil {
				tt.setup(t, fx)
			}
			handler := createTestHandler(t, fx)

			output, err := handler.Execute(context.Background(), &Input{Email: tt.email})
			require.NoError(t, err)
			assert.False(t, output.Success)
			assert.Equal(t, tt.wantMessage, output.Message)
			assert.Equal(t, string(tt.wantCode), output.ErrorCode)
		})
	}
}
