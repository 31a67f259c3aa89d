package checkendorsementstatus

import (
	"context"
	"encoding/json"
	"testing"

	"endorsement-workers/internal/common/config"
	apperrors "endorsement-workers/internal/common/errors"
	"endorsement-workers/internal/common/logger"
	"endorsement-workers/internal/endorsement"
	"endorsement-workers/internal/endorsement/endorsementtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestHandler(t *testing.T, fx *endorsementtest.Fixture) *Handler {
	return NewHandler(LoadConfig(config.WorkerConfig{}), fx.Status, logger.NewTestLogger(t))
}

func TestHandler_Execute_DisplayStates(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(t *testing.T, fx *endorsementtest.Fixture)
		wantState endorsement.DisplayState
		wantLabel string
	}{
		{
			name:      "awaiting verification",
			setup:     func(t *testing.T, fx *endorsementtest.Fixture) { fx.Submit(t, "sam@x.org") },
			wantState: endorsement.DisplayEmailVerificationRequired,
			wantLabel: "Email verification required",
		},
		{
			name:      "under review",
			setup:     func(t *testing.T, fx *endorsementtest.Fixture) { fx.Verified(t, "sam@x.org") },
			wantState: endorsement.DisplayUnderReview,
			wantLabel: "Under review",
		},
		{
			name:      "approved",
			setup:     func(t *testing.T, fx *endorsementtest.Fixture) { fx.Approved(t, "sam@x.org") },
			wantState: endorsement.DisplayApproved,
			wantLabel: "Approved",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := endorsementtest.New(t)
			tt.setup(t, fx)
			handler := createTestHandler(t, fx)

			output, err := handler.Execute(context.Background(), &Input{Email: " SAM@x.org "})
			require.NoError(t, err)
			assert.True(t, output.Found)
			assert.Equal(t, tt.wantLabel, output.Message)
			require.NotNil(t, output.Endorsement)
			assert.Equal(t, tt.wantState, output.Endorsement.DisplayState)
		})
	}
}

func TestHandler_Execute_OutputHidesSecrets(t *testing.T) {
	fx := endorsementtest.New(t)
	_, token := fx.Submit(t, "sam@x.org")
	handler := createTestHandler(t, fx)

	output, err := handler.Execute(context.Background(), &Input{Email: "sam@x.org"})
	require.NoError(t, err)

	raw, err := json.Marshal(output)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sam@x.org")
	assert.NotContains(t, string(raw), token)
	assert.NotContains(t, string(raw), endorsement.HashToken(token))
}

func TestHandler_Execute_NotFound(t *testing.T) {
	fx := endorsementtest.New(t)
	handler := createTestHandler(t, fx)

	output, err := handler.Execute(context.Background(), &Input{Email: "nobody@x.org"})
	require.NoError(t, err)
	assert.False(t, output.Found)
	assert.Equal(t, MessageNotFound, output.Message)
	assert.Nil(t, output.Endorsement)
}

func TestHandler_Execute_EmptyEmail(t *testing.T) {
	fx := endorsementtest.New(t)
	handler := createTestHandler(t, fx)

	_, err := handler.Execute(context.Background(), &Input{Email: "  "})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.FromError(err).Code)
}
