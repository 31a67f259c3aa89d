package submitendorsement

import (
	"context"
	"testing"
	"time"

	"endorsement-workers/internal/common/config"
	apperrors "endorsement-workers/internal/common/errors"
	"endorsement-workers/internal/common/logger"
	"endorsement-workers/internal/endorsement"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestHandler(t *testing.T) (*Handler, *endorsement.MemoryStore) {
	store := endorsement.NewMemoryStore()
	issuer := endorsement.NewTokenIssuer(endorsement.DefaultTokenTTL, nil)
	intake := endorsement.NewIntake(store, issuer, nil, logger.NewTestLogger(t))
	return NewHandler(LoadConfig(config.WorkerConfig{}), intake, logger.NewTestLogger(t)), store
}

func createInput(email string) *Input {
	return &Input{
		OrganizationName:  "Acme Cooperative",
		ContactPersonName: "Sam Rivera",
		Email:             email,
		Country:           "Kenya",
		EndorserCategory:  "NGO",
		EndorsementType:   "paid",
		EndorsementTier:   "gold",
		Headline:          "Open standards for all",
		Statement:         "We support this initiative.",
	}
}

func TestLoadConfig(t *testing.T) {
	assert.Equal(t, 10*time.Second, LoadConfig(config.WorkerConfig{}).Timeout)
	assert.Equal(t, 3*time.Second, LoadConfig(config.WorkerConfig{Timeout: 3000}).Timeout)
}

func TestHandler_Execute_Success(t *testing.T) {
	handler, store := createTestHandler(t)

	output, err := handler.Execute(context.Background(), createInput("Sam@X.org"))
	require.NoError(t, err)
	assert.NotEmpty(t, output.EndorsementID)
	assert.Equal(t, endorsement.StatusPendingVerification, output.Status)

	e, err := store.GetByEmail(context.Background(), "sam@x.org")
	require.NoError(t, err)
	assert.Equal(t, output.EndorsementID, e.ID)
	assert.Equal(t, "gold", e.EndorsementTier)

	jobs := store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, endorsement.KindVerificationRequest, jobs[0].Kind)
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, h *Handler)
		input    *Input
		wantCode apperrors.ErrorCode
	}{
		{
			name:     "invalid email",
			input:    createInput("not-an-email"),
			wantCode: apperrors.ErrCodeValidation,
		},
		{
			name: "missing headline",
			input: func() *Input {
				in := createInput("a@x.org")
				in.Headline = ""
				return in
			}(),
			wantCode: apperrors.ErrCodeValidation,
		},
		{
			name: "duplicate email",
			setup: func(t *testing.T, h *Handler) {
				_, err := h.Execute(context.Background(), createInput("dup@x.org"))
				require.NoError(t, err)
			},
			input:    createInput("DUP@x.org"),
			wantCode: apperrors.ErrCodeDuplicateSubmission,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := createTestHandler(t)
			if tt.setup != nil {
				tt.setup(t, handler)
			}

			_, err := handler.Execute(context.Background(), tt.input)
			require.Error(t, err)

			stdErr := apperrors.FromError(err)
			assert.Equal(t, tt.wantCode, stdErr.Code)
			assert.False(t, stdErr.Retryable)
			assert.Zero(t, apperrors.RemainingRetries(stdErr.Code, 3))
		})
	}
}

func TestHandler_ValidationErrorCarriesFields(t *testing.T) {
	handler, _ := createTestHandler(t)
	in := createInput("a@x.org")
	in.Website = "not a url"

	_, err := handler.Execute(context.Background(), in)
	require.Error(t, err)

	bpmn := apperrors.ConvertToBPMNError(apperrors.FromError(err))
	fields, ok := bpmn.ToErrorVariables()["fieldErrors"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, fields, "website")
}
