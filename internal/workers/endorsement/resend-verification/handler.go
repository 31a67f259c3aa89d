// internal/workers/endorsement/resend-verification/handler.go
package resendverification

import (
	"context"
	"encoding/json"
	"errors"

	apperrors "endorsement-workers/internal/common/errors"
	"endorsement-workers/internal/common/logger"
	"endorsement-workers/internal/endorsement"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "endorsement-resend-verification"
)

type Handler struct {
	config       *Config
	verifier     *endorsement.Verifier
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, verifier *endorsement.Verifier, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		verifier:     verifier,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.GetKey(),
		"workflowKey": job.GetProcessInstanceKey(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.GetVariables()), &input); err != nil {
		stdErr := apperrors.NewValidationError("parse input: " + err.Error())
		h.errorHandler.HandleJobError(ctx, client, job, stdErr)
		return stdErr
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return err
	}

	return h.completeJob(ctx, client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	e, err := h.verifier.Resend(ctx, input.Email)
	if err != nil {
		var message string
		switch {
		case errors.Is(err, endorsement.ErrAlreadyVerified):
			message = MessageAlreadyVerified
		case errors.Is(err, endorsement.ErrInvalidTransition):
			message = MessageNotPending
		case errors.Is(err, endorsement.ErrNotFound):
			message = MessageNotFound
		default:
			return nil, err
		}
		return &Output{
			Success:   false,
			Message:   message,
			ErrorCode: string(apperrors.FromError(err).Code),
		}, nil
	}

	return &Output{
		Success:        true,
		Message:        MessageResent,
		EndorsementID:  e.ID,
		TokenExpiresAt: e.TokenExpiresAt,
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.GetKey()).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":  job.GetKey(),
		"success": output.Success,
	})
	return nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
