// internal/workers/endorsement/moderate-endorsement/handler.go
package moderateendorsement

import (
	"context"
	"encoding/json"

	apperrors "endorsement-workers/internal/common/errors"
	"endorsement-workers/internal/common/logger"
	"endorsement-workers/internal/endorsement"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "endorsement-moderate"
)

type Handler struct {
	config       *Config
	engine       *endorsement.Engine
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, engine *endorsement.Engine, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		engine:       engine,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
	}
}

// Handle throws lifecycle errors such as INVALID_TRANSITION as BPMN errors
// carrying currentStatus and currentFeatured, so the review form can be
// refreshed from the boundary event.
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
	action, err := endorsement.ParseAction(input.Action, input.Reason)
	if err != nil {
		return nil, err
	}

	e, err := h.engine.Apply(ctx, endorsement.Reviewer{ID: input.ReviewerID}, input.EndorsementID, action)
	if err != nil {
		return nil, err
	}

	return &Output{
		EndorsementID:   e.ID,
		Action:          action.Name(),
		Status:          e.Status,
		Verified:        e.Verified,
		Featured:        e.Featured,
		RejectionReason: e.RejectionReason,
		ApprovedAt:      e.ApprovedAt,
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
	h.logger.Info("moderation applied", map[string]interface{}{
		"jobKey":        job.GetKey(),
		"endorsementId": output.EndorsementID,
		"action":        output.Action,
		"status":        output.Status,
	})
	return nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
