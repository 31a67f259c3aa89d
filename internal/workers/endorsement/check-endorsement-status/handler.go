// internal/workers/endorsement/check-endorsement-status/handler.go
package checkendorsementstatus

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
	TaskType = "endorsement-status"
)

type Handler struct {
	config       *Config
	service      *endorsement.StatusService
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, service *endorsement.StatusService, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		service:      service,
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

// execute reports a missing record as Found=false. A malformed email is
// still a validation error.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	view, err := h.service.Lookup(ctx, input.Email)
	if errors.Is(err, endorsement.ErrNotFound) {
		return &Output{Found: false, Message: MessageNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Output{
		Found:       true,
		Message:     view.DisplayLabel,
		Endorsement: view,
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
		"jobKey": job.GetKey(),
		"found":  output.Found,
	})
	return nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
