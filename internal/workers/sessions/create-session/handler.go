// internal/workers/sessions/create-session/handler.go
package createsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	commonerrors "meetingsync/internal/common/errors"
	"meetingsync/internal/common/logger"
	"meetingsync/internal/common/metrics"
	"meetingsync/internal/ingest"
	"meetingsync/internal/models"
	"meetingsync/internal/session"
)

const (
	TaskType = "session.create"
)

// Notifier alerts the rep that a session is waiting for them. Delivery is
// best effort; a nil Notifier disables it.
type Notifier interface {
	SessionCreated(ctx context.Context, session *models.ValidationSession)
}

// Handler opens a validation session from a raw draft summary document: it
// validates and stores the draft, generates the question set, and invites
// the rep to review.
type Handler struct {
	config   *Config
	drafts   models.DraftSummaryRepository
	manager  *session.Manager
	notifier Notifier
	logger   logger.Logger
}

func NewHandler(config *Config, drafts models.DraftSummaryRepository, manager *session.Manager, notifier Notifier, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		drafts:   drafts,
		manager:  manager,
		notifier: notifier,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer func() {
		metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		stdErr := commonerrors.NewInputParsingError(err)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
		h.failJob(ctx, client, job, stdErr)
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		stdErr := convertToStandardError(err)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
		h.failJob(ctx, client, job, stdErr)
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.SalesRepEmail == "" {
		return nil, commonerrors.NewInvalidArgumentError("salesRepEmail must not be empty")
	}

	draft, err := ingest.ParseDraft(input.DraftSummary)
	if err != nil {
		return nil, err
	}
	if err := h.drafts.Create(ctx, draft); err != nil {
		return nil, err
	}

	duration := time.Duration(input.DurationHours) * time.Hour
	sess, err := h.manager.Create(ctx, draft.ID, input.SalesRepEmail, duration)
	if err != nil {
		return nil, err
	}

	if h.notifier != nil {
		h.notifier.SessionCreated(ctx, sess)
	}

	return &Output{
		SessionID:      sess.ID,
		DraftSummaryID: draft.ID,
		QuestionCount:  len(sess.ValidationQuestions),
		ExpiresAt:      sess.ExpiresAt.Format(time.RFC3339),
	}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, stdErr *commonerrors.StandardError) {
	bpmnErr := commonerrors.ConvertToBPMNError(stdErr)

	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    bpmnErr.Code,
		"errorMessage": bpmnErr.Message,
		"retryable":    bpmnErr.Retryable,
		"retries":      bpmnErr.Retries,
	})

	failCmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(int32(bpmnErr.Retries)).
		ErrorMessage(fmt.Sprintf("[%s] %s", bpmnErr.Code, bpmnErr.Message))

	var finalCmd interface {
		Send(context.Context) (*pb.FailJobResponse, error)
	} = failCmd
	if len(bpmnErr.ErrorVariables) > 0 {
		varCmd, varErr := failCmd.VariablesFromMap(bpmnErr.ToErrorVariables())
		if varErr != nil {
			h.logger.Error("failed to set error variables, sending without them", map[string]interface{}{
				"jobKey": job.Key,
				"error":  varErr.Error(),
			})
		} else {
			finalCmd = varCmd
		}
	}

	if _, err := finalCmd.Send(ctx); err != nil {
		h.logger.Error("failed to send fail job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func convertToStandardError(err error) *commonerrors.StandardError {
	var stdErr *commonerrors.StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return &commonerrors.StandardError{
		Code:      "SESSION_CREATE_ERROR",
		Message:   "Failed to open validation session",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
