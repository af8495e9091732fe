// internal/workers/sessions/expire-sessions/handler.go
package expiresessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	commonerrors "meetingsync/internal/common/errors"
	"meetingsync/internal/common/logger"
	"meetingsync/internal/common/metrics"
	"meetingsync/internal/models"
	"meetingsync/internal/session"
)

const (
	TaskType = "session.sweep.expire"
)

// Notifier warns reps about sessions approaching expiry. Delivery is best
// effort; a nil Notifier disables reminders.
type Notifier interface {
	SessionExpiring(ctx context.Context, session *models.ValidationSession)
}

// Handler runs the periodic expiry sweep: every pending session past its
// deadline flips to expired in one pass, and reps with sessions inside the
// reminder window get a nudge.
type Handler struct {
	config   *Config
	manager  *session.Manager
	notifier Notifier
	logger   logger.Logger
}

func NewHandler(config *Config, manager *session.Manager, notifier Notifier, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
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

	output, err := h.execute(ctx)
	if err != nil {
		stdErr := convertToStandardError(err)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
		h.failJob(ctx, client, job, stdErr)
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context) (*Output, error) {
	expired, err := h.manager.ExpireOldSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("expire old sessions: %w", err)
	}

	reminded := 0
	if h.notifier != nil && h.config.ReminderWindow > 0 {
		expiring, err := h.manager.ExpiringSoon(ctx, h.config.ReminderWindow)
		if err != nil {
			h.logger.Error("failed to list expiring sessions", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			for _, s := range expiring {
				h.notifier.SessionExpiring(ctx, s)
				reminded++
			}
		}
	}

	return &Output{ExpiredCount: expired, RemindedCount: reminded}, nil
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
		Code:      "SESSION_SWEEP_ERROR",
		Message:   "Failed to run session expiry sweep",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func (h *Handler) Execute(ctx context.Context, _ *Input) (*Output, error) {
	return h.execute(ctx)
}
