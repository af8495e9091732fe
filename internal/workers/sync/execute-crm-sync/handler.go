// internal/workers/sync/execute-crm-sync/handler.go
package executecrmsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"meetingsync/internal/approval"
	commonerrors "meetingsync/internal/common/errors"
	"meetingsync/internal/common/logger"
	"meetingsync/internal/common/metrics"
	"meetingsync/internal/crm"
	"meetingsync/internal/models"
)

const (
	TaskType = "crm.sync.execute"
)

var ErrRecordNotClaimable = errors.New("SYNC_RECORD_NOT_CLAIMABLE")

// Notifier tells the rep about a failed push so they can request a retry.
// Delivery is best effort; a nil Notifier disables it.
type Notifier interface {
	SyncFailed(ctx context.Context, session *models.ValidationSession, record *models.CRMSyncRecord)
}

// Handler drains pending sync records: it claims one, pushes the payload to
// the provider, and records the outcome. A provider failure lands on the
// record as failed, never as a workflow incident.
type Handler struct {
	config      *Config
	records     models.SyncRecordRepository
	sessions    models.SessionRepository
	coordinator *approval.Coordinator
	crmService  *crm.Service
	notifier    Notifier
	logger      logger.Logger
}

func NewHandler(config *Config, records models.SyncRecordRepository, sessions models.SessionRepository, coordinator *approval.Coordinator, crmService *crm.Service, notifier Notifier, log logger.Logger) *Handler {
	return &Handler{
		config:      config,
		records:     records,
		sessions:    sessions,
		coordinator: coordinator,
		crmService:  crmService,
		notifier:    notifier,
		logger:      log.WithFields(map[string]interface{}{"taskType": TaskType}),
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
	record, err := h.records.FindByID(ctx, input.SyncRecordID)
	if err != nil {
		return nil, err
	}

	claimed, err := h.records.ClaimPending(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: record %s is %s", ErrRecordNotClaimable, record.ID, record.SyncStatus)
	}

	result := h.crmService.SyncMeetingOutcome(ctx, record.SessionID, record.CRMSystem)

	status := models.SyncCompleted
	if !result.Success {
		status = models.SyncFailed
	}
	updated, err := h.coordinator.UpdateStatus(ctx, record.ID, status, result.CRMRecordID, result.Error)
	if err != nil {
		return nil, err
	}

	if status == models.SyncFailed && h.notifier != nil {
		if sess, err := h.sessions.FindByID(ctx, updated.SessionID); err == nil {
			h.notifier.SyncFailed(ctx, sess, updated)
		}
	}

	return &Output{
		SyncRecordID: updated.ID,
		CRMSystem:    string(updated.CRMSystem),
		SyncStatus:   string(updated.SyncStatus),
		CRMRecordID:  result.CRMRecordID,
		ErrorMessage: updated.SyncError,
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
	if errors.Is(err, ErrRecordNotClaimable) {
		return &commonerrors.StandardError{
			Code:      "SYNC_RECORD_NOT_CLAIMABLE",
			Message:   "Sync record cannot be claimed for execution",
			Details:   err.Error(),
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	}
	return &commonerrors.StandardError{
		Code:      "CRM_SYNC_EXECUTE_ERROR",
		Message:   "Failed to execute CRM sync",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
