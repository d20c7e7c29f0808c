package rest

import (
	"time"

	"github.com/crowdcompute/crowdcompute/internal/coordinator/core"
)

func toTaskSummaryDTO(s core.TaskSummary) taskSummaryDTO {
	dto := taskSummaryDTO{
		TaskID:     s.TaskID.String(),
		Type:       string(s.Type),
		ShardIndex: s.ShardIndex,
		Status:     string(s.Status),
		RetryCount: s.RetryCount,
	}
	if s.LastError != nil {
		dto.ErrorKind = s.LastError.Kind
		dto.ErrorDetail = s.LastError.Detail
	}
	return dto
}

func toGetJobResponse(job *core.Job, tasks []core.TaskSummary) getJobResponse {
	dtos := make([]taskSummaryDTO, 0, len(tasks))
	for _, t := range tasks {
		dtos = append(dtos, toTaskSummaryDTO(t))
	}
	return getJobResponse{
		JobID:           job.ID.String(),
		Shape:           string(job.Shape),
		Status:          string(job.Status),
		SubmittedAt:     job.SubmittedAt.Format(time.RFC3339),
		FinalOutputName: job.FinalOutput,
		Tasks:           dtos,
	}
}

func toClaimedTaskDTO(task *core.Task) *claimedTaskDTO {
	if task == nil {
		return nil
	}
	return &claimedTaskDTO{
		TaskID:          task.ID.String(),
		JobID:           task.JobID.String(),
		PluginKind:      task.PluginKind,
		Inputs:          task.InputNames,
		ExpectedOutputs: task.ExpectedOutputs,
		Params:          task.Params,
	}
}

func toWorkerDTO(w *core.Worker) workerDTO {
	dto := workerDTO{
		WorkerID:   w.ID,
		LastSeenAt: w.LastSeenAt.Format(time.RFC3339),
		CPUs:       w.Capabilities.CPUs,
		RAMGB:      w.Capabilities.RAMGB,
		GPUs:       w.Capabilities.GPUs,
	}
	if w.HeldTaskID != nil {
		dto.HeldTaskID = w.HeldTaskID.String()
	}
	return dto
}

func kindToStatus(kind core.Kind) int {
	switch kind {
	case core.KindBadRequest:
		return 400
	case core.KindNotFound, core.KindJobUnknown:
		return 404
	case core.KindConflict, core.KindJobCancelled:
		return 409
	case core.KindPluginUnknown, core.KindInputUnavailable, core.KindOutputMissing:
		return 422
	default:
		return 500
	}
}
