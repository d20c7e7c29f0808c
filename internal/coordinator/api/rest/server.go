// Package rest implements the coordinator's external interface (spec §6):
// SubmitJob, GetJob, CancelJob, DownloadArtifact, ClaimTask, Heartbeat,
// UploadArtifact, ReportTask, plus ListJobs/ListWorkers for operators.
package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/crowdcompute/crowdcompute/internal/coordinator/core"
	"github.com/crowdcompute/crowdcompute/internal/coordinator/registry"
	"github.com/crowdcompute/crowdcompute/internal/shared/logging"
)

// API holds the dependencies the coordinator's HTTP handlers need.
type API struct {
	reg    *registry.Registry
	logger logging.Logger
}

func NewAPI(reg *registry.Registry, logger logging.Logger) *API {
	return &API{reg: reg, logger: logger}
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /jobs", a.handleSubmitJob)
	mux.HandleFunc("GET /jobs", a.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", a.handleGetJob)
	mux.HandleFunc("POST /jobs/{id}/cancel", a.handleCancelJob)
	mux.HandleFunc("GET /jobs/{id}/artifacts/{name}", a.handleDownloadArtifact)
	mux.HandleFunc("POST /jobs/{id}/artifacts/{name}", a.handleUploadArtifact)

	mux.HandleFunc("POST /workers/{id}/claim", a.handleClaimTask)
	mux.HandleFunc("POST /workers/{id}/tasks/{task_id}/heartbeat", a.handleHeartbeat)
	mux.HandleFunc("POST /workers/{id}/tasks/{task_id}/report", a.handleReportTask)
	mux.HandleFunc("GET /workers", a.handleListWorkers)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// NewServer builds the full http.Server: routes, CORS, and the
// logging/recovery middleware chain, matching the teacher's fixed
// timeout construction.
func NewServer(addr string, reg *registry.Registry, logger logging.Logger) *http.Server {
	api := NewAPI(reg, logger)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	corsHandler := cors.New(cors.Options{
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"*"},
	}).Handler(mux)

	handler := ChainMiddleware(corsHandler, RecoveryMiddleware(logger), LoggingMiddleware(logger))

	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, err error) {
	kind := core.KindOf(err)
	if kind == "" {
		respondJSON(w, http.StatusInternalServerError, errorResponse{Kind: "Internal", Message: err.Error()})
		return
	}
	respondJSON(w, kindToStatus(kind), errorResponse{Kind: string(kind), Message: err.Error()})
}

func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue(key))
}

func (a *API) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		respondError(w, core.WrapError(core.KindBadRequest, "invalid multipart form", err))
		return
	}

	shards := 0
	if v := r.FormValue("shards"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			shards = n
		}
	}
	params := map[string]string{}
	if raw := r.FormValue("params"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			respondError(w, core.WrapError(core.KindBadRequest, "invalid params JSON", err))
			return
		}
	}

	inputs := map[string][]byte{}
	if r.MultipartForm != nil {
		for name, files := range r.MultipartForm.File {
			if len(files) == 0 {
				continue
			}
			f, err := files[0].Open()
			if err != nil {
				respondError(w, core.WrapError(core.KindBadRequest, "cannot read input "+name, err))
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				respondError(w, core.WrapError(core.KindBadRequest, "cannot read input "+name, err))
				return
			}
			inputs[name] = data
		}
	}

	job, err := a.reg.SubmitJob(registry.SubmitParams{
		Shape:        core.JobShape(r.FormValue("shape")),
		MapPlugin:    r.FormValue("map_plugin"),
		ReducePlugin: r.FormValue("reduce_plugin"),
		Shards:       shards,
		Params:       params,
		Inputs:       inputs,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, submitJobResponse{JobID: job.ID.String()})
}

func (a *API) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var filter core.JobFilter
	if s := r.URL.Query().Get("status"); s != "" {
		status := core.JobStatus(s)
		filter.Status = &status
	}
	jobs, err := a.reg.ListJobs(filter)
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]getJobResponse, 0, len(jobs))
	for _, job := range jobs {
		tasks, err := a.reg.ListTasks(job.ID)
		if err != nil {
			respondError(w, err)
			return
		}
		out = append(out, toGetJobResponse(job, tasks))
	}
	respondJSON(w, http.StatusOK, listJobsResponse{Jobs: out})
}

func (a *API) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, core.WrapError(core.KindBadRequest, "invalid job id", err))
		return
	}
	job, err := a.reg.GetJob(id)
	if err != nil {
		respondError(w, err)
		return
	}
	tasks, err := a.reg.ListTasks(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toGetJobResponse(job, tasks))
}

func (a *API) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, core.WrapError(core.KindBadRequest, "invalid job id", err))
		return
	}
	if err := a.reg.CancelJob(id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, okResponse{OK: true})
}

func (a *API) handleDownloadArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, core.WrapError(core.KindBadRequest, "invalid job id", err))
		return
	}
	name := r.PathValue("name")
	data, _, err := a.reg.Artifacts().Get(id, name)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *API) handleUploadArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, core.WrapError(core.KindBadRequest, "invalid job id", err))
		return
	}
	name := r.PathValue("name")
	workerID := r.Header.Get("X-Worker-Id")
	if workerID == "" {
		respondError(w, core.NewError(core.KindBadRequest, "missing X-Worker-Id header"))
		return
	}
	if _, err := a.reg.UploadArtifact(workerID, id, name, r.Body); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, okResponse{OK: true})
}

func (a *API) handleClaimTask(w http.ResponseWriter, r *http.Request) {
	workerID := r.PathValue("id")
	task, err := a.reg.Claim(workerID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, claimTaskResponse{Task: toClaimedTaskDTO(task)})
}

func (a *API) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	workerID := r.PathValue("id")
	taskID, err := pathUUID(r, "task_id")
	if err != nil {
		respondError(w, core.WrapError(core.KindBadRequest, "invalid task id", err))
		return
	}
	result, err := a.reg.Heartbeat(workerID, taskID)
	if err != nil {
		respondError(w, err)
		return
	}
	status := "ok"
	if result.Reassigned {
		status = "reassigned"
	}
	respondJSON(w, http.StatusOK, heartbeatResponse{Status: status})
}

func (a *API) handleReportTask(w http.ResponseWriter, r *http.Request) {
	workerID := r.PathValue("id")
	taskID, err := pathUUID(r, "task_id")
	if err != nil {
		respondError(w, core.WrapError(core.KindBadRequest, "invalid task id", err))
		return
	}
	var body reportTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, core.WrapError(core.KindBadRequest, "invalid report body", err))
		return
	}
	err = a.reg.Report(workerID, taskID, registry.ReportOutcome{
		Succeeded: body.Success,
		ErrKind:   body.ErrKind,
		Detail:    body.Detail,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, okResponse{OK: true})
}

func (a *API) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := a.reg.ListWorkers()
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]workerDTO, 0, len(workers))
	for _, wk := range workers {
		out = append(out, toWorkerDTO(wk))
	}
	respondJSON(w, http.StatusOK, listWorkersResponse{Workers: out})
}
