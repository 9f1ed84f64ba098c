package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/loreforge/loreforge/internal/api/shared"
	"github.com/loreforge/loreforge/internal/domain"
	"github.com/loreforge/loreforge/internal/store"
)

// JobHandler handles job-related HTTP requests.
type JobHandler struct {
	jobs      store.JobStore
	projects  store.ProjectStore
	sources   store.SourceStore
	validator *validator.Validate
	logger    *slog.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobs store.JobStore, projects store.ProjectStore, sources store.SourceStore, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{
		jobs:      jobs,
		projects:  projects,
		sources:   sources,
		validator: validator.New(),
		logger:    logger.With(slog.String("component", "job_handler")),
	}
}

// CreateJob handles POST /api/projects/{projectID}/jobs requests. The
// job is persisted pending and picked up by the worker; the response is
// 202 Accepted.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req CreateJobRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	kind := domain.TaskKind(req.TaskKind)
	if !kind.Valid() {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Unknown task kind")
		return
	}

	if _, err := h.projects.GetByID(r.Context(), projectID); err != nil {
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}

	payload, err := decodeJobPayload(kind, req.Payload)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid payload for task kind")
		return
	}

	if kind == domain.TaskDiscoverAndCrawlSources {
		crawlPayload, _ := payload.(*domain.CrawlSourcesPayload)
		if crawlPayload == nil || len(crawlPayload.SourceIDs) == 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Crawl jobs require at least one source")
			return
		}
		related, err := h.selectionContainsRelatedSources(r.Context(), projectID, crawlPayload.SourceIDs)
		if err != nil {
			shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
			return
		}
		if related {
			shared.RespondWithError(w, r, http.StatusBadRequest,
				"Selection must not include both an ancestor source and its descendant")
			return
		}
	}

	job, err := domain.NewJob(kind, projectID, payload)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, GetSafeErrorMessage(err))
		return
	}
	if err := h.jobs.Create(r.Context(), job); err != nil {
		h.logger.Error("failed to create job",
			slog.String("project_id", projectID),
			slog.String("task_kind", string(kind)),
			slog.String("error", err.Error()))
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, jobToDTOResponse(job))
}

// GetJob handles GET /api/jobs/{jobID} requests.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.jobs.GetByID(r.Context(), jobID)
	if err != nil {
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, jobToDTOResponse(job))
}

// GetLatestJob handles GET /api/projects/{projectID}/jobs/latest?kind=…
// requests, returning the most recent job of the given kind.
func (h *JobHandler) GetLatestJob(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	kind := domain.TaskKind(r.URL.Query().Get("kind"))
	if !kind.Valid() {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Unknown task kind")
		return
	}

	job, err := h.jobs.LatestByKind(r.Context(), projectID, kind)
	if err != nil {
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, jobToDTOResponse(job))
}

// ListJobs handles GET /api/jobs requests, newest first.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	page := store.Page{}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		value, err := strconv.Atoi(limit)
		if err != nil || value < 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
		page.Limit = value
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		value, err := strconv.Atoi(offset)
		if err != nil || value < 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid offset")
			return
		}
		page.Offset = value
	}

	result, err := h.jobs.ListPaginated(r.Context(), page)
	if err != nil {
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}

	response := JobListResponse{
		Jobs:  make([]JobResponse, 0, len(result.Jobs)),
		Total: result.Total,
	}
	for _, job := range result.Jobs {
		response.Jobs = append(response.Jobs, jobToDTOResponse(job))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, response)
}

// CancelJob handles POST /api/jobs/{jobID}/cancel requests. Pending
// jobs cancel immediately; in-progress jobs enter cancelling and settle
// once the handler observes the signal.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.jobs.RequestCancel(r.Context(), jobID)
	if err != nil {
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, CancelJobResponse{
		ID:     job.ID.String(),
		Status: string(job.Status),
	})
}

// decodeJobPayload strictly decodes the raw payload into the kind's
// payload type. Unknown fields are rejected so a typo in a payload key
// fails here rather than silently losing the field.
func decodeJobPayload(kind domain.TaskKind, raw json.RawMessage) (any, error) {
	prototype := domain.PayloadPrototype(kind)
	if prototype == nil || len(raw) == 0 {
		return nil, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(prototype); err != nil {
		return nil, err
	}
	return prototype, nil
}

// selectionContainsRelatedSources reports whether the selection holds a
// source together with one of its descendants in the project hierarchy.
func (h *JobHandler) selectionContainsRelatedSources(ctx context.Context, projectID string, selection []uuid.UUID) (bool, error) {
	edges, err := h.sources.ListHierarchy(ctx, projectID)
	if err != nil {
		return false, err
	}

	children := make(map[uuid.UUID][]uuid.UUID)
	for _, edge := range edges {
		children[edge.ParentSourceID] = append(children[edge.ParentSourceID], edge.ChildSourceID)
	}
	selected := make(map[uuid.UUID]bool, len(selection))
	for _, id := range selection {
		selected[id] = true
	}

	for _, root := range selection {
		stack := append([]uuid.UUID(nil), children[root]...)
		seen := map[uuid.UUID]bool{root: true}
		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[current] {
				continue
			}
			seen[current] = true
			if selected[current] {
				return true, nil
			}
			stack = append(stack, children[current]...)
		}
	}
	return false, nil
}
