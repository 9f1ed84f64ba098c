package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loreforge/loreforge/internal/domain"
	"github.com/loreforge/loreforge/internal/events"
	"github.com/loreforge/loreforge/internal/store"
)

// --- fakes ---

type fakeJobStore struct {
	rows map[uuid.UUID]*domain.Job
}

var _ store.JobStore = (*fakeJobStore)(nil)

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{rows: make(map[uuid.UUID]*domain.Job)}
}

func (s *fakeJobStore) Create(_ context.Context, job *domain.Job) error {
	clone := *job
	s.rows[job.ID] = &clone
	return nil
}

func (s *fakeJobStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	job, ok := s.rows[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	clone := *job
	return &clone, nil
}

func (s *fakeJobStore) ClaimNextPending(context.Context) (*domain.Job, error) {
	return nil, nil
}

func (s *fakeJobStore) Update(_ context.Context, id uuid.UUID, update domain.JobUpdate) (*domain.Job, error) {
	job, ok := s.rows[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	if update.Status != nil {
		job.Status = *update.Status
	}
	clone := *job
	return &clone, nil
}

func (s *fakeJobStore) RequestCancel(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	job, ok := s.rows[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	switch job.Status {
	case domain.JobStatusPending:
		job.Status = domain.JobStatusCanceled
	case domain.JobStatusInProgress:
		job.Status = domain.JobStatusCancelling
	default:
		return nil, fmt.Errorf("%w: cancel from %s", store.ErrInvalidTransition, job.Status)
	}
	clone := *job
	return &clone, nil
}

func (s *fakeJobStore) ListPaginated(_ context.Context, page store.Page) (*store.JobPage, error) {
	all := make([]*domain.Job, 0, len(s.rows))
	for _, job := range s.rows {
		clone := *job
		all = append(all, &clone)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if page.Offset < len(all) {
		all = all[page.Offset:]
	} else {
		all = nil
	}
	if page.Limit > 0 && len(all) > page.Limit {
		all = all[:page.Limit]
	}
	return &store.JobPage{Jobs: all, Total: total}, nil
}

func (s *fakeJobStore) LatestByKind(_ context.Context, projectID string, kind domain.TaskKind) (*domain.Job, error) {
	var latest *domain.Job
	for _, job := range s.rows {
		if job.ProjectID != projectID || job.TaskKind != kind {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil, store.ErrJobNotFound
	}
	clone := *latest
	return &clone, nil
}

func (s *fakeJobStore) ResetStale(context.Context) (int, error) { return 0, nil }

func (s *fakeJobStore) WithTx(store.DBTX) store.JobStore { return s }

type fakeProjectStore struct {
	rows map[string]*domain.Project
}

var _ store.ProjectStore = (*fakeProjectStore)(nil)

func (s *fakeProjectStore) GetByID(_ context.Context, id string) (*domain.Project, error) {
	project, ok := s.rows[id]
	if !ok {
		return nil, store.ErrProjectNotFound
	}
	clone := *project
	return &clone, nil
}

func (s *fakeProjectStore) Update(context.Context, string, domain.ProjectUpdate) error { return nil }

func (s *fakeProjectStore) WithTx(store.DBTX) store.ProjectStore { return s }

type fakeSourceStore struct {
	edges []domain.SourceEdge
}

var _ store.SourceStore = (*fakeSourceStore)(nil)

func (s *fakeSourceStore) Create(context.Context, *domain.Source) error { return nil }

func (s *fakeSourceStore) GetByID(context.Context, uuid.UUID) (*domain.Source, error) {
	return nil, store.ErrSourceNotFound
}

func (s *fakeSourceStore) GetByURL(context.Context, string, string) (*domain.Source, error) {
	return nil, store.ErrSourceNotFound
}

func (s *fakeSourceStore) ListByProject(context.Context, string) ([]*domain.Source, error) {
	return nil, nil
}

func (s *fakeSourceStore) Update(context.Context, uuid.UUID, domain.SourceUpdate) error { return nil }

func (s *fakeSourceStore) AddChildEdge(context.Context, domain.SourceEdge) error { return nil }

func (s *fakeSourceStore) ListHierarchy(_ context.Context, projectID string) ([]domain.SourceEdge, error) {
	var result []domain.SourceEdge
	for _, edge := range s.edges {
		if edge.ProjectID == projectID {
			result = append(result, edge)
		}
	}
	return result, nil
}

func (s *fakeSourceStore) WithTx(store.DBTX) store.SourceStore { return s }

// --- helpers ---

type apiEnv struct {
	jobs     *fakeJobStore
	projects *fakeProjectStore
	sources  *fakeSourceStore
	hub      *events.Hub
	server   *httptest.Server
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	env := &apiEnv{
		jobs:     newFakeJobStore(),
		projects: &fakeProjectStore{rows: make(map[string]*domain.Project)},
		sources:  &fakeSourceStore{},
		hub:      events.NewHub(),
	}
	router := NewRouter(
		NewJobHandler(env.jobs, env.projects, env.sources, nil),
		NewEventsHandler(env.hub, nil),
	)
	env.server = httptest.NewServer(router)
	t.Cleanup(env.server.Close)
	t.Cleanup(env.hub.Shutdown)
	return env
}

func (e *apiEnv) addProject(id string) {
	e.projects.rows[id] = &domain.Project{
		ID:     id,
		Status: domain.ProjectStatusLinksExtracted,
		Type:   domain.ProjectTypeLorebook,
	}
}

func (e *apiEnv) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func (e *apiEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// --- tests ---

func TestCreateJobAccepted(t *testing.T) {
	env := newAPIEnv(t)
	env.addProject("p1")

	resp := env.post(t, "/api/projects/p1/jobs",
		`{"task_kind": "confirm_links", "payload": {"urls": ["https://wiki.test/a"]}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decodeBody[JobResponse](t, resp)
	assert.Equal(t, "confirm_links", body.TaskKind)
	assert.Equal(t, "pending", body.Status)
	assert.Equal(t, "p1", body.ProjectID)
	assert.Len(t, env.jobs.rows, 1)
}

func TestCreateJobUnknownKind(t *testing.T) {
	env := newAPIEnv(t)
	env.addProject("p1")

	resp := env.post(t, "/api/projects/p1/jobs", `{"task_kind": "mine_bitcoin"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestCreateJobUnknownProject(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.post(t, "/api/projects/ghost/jobs", `{"task_kind": "generate_search_params"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestCreateJobRejectsMalformedPayload(t *testing.T) {
	env := newAPIEnv(t)
	env.addProject("p1")

	resp := env.post(t, "/api/projects/p1/jobs",
		`{"task_kind": "confirm_links", "payload": {"urls": "not-a-list"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestCreateCrawlJobRejectsAncestorDescendantSelection(t *testing.T) {
	env := newAPIEnv(t)
	env.addProject("p1")

	parent := uuid.New()
	middle := uuid.New()
	leaf := uuid.New()
	env.sources.edges = []domain.SourceEdge{
		{ProjectID: "p1", ParentSourceID: parent, ChildSourceID: middle},
		{ProjectID: "p1", ParentSourceID: middle, ChildSourceID: leaf},
	}

	// parent and leaf are related through middle even though no direct
	// edge connects them.
	body := fmt.Sprintf(`{"task_kind": "discover_and_crawl_sources", "payload": {"source_ids": [%q, %q]}}`,
		parent, leaf)
	resp := env.post(t, "/api/projects/p1/jobs", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	// Siblings are fine.
	sibling := uuid.New()
	env.sources.edges = append(env.sources.edges,
		domain.SourceEdge{ProjectID: "p1", ParentSourceID: parent, ChildSourceID: sibling})
	body = fmt.Sprintf(`{"task_kind": "discover_and_crawl_sources", "payload": {"source_ids": [%q, %q]}}`,
		middle, sibling)
	resp = env.post(t, "/api/projects/p1/jobs", body)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestGetJob(t *testing.T) {
	env := newAPIEnv(t)
	job, err := domain.NewJob(domain.TaskProcessProjectEntries, "p1", nil)
	require.NoError(t, err)
	require.NoError(t, env.jobs.Create(context.Background(), job))

	resp := env.get(t, "/api/jobs/"+job.ID.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[JobResponse](t, resp)
	assert.Equal(t, job.ID.String(), body.ID)

	resp = env.get(t, "/api/jobs/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.get(t, "/api/jobs/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestGetLatestJob(t *testing.T) {
	env := newAPIEnv(t)
	env.addProject("p1")

	older, err := domain.NewJob(domain.TaskRescanLinks, "p1", nil)
	require.NoError(t, err)
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	require.NoError(t, env.jobs.Create(context.Background(), older))

	newer, err := domain.NewJob(domain.TaskRescanLinks, "p1", nil)
	require.NoError(t, err)
	require.NoError(t, env.jobs.Create(context.Background(), newer))

	resp := env.get(t, "/api/projects/p1/jobs/latest?kind=rescan_links")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[JobResponse](t, resp)
	assert.Equal(t, newer.ID.String(), body.ID)

	resp = env.get(t, "/api/projects/p1/jobs/latest?kind=confirm_links")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestListJobs(t *testing.T) {
	env := newAPIEnv(t)
	for i := 0; i < 3; i++ {
		job, err := domain.NewJob(domain.TaskRescanLinks, "p1", nil)
		require.NoError(t, err)
		job.CreatedAt = job.CreatedAt.Add(time.Duration(i) * time.Minute)
		require.NoError(t, env.jobs.Create(context.Background(), job))
	}

	resp := env.get(t, "/api/jobs?limit=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[JobListResponse](t, resp)
	assert.Len(t, body.Jobs, 2)
	assert.Equal(t, 3, body.Total)

	resp = env.get(t, "/api/jobs?limit=banana")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestCancelJob(t *testing.T) {
	env := newAPIEnv(t)

	pending, err := domain.NewJob(domain.TaskRescanLinks, "p1", nil)
	require.NoError(t, err)
	require.NoError(t, env.jobs.Create(context.Background(), pending))

	resp := env.post(t, "/api/jobs/"+pending.ID.String()+"/cancel", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody[CancelJobResponse](t, resp)
	assert.Equal(t, "canceled", body.Status)

	// A terminal job cannot be canceled again.
	resp = env.post(t, "/api/jobs/"+pending.ID.String()+"/cancel", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()

	running, err := domain.NewJob(domain.TaskRescanLinks, "p1", nil)
	require.NoError(t, err)
	running.Status = domain.JobStatusInProgress
	require.NoError(t, env.jobs.Create(context.Background(), running))

	resp = env.post(t, "/api/jobs/"+running.ID.String()+"/cancel", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body = decodeBody[CancelJobResponse](t, resp)
	assert.Equal(t, "cancelling", body.Status)
}

func TestEventStreamDeliversProjectEvents(t *testing.T) {
	env := newAPIEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/api/events?project_id=p1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Give the subscriber a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)
	env.hub.Publish(events.Event{Type: events.TypeJobUpdated, ProjectID: "p1"})
	env.hub.Publish(events.Event{Type: events.TypeJobUpdated, ProjectID: "other"})

	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	chunk := string(buf[:n])
	assert.Contains(t, chunk, "event: job_updated")
	assert.Contains(t, chunk, `"project_id":"p1"`)
	assert.NotContains(t, chunk, `"other"`)
}
