package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/loreforge/loreforge/internal/domain"
	"github.com/loreforge/loreforge/internal/events"
	"github.com/loreforge/loreforge/internal/fetcher"
	"github.com/loreforge/loreforge/internal/generation"
	"github.com/loreforge/loreforge/internal/ratelimit"
	"github.com/loreforge/loreforge/internal/store"
)

// testEnv bundles the fake collaborators behind a Deps so handler tests
// can inspect state after execution. The sql.DB is an in-memory SQLite
// handle used only to satisfy the transaction helper; the fakes ignore
// the transactions they are handed.
type testEnv struct {
	deps     *Deps
	jobs     *fakeJobStore
	projects *fakeProjectStore
	sources  *fakeSourceStore
	links    *fakeLinkStore
	entries  *fakeEntryStore
	cards    *fakeCardStore
	logs     *fakeRequestLogStore
	fetcher  *fakeFetcher
	provider *fakeProvider
	events   *eventRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{
		jobs:     newFakeJobStore(),
		projects: newFakeProjectStore(),
		sources:  newFakeSourceStore(),
		links:    newFakeLinkStore(),
		entries:  newFakeEntryStore(),
		cards:    newFakeCardStore(),
		logs:     &fakeRequestLogStore{},
		fetcher:  newFakeFetcher(),
		provider: newFakeProvider(),
		events:   &eventRecorder{},
	}
	env.deps = &Deps{
		DB:              db,
		Jobs:            env.jobs,
		Projects:        env.projects,
		Sources:         env.sources,
		Links:           env.links,
		Entries:         env.entries,
		Cards:           env.cards,
		RequestLogs:     env.logs,
		Fetcher:         env.fetcher,
		Provider:        env.provider,
		Limiter:         ratelimit.NewProjectLimiter(),
		Events:          env.events,
		Logger:          slog.Default(),
		LinkConcurrency: 5,
		WriteBatchSize:  10,
	}
	return env
}

func (e *testEnv) addProject(t *testing.T, project *domain.Project) *domain.Project {
	t.Helper()
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	if project.Type == "" {
		project.Type = domain.ProjectTypeLorebook
	}
	if project.Status == "" {
		project.Status = domain.ProjectStatusLinksExtracted
	}
	if project.ModelName == "" {
		project.ModelName = "test-model"
	}
	if project.JSONMode == "" {
		project.JSONMode = domain.JSONModeAPINative
	}
	e.projects.put(project)
	return project
}

func (e *testEnv) addJob(t *testing.T, kind domain.TaskKind, projectID string, payload any) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(kind, projectID, payload)
	require.NoError(t, err)
	job.Status = domain.JobStatusInProgress
	require.NoError(t, e.jobs.Create(context.Background(), job))
	return job
}

func neverCancel() <-chan struct{} {
	return make(chan struct{})
}

func closedCancel() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

// --- fake job store ---

type fakeJobStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.Job
}

var _ store.JobStore = (*fakeJobStore)(nil)

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{rows: make(map[uuid.UUID]*domain.Job)}
}

func (s *fakeJobStore) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *job
	s.rows[job.ID] = &clone
	return nil
}

func (s *fakeJobStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.rows[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	clone := *job
	return &clone, nil
}

func (s *fakeJobStore) ClaimNextPending(_ context.Context) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *domain.Job
	for _, job := range s.rows {
		if job.Status != domain.JobStatusPending {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = domain.JobStatusInProgress
	oldest.UpdatedAt = time.Now().UTC()
	clone := *oldest
	return &clone, nil
}

func (s *fakeJobStore) Update(_ context.Context, id uuid.UUID, update domain.JobUpdate) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.rows[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	if update.Status != nil && *update.Status != job.Status {
		if !domain.CanTransition(job.Status, *update.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, job.Status, *update.Status)
		}
		job.Status = *update.Status
	}
	if update.Result != nil {
		raw, err := json.Marshal(update.Result)
		if err != nil {
			return nil, err
		}
		job.Result = raw
	}
	if update.ErrorMessage != nil {
		job.ErrorMessage = *update.ErrorMessage
	}
	if update.TotalItems != nil {
		job.Progress.TotalItems = *update.TotalItems
	}
	if update.ProcessedItems != nil {
		job.Progress.ProcessedItems = *update.ProcessedItems
	}
	if update.Percent != nil {
		job.Progress.Percent = *update.Percent
	}
	job.UpdatedAt = time.Now().UTC()
	clone := *job
	return &clone, nil
}

func (s *fakeJobStore) RequestCancel(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*domain.Job, 0, len(s.rows))
	for _, job := range s.rows {
		clone := *job
		all = append(all, &clone)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if page.Offset > len(all) {
		all = nil
	} else {
		all = all[page.Offset:]
	}
	if page.Limit > 0 && len(all) > page.Limit {
		all = all[:page.Limit]
	}
	return &store.JobPage{Jobs: all, Total: total}, nil
}

func (s *fakeJobStore) LatestByKind(_ context.Context, projectID string, kind domain.TaskKind) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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

func (s *fakeJobStore) ResetStale(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, job := range s.rows {
		if job.Status == domain.JobStatusInProgress || job.Status == domain.JobStatusCancelling {
			job.Status = domain.JobStatusPending
			count++
		}
	}
	return count, nil
}

func (s *fakeJobStore) WithTx(store.DBTX) store.JobStore { return s }

func (s *fakeJobStore) status(t *testing.T, id uuid.UUID) domain.JobStatus {
	t.Helper()
	job, err := s.GetByID(context.Background(), id)
	require.NoError(t, err)
	return job.Status
}

// --- fake project store ---

type fakeProjectStore struct {
	mu   sync.Mutex
	rows map[string]*domain.Project
}

var _ store.ProjectStore = (*fakeProjectStore)(nil)

func newFakeProjectStore() *fakeProjectStore {
	return &fakeProjectStore{rows: make(map[string]*domain.Project)}
}

func (s *fakeProjectStore) put(project *domain.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *project
	s.rows[project.ID] = &clone
}

func (s *fakeProjectStore) GetByID(_ context.Context, id string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.rows[id]
	if !ok {
		return nil, store.ErrProjectNotFound
	}
	clone := *project
	return &clone, nil
}

func (s *fakeProjectStore) Update(_ context.Context, id string, update domain.ProjectUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.rows[id]
	if !ok {
		return store.ErrProjectNotFound
	}
	if update.Status != nil {
		project.Status = *update.Status
	}
	if update.SearchParams != nil {
		params := *update.SearchParams
		project.SearchParams = &params
	}
	project.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *fakeProjectStore) WithTx(store.DBTX) store.ProjectStore { return s }

// --- fake source store ---

type fakeSourceStore struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*domain.Source
	edges []domain.SourceEdge
}

var _ store.SourceStore = (*fakeSourceStore)(nil)

func newFakeSourceStore() *fakeSourceStore {
	return &fakeSourceStore{rows: make(map[uuid.UUID]*domain.Source)}
}

func (s *fakeSourceStore) Create(_ context.Context, source *domain.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if existing.ProjectID == source.ProjectID && existing.URL == source.URL {
			return store.ErrDuplicate
		}
	}
	clone := *source
	s.rows[source.ID] = &clone
	return nil
}

func (s *fakeSourceStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	source, ok := s.rows[id]
	if !ok {
		return nil, store.ErrSourceNotFound
	}
	clone := *source
	return &clone, nil
}

func (s *fakeSourceStore) GetByURL(_ context.Context, projectID, url string) (*domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, source := range s.rows {
		if source.ProjectID == projectID && source.URL == url {
			clone := *source
			return &clone, nil
		}
	}
	return nil, store.ErrSourceNotFound
}

func (s *fakeSourceStore) ListByProject(_ context.Context, projectID string) ([]*domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.Source
	for _, source := range s.rows {
		if source.ProjectID == projectID {
			clone := *source
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *fakeSourceStore) Update(_ context.Context, id uuid.UUID, update domain.SourceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	source, ok := s.rows[id]
	if !ok {
		return store.ErrSourceNotFound
	}
	if update.ContentSelectors != nil {
		source.ContentSelectors = update.ContentSelectors
	}
	if update.CategorySelector != nil {
		source.CategorySelector = update.CategorySelector
	}
	if update.PaginationSelector != nil {
		source.PaginationSelector = *update.PaginationSelector
	}
	if update.RawContent != nil {
		source.RawContent = *update.RawContent
	}
	if update.ContentType != nil {
		source.ContentType = *update.ContentType
	}
	if update.ImageURLs != nil {
		source.ImageURLs = update.ImageURLs
	}
	if update.LastCrawledAt != nil {
		source.LastCrawledAt = update.LastCrawledAt
	}
	source.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *fakeSourceStore) AddChildEdge(_ context.Context, edge domain.SourceEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.edges {
		if existing.ParentSourceID == edge.ParentSourceID && existing.ChildSourceID == edge.ChildSourceID {
			return nil
		}
	}
	s.edges = append(s.edges, edge)
	return nil
}

func (s *fakeSourceStore) ListHierarchy(_ context.Context, projectID string) ([]domain.SourceEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.SourceEdge
	for _, edge := range s.edges {
		if edge.ProjectID == projectID {
			result = append(result, edge)
		}
	}
	return result, nil
}

func (s *fakeSourceStore) WithTx(store.DBTX) store.SourceStore { return s }

// --- fake link store ---

type fakeLinkStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.Link
}

var _ store.LinkStore = (*fakeLinkStore)(nil)

func newFakeLinkStore() *fakeLinkStore {
	return &fakeLinkStore{rows: make(map[uuid.UUID]*domain.Link)}
}

func (s *fakeLinkStore) CreateBatch(_ context.Context, links []*domain.Link) ([]*domain.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := make(map[string]bool)
	for _, link := range s.rows {
		existing[link.ProjectID+"|"+link.URL] = true
	}
	var created []*domain.Link
	for _, link := range links {
		key := link.ProjectID + "|" + link.URL
		if existing[key] {
			continue
		}
		existing[key] = true
		clone := *link
		s.rows[link.ID] = &clone
		out := clone
		created = append(created, &out)
	}
	return created, nil
}

func (s *fakeLinkStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.rows[id]
	if !ok {
		return nil, store.ErrLinkNotFound
	}
	clone := *link
	return &clone, nil
}

func (s *fakeLinkStore) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*domain.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.Link
	for _, id := range ids {
		if link, ok := s.rows[id]; ok {
			clone := *link
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (s *fakeLinkStore) ListProcessable(_ context.Context, projectID string) ([]*domain.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.Link
	for _, link := range s.rows {
		if link.ProjectID != projectID {
			continue
		}
		if link.Status == domain.LinkStatusPending || link.Status == domain.LinkStatusFailed {
			clone := *link
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *fakeLinkStore) ListURLsByProject(_ context.Context, projectID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var urls []string
	for _, link := range s.rows {
		if link.ProjectID == projectID {
			urls = append(urls, link.URL)
		}
	}
	return urls, nil
}

func (s *fakeLinkStore) Update(_ context.Context, id uuid.UUID, update domain.LinkUpdate) (*domain.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.rows[id]
	if !ok {
		return nil, store.ErrLinkNotFound
	}
	if update.Status != nil {
		link.Status = *update.Status
	}
	if update.LorebookEntryID != nil {
		link.LorebookEntryID = update.LorebookEntryID
	}
	if update.RawContent != nil {
		link.RawContent = *update.RawContent
	}
	if update.SkipReason != nil {
		link.SkipReason = *update.SkipReason
	}
	if update.ErrorMessage != nil {
		link.ErrorMessage = *update.ErrorMessage
	}
	link.UpdatedAt = time.Now().UTC()
	clone := *link
	return &clone, nil
}

func (s *fakeLinkStore) ResetProcessing(_ context.Context, projectID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, link := range s.rows {
		if link.ProjectID == projectID && link.Status == domain.LinkStatusProcessing {
			link.Status = domain.LinkStatusPending
			count++
		}
	}
	return count, nil
}

func (s *fakeLinkStore) ResetAllProcessing(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, link := range s.rows {
		if link.Status == domain.LinkStatusProcessing {
			link.Status = domain.LinkStatusPending
			count++
		}
	}
	return count, nil
}

func (s *fakeLinkStore) WithTx(store.DBTX) store.LinkStore { return s }

func (s *fakeLinkStore) countByStatus(status domain.LinkStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, link := range s.rows {
		if link.Status == status {
			count++
		}
	}
	return count
}

// --- fake entry store ---

type fakeEntryStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.LorebookEntry
}

var _ store.EntryStore = (*fakeEntryStore)(nil)

func newFakeEntryStore() *fakeEntryStore {
	return &fakeEntryStore{rows: make(map[uuid.UUID]*domain.LorebookEntry)}
}

func (s *fakeEntryStore) Create(_ context.Context, entry *domain.LorebookEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *entry
	s.rows[entry.ID] = &clone
	return nil
}

func (s *fakeEntryStore) GetByID(_ context.Context, id uuid.UUID) (*domain.LorebookEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rows[id]
	if !ok {
		return nil, store.ErrEntryNotFound
	}
	clone := *entry
	return &clone, nil
}

func (s *fakeEntryStore) WithTx(store.DBTX) store.EntryStore { return s }

func (s *fakeEntryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// --- fake card store ---

type fakeCardStore struct {
	mu   sync.Mutex
	rows map[string]*domain.CharacterCard
}

var _ store.CardStore = (*fakeCardStore)(nil)

func newFakeCardStore() *fakeCardStore {
	return &fakeCardStore{rows: make(map[string]*domain.CharacterCard)}
}

func (s *fakeCardStore) GetByProject(_ context.Context, projectID string) (*domain.CharacterCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.rows[projectID]
	if !ok {
		return nil, store.ErrCardNotFound
	}
	clone := *card
	return &clone, nil
}

func (s *fakeCardStore) Upsert(_ context.Context, card *domain.CharacterCard) (*domain.CharacterCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rows[card.ProjectID]
	clone := *card
	if ok {
		clone.ID = existing.ID
		clone.CreatedAt = existing.CreatedAt
		if clone.AvatarURL == "" {
			clone.AvatarURL = existing.AvatarURL
		}
	}
	clone.UpdatedAt = time.Now().UTC()
	s.rows[card.ProjectID] = &clone
	out := clone
	return &out, nil
}

func (s *fakeCardStore) UpdateField(_ context.Context, cardID uuid.UUID, field, value string) (*domain.CharacterCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, card := range s.rows {
		if card.ID != cardID {
			continue
		}
		if field == "avatar_url" {
			card.AvatarURL = value
		} else if !card.SetField(field, value) {
			return nil, fmt.Errorf("%w: unknown card field %q", store.ErrInvalidEntity, field)
		}
		clone := *card
		return &clone, nil
	}
	return nil, store.ErrCardNotFound
}

func (s *fakeCardStore) WithTx(store.DBTX) store.CardStore { return s }

// --- fake request log store ---

type fakeRequestLogStore struct {
	mu   sync.Mutex
	rows []*domain.RequestLog
}

var _ store.RequestLogStore = (*fakeRequestLogStore)(nil)

func (s *fakeRequestLogStore) Create(_ context.Context, row *domain.RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *row
	s.rows = append(s.rows, &clone)
	return nil
}

func (s *fakeRequestLogStore) WithTx(store.DBTX) store.RequestLogStore { return s }

func (s *fakeRequestLogStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// --- fake fetcher ---

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
}

var _ fetcher.Fetcher = (*fakeFetcher)(nil)

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: make(map[string]string),
		errs:  make(map[string]error),
	}
}

func (f *fakeFetcher) setPage(url, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = content
}

func (f *fakeFetcher) setError(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, _ fetcher.Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	content, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("no page registered for %s", url)
	}
	return content, nil
}

// --- fake model provider ---

// fakeProvider replays scripted responses in call order, unless a
// respond function is installed to choose per request.
type fakeProvider struct {
	mu        sync.Mutex
	responses []string
	respond   func(req generation.Request) (string, error)
	requests  []generation.Request
}

var _ generation.ModelProvider = (*fakeProvider)(nil)

func newFakeProvider() *fakeProvider {
	return &fakeProvider{}
}

func (p *fakeProvider) queue(responses ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, responses...)
}

func (p *fakeProvider) Generate(_ context.Context, req generation.Request) (*generation.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)

	if p.respond != nil {
		text, err := p.respond(req)
		if err != nil {
			return nil, err
		}
		return &generation.Response{Text: text}, nil
	}
	if len(p.responses) == 0 {
		return nil, fmt.Errorf("no scripted response left")
	}
	text := p.responses[0]
	p.responses = p.responses[1:]
	return &generation.Response{Text: text, Usage: generation.Usage{InputTokens: 10, OutputTokens: 5}}, nil
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// --- event recorder ---

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

var _ events.Publisher = (*eventRecorder)(nil)

func (r *eventRecorder) Publish(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) ofType(eventType events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []events.Event
	for _, event := range r.events {
		if event.Type == eventType {
			result = append(result, event)
		}
	}
	return result
}
