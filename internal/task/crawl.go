package task

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/google/uuid"

	"github.com/loreforge/loreforge/internal/domain"
	"github.com/loreforge/loreforge/internal/fetcher"
	"github.com/loreforge/loreforge/internal/generation"
	"github.com/loreforge/loreforge/internal/platform/logger"
	"github.com/loreforge/loreforge/internal/store"
	"github.com/loreforge/loreforge/internal/templates"
)

// crawlItem is one BFS queue entry.
type crawlItem struct {
	sourceID uuid.UUID
	depth    int
}

// crawlState is shared across the whole BFS run: dedup spans every
// source crawled by the job, not just one page.
type crawlState struct {
	queue         []crawlItem
	visitedURLs   map[string]bool
	newLinks      map[string]bool
	existingLinks map[string]bool
	existingDB    map[string]bool

	newSources         int
	selectorsGenerated int
	processed          int
	failedSources      []uuid.UUID
}

func (s *crawlState) enqueue(sourceID uuid.UUID, depth int) {
	s.queue = append(s.queue, crawlItem{sourceID: sourceID, depth: depth})
}

func (s *crawlState) dequeue() (crawlItem, bool) {
	if len(s.queue) == 0 {
		return crawlItem{}, false
	}
	item := s.queue[0]
	s.queue = s.queue[1:]
	return item, true
}

// crawlEngine is the BFS core shared by the discover-and-crawl and
// rescan handlers.
type crawlEngine struct {
	deps *Deps
}

// pageLinks is what one crawled page contributed.
type pageLinks struct {
	content    []string
	categories []string
	nextPage   string
}

// exclusionMatcher compiles a source's URL exclusion patterns. Patterns
// wrapped in slashes are regexes; an invalid regex degrades to plain
// substring matching.
type exclusionMatcher struct {
	substrings []string
	regexes    []*regexp.Regexp
}

func newExclusionMatcher(patterns []string) *exclusionMatcher {
	m := &exclusionMatcher{}
	for _, pattern := range patterns {
		if len(pattern) >= 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
			re, err := regexp.Compile(pattern[1 : len(pattern)-1])
			if err == nil {
				m.regexes = append(m.regexes, re)
				continue
			}
		}
		m.substrings = append(m.substrings, pattern)
	}
	return m
}

func (m *exclusionMatcher) excluded(target string) bool {
	for _, re := range m.regexes {
		if re.MatchString(target) {
			return true
		}
	}
	for _, sub := range m.substrings {
		if strings.Contains(target, sub) {
			return true
		}
	}
	return false
}

// selectURLs applies one set of CSS selectors to a page, resolving
// hrefs against the page URL and dropping excluded targets. An invalid
// selector is logged and skipped, never fatal.
func selectURLs(ctx context.Context, doc *goquery.Document, selectors []string, base *url.URL, exclude *exclusionMatcher) map[string]bool {
	log := logger.FromContext(ctx)
	found := make(map[string]bool)

	for _, selector := range selectors {
		matcher, err := cascadia.Compile(selector)
		if err != nil {
			log.Warn("invalid CSS selector, skipping",
				slog.String("selector", selector),
				slog.String("error", err.Error()))
			continue
		}
		doc.FindMatcher(matcher).Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok || href == "" {
				return
			}
			resolved, err := base.Parse(href)
			if err != nil {
				return
			}
			absolute := resolved.String()
			if !exclude.excluded(absolute) {
				found[absolute] = true
			}
		})
	}
	return found
}

// crawlPage fetches one page and extracts its links per the selectors.
func (e *crawlEngine) crawlPage(ctx context.Context, pageURL string, selectors *generation.SelectorResponse, exclude *exclusionMatcher) (*pageLinks, error) {
	content, err := e.deps.Fetcher.Fetch(ctx, pageURL, fetcher.Options{Format: fetcher.FormatHTML, Clean: true})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page %s: %w", pageURL, err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page URL %s: %w", pageURL, err)
	}

	contentSet := selectURLs(ctx, doc, selectors.ContentSelectors, base, exclude)
	categorySet := selectURLs(ctx, doc, selectors.CategorySelectors, base, exclude)

	// Content precedence: a URL matched by both selector sets is kept
	// only as content.
	for u := range contentSet {
		delete(categorySet, u)
	}

	links := &pageLinks{}
	for u := range contentSet {
		links.content = append(links.content, u)
	}
	for u := range categorySet {
		links.categories = append(links.categories, u)
	}

	if selectors.PaginationSelector != "" {
		if matcher, err := cascadia.Compile(selectors.PaginationSelector); err == nil {
			if href, ok := doc.FindMatcher(matcher).First().Attr("href"); ok && href != "" {
				if resolved, err := base.Parse(href); err == nil {
					links.nextPage = resolved.String()
				}
			}
		} else {
			logger.FromContext(ctx).Warn("invalid pagination selector, skipping",
				slog.String("selector", selectors.PaginationSelector))
		}
	}
	return links, nil
}

// crawlSource runs the paged crawl of one source, classifies discovered
// content URLs against the run state, and expands categories found on
// the first page into child sources.
func (e *crawlEngine) crawlSource(ctx context.Context, project *domain.Project, source *domain.Source, selectors *generation.SelectorResponse, depth int, state *crawlState) error {
	log := logger.FromContext(ctx)
	exclude := newExclusionMatcher(source.ExclusionPatterns)

	currentURL := source.URL
	pagesCrawled := 0
	var firstPageCategories []string

	for currentURL != "" && pagesCrawled < source.MaxPagesToCrawl {
		log.Info("crawling page",
			slog.String("source_id", source.ID.String()),
			slog.Int("page", pagesCrawled+1),
			slog.String("url", currentURL))

		links, err := e.crawlPage(ctx, currentURL, selectors, exclude)
		if err != nil {
			// A page failure halts this source's remaining pages but
			// does not abort the job.
			log.Error("page crawl failed, halting source",
				slog.String("source_id", source.ID.String()),
				slog.String("url", currentURL),
				slog.String("error", err.Error()))
			break
		}
		pagesCrawled++

		for _, u := range links.content {
			switch {
			case state.existingDB[u]:
				state.existingLinks[u] = true
			case !state.newLinks[u]:
				state.newLinks[u] = true
			}
		}

		if pagesCrawled == 1 {
			firstPageCategories = links.categories
		}

		// Pagination: stop on no next page, a self-loop, or the page cap.
		if links.nextPage == "" || links.nextPage == currentURL {
			currentURL = ""
		} else {
			currentURL = links.nextPage
		}
	}

	// Category expansion and the crawl timestamp share one short
	// transaction per source. Child sources are recorded even at the
	// depth limit; only crawling them is gated by depth.
	now := time.Now().UTC()
	return store.RunInTransaction(ctx, e.deps.DB, func(ctx context.Context, tx *sql.Tx) error {
		sources := e.deps.Sources.WithTx(tx)

		for _, catURL := range firstPageCategories {
			if state.visitedURLs[catURL] {
				continue
			}
			state.visitedURLs[catURL] = true

			child, err := sources.GetByURL(ctx, project.ID, catURL)
			if store.IsNotFound(err) {
				child, err = domain.NewSource(project.ID, catURL)
				if err != nil {
					return err
				}
				child.MaxPagesToCrawl = source.MaxPagesToCrawl
				child.MaxCrawlDepth = source.MaxCrawlDepth
				child.ExclusionPatterns = source.ExclusionPatterns
				if err := sources.Create(ctx, child); err != nil {
					return err
				}
				state.newSources++
			} else if err != nil {
				return err
			}

			if err := sources.AddChildEdge(ctx, domain.SourceEdge{
				ProjectID:      project.ID,
				ParentSourceID: source.ID,
				ChildSourceID:  child.ID,
			}); err != nil {
				return err
			}
			if depth < source.MaxCrawlDepth {
				state.enqueue(child.ID, depth+1)
			}
		}

		return sources.Update(ctx, source.ID, domain.SourceUpdate{LastCrawledAt: &now})
	})
}

// generateSelectors asks the model for the source's crawl selectors and
// persists them on the source row.
func (e *crawlEngine) generateSelectors(ctx context.Context, job *domain.Job, project *domain.Project, source *domain.Source) (*generation.SelectorResponse, error) {
	content, err := e.deps.Fetcher.Fetch(ctx, source.URL, fetcher.Options{Format: fetcher.FormatHTML, Clean: true})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source page: %w", err)
	}

	if project.SearchParams == nil {
		return nil, fmt.Errorf("project has no search params")
	}
	system, err := templates.Render("selector_generation",
		templates.Pick(project.Templates.SelectorGeneration, templates.SelectorGeneration),
		templates.SelectorData{
			Purpose:         project.SearchParams.Purpose,
			ExtractionNotes: project.SearchParams.ExtractionNotes,
			Criteria:        project.SearchParams.Criteria,
		})
	if err != nil {
		return nil, err
	}

	req, err := buildRequest(project,
		[]string{templates.LorebookDefinition, system},
		content,
		generation.SelectorSchema())
	if err != nil {
		return nil, err
	}

	resp, err := e.deps.generate(ctx, job, project, req)
	if err != nil {
		return nil, fmt.Errorf("selector generation failed for source %s: %w", source.ID, err)
	}

	var selectors generation.SelectorResponse
	if err := generation.DecodeInto(resp.Text, &selectors); err != nil {
		return nil, fmt.Errorf("selector response invalid for source %s: %w", source.ID, err)
	}

	update := domain.SourceUpdate{
		ContentSelectors:   selectors.ContentSelectors,
		CategorySelector:   selectors.CategorySelectors,
		PaginationSelector: &selectors.PaginationSelector,
	}
	if err := e.deps.Sources.Update(ctx, source.ID, update); err != nil {
		return nil, fmt.Errorf("failed to persist selectors: %w", err)
	}
	return &selectors, nil
}

// run executes the BFS over the payload's sources. generate selects
// between the two entry points: discover-and-crawl generates selectors
// per source, rescan reuses stored ones.
func (e *crawlEngine) run(ctx context.Context, job *domain.Job, project *domain.Project, cancel <-chan struct{}, generateSelectors bool) error {
	log := logger.FromContext(ctx)

	payload, ok := job.DecodePayload().(*domain.CrawlSourcesPayload)
	if !ok {
		return fmt.Errorf("invalid payload for %s job", job.TaskKind)
	}

	existingURLs, err := e.deps.Links.ListURLsByProject(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("failed to list existing link URLs: %w", err)
	}

	state := &crawlState{
		visitedURLs:   make(map[string]bool),
		newLinks:      make(map[string]bool),
		existingLinks: make(map[string]bool),
		existingDB:    make(map[string]bool, len(existingURLs)),
	}
	for _, u := range existingURLs {
		state.existingDB[u] = true
	}

	for _, sourceID := range payload.SourceIDs {
		source, err := e.deps.Sources.GetByID(ctx, sourceID)
		if store.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		state.enqueue(source.ID, 1)
		state.visitedURLs[source.URL] = true
	}

	if _, err := e.deps.updateJob(ctx, nil, job.ID, project.ID, progressUpdate(0, len(state.queue))); err != nil {
		return err
	}

	canceled := false
	for {
		if cancelRequested(cancel) {
			log.Info("crawl loop stopping on cancellation")
			canceled = true
			break
		}
		item, ok := state.dequeue()
		if !ok {
			break
		}

		if err := e.processQueuedSource(ctx, job, project, item, state, generateSelectors); err != nil {
			log.Error("source crawl failed",
				slog.String("source_id", item.sourceID.String()),
				slog.String("error", err.Error()))
			state.failedSources = append(state.failedSources, item.sourceID)
		}

		state.processed++
		if _, err := e.deps.updateJob(ctx, nil, job.ID, project.ID,
			progressUpdate(state.processed, state.processed+len(state.queue))); err != nil {
			return err
		}
	}

	return e.finalize(ctx, job, project, state, canceled, generateSelectors)
}

func (e *crawlEngine) processQueuedSource(ctx context.Context, job *domain.Job, project *domain.Project, item crawlItem, state *crawlState, generateSelectors bool) error {
	source, err := e.deps.Sources.GetByID(ctx, item.sourceID)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var selectors *generation.SelectorResponse
	if generateSelectors {
		selectors, err = e.generateSelectors(ctx, job, project, source)
		if err != nil {
			return err
		}
		state.selectorsGenerated++
	} else {
		if len(source.ContentSelectors) == 0 {
			logger.FromContext(ctx).Warn("source has no stored selectors, skipping rescan",
				slog.String("source_id", source.ID.String()))
			return nil
		}
		// Rescan reuses stored content selectors only; category
		// discovery requires a fresh selector pass.
		selectors = &generation.SelectorResponse{
			ContentSelectors:   source.ContentSelectors,
			PaginationSelector: source.PaginationSelector,
		}
	}

	return e.crawlSource(ctx, project, source, selectors, item.depth, state)
}

func (e *crawlEngine) finalize(ctx context.Context, job *domain.Job, project *domain.Project, state *crawlState, canceled, discovered bool) error {
	return store.RunInTransaction(ctx, e.deps.DB, func(ctx context.Context, tx *sql.Tx) error {
		if canceled {
			status := domain.JobStatusCanceled
			_, err := e.deps.updateJob(ctx, tx, job.ID, project.ID, domain.JobUpdate{Status: &status})
			return err
		}

		if discovered && project.Status == domain.ProjectStatusSearchParamsGenerated {
			status := domain.ProjectStatusSelectorGenerated
			if err := e.deps.Projects.WithTx(tx).Update(ctx, project.ID, domain.ProjectUpdate{Status: &status}); err != nil {
				return err
			}
		}

		status := domain.JobStatusCompleted
		percent := 100.0
		_, err := e.deps.updateJob(ctx, tx, job.ID, project.ID, domain.JobUpdate{
			Status:  &status,
			Percent: &percent,
			Result: domain.CrawlSourcesResult{
				NewLinks:           sortedKeys(state.newLinks),
				ExistingLinks:      sortedKeys(state.existingLinks),
				NewSourcesCreated:  state.newSources,
				SelectorsGenerated: state.selectorsGenerated,
				SourcesFailed:      state.failedSources,
			},
		})
		return err
	})
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DiscoverAndCrawlHandler generates selectors per source, then crawls.
type DiscoverAndCrawlHandler struct {
	engine crawlEngine
}

// NewDiscoverAndCrawlHandler wires the discover-and-crawl entry point.
func NewDiscoverAndCrawlHandler(deps *Deps) *DiscoverAndCrawlHandler {
	return &DiscoverAndCrawlHandler{engine: crawlEngine{deps: deps}}
}

var _ Handler = (*DiscoverAndCrawlHandler)(nil)

// Kind implements Handler.
func (h *DiscoverAndCrawlHandler) Kind() domain.TaskKind { return domain.TaskDiscoverAndCrawlSources }

// Execute implements Handler.
func (h *DiscoverAndCrawlHandler) Execute(ctx context.Context, job *domain.Job, project *domain.Project, cancel <-chan struct{}) error {
	if project.SearchParams == nil {
		return fmt.Errorf("project must have search params before discovery")
	}
	return h.engine.run(ctx, job, project, cancel, true)
}

// RescanLinksHandler re-crawls sources with their stored selectors; no
// model calls are made.
type RescanLinksHandler struct {
	engine crawlEngine
}

// NewRescanLinksHandler wires the rescan entry point.
func NewRescanLinksHandler(deps *Deps) *RescanLinksHandler {
	return &RescanLinksHandler{engine: crawlEngine{deps: deps}}
}

var _ Handler = (*RescanLinksHandler)(nil)

// Kind implements Handler.
func (h *RescanLinksHandler) Kind() domain.TaskKind { return domain.TaskRescanLinks }

// Execute implements Handler.
func (h *RescanLinksHandler) Execute(ctx context.Context, job *domain.Job, project *domain.Project, cancel <-chan struct{}) error {
	return h.engine.run(ctx, job, project, cancel, false)
}
