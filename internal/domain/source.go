package domain

import (
	"time"

	"github.com/google/uuid"
)

// SourceContentType describes the format of a source's cached content.
type SourceContentType string

const (
	ContentTypeHTML     SourceContentType = "html"
	ContentTypeMarkdown SourceContentType = "markdown"
)

// Source is a crawl unit: a URL plus the crawl limits, learned selectors
// and cached content associated with it.
type Source struct {
	ID                 uuid.UUID         `json:"id"`
	ProjectID          string            `json:"project_id"`
	URL                string            `json:"url"`
	ContentSelectors   []string          `json:"content_selectors,omitempty"`
	CategorySelector   []string          `json:"category_selectors,omitempty"`
	PaginationSelector string            `json:"pagination_selector,omitempty"`
	ExclusionPatterns  []string          `json:"url_exclusion_patterns,omitempty"`
	MaxPagesToCrawl    int               `json:"max_pages_to_crawl"`
	MaxCrawlDepth      int               `json:"max_crawl_depth"`
	RawContent         string            `json:"raw_content,omitempty"`
	ContentType        SourceContentType `json:"content_type,omitempty"`
	ImageURLs          []string          `json:"image_urls,omitempty"`
	LastCrawledAt      *time.Time        `json:"last_crawled_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// NewSource creates a source with the default crawl limits.
func NewSource(projectID, url string) (*Source, error) {
	if projectID == "" {
		return nil, ErrEmptyProjectID
	}
	if url == "" {
		return nil, ErrEmptyURL
	}
	now := time.Now().UTC()
	return &Source{
		ID:              uuid.New(),
		ProjectID:       projectID,
		URL:             url,
		MaxPagesToCrawl: 20,
		MaxCrawlDepth:   1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// SourceUpdate carries a partial update for a source row.
type SourceUpdate struct {
	ContentSelectors   []string
	CategorySelector   []string
	PaginationSelector *string
	RawContent         *string
	ContentType        *SourceContentType
	ImageURLs          []string
	LastCrawledAt      *time.Time
}

// SourceEdge is a parent-source to child-source relation recorded when
// the crawl engine discovers a new category page.
type SourceEdge struct {
	ProjectID      string    `json:"project_id"`
	ParentSourceID uuid.UUID `json:"parent_source_id"`
	ChildSourceID  uuid.UUID `json:"child_source_id"`
}
