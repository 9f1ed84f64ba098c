// Package ratelimit paces outbound model calls per project.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// ProjectLimiter holds one token bucket per project, sized from the
// project's requests-per-minute setting. A project with no positive
// limit passes through unthrottled.
type ProjectLimiter struct {
	mu       sync.Mutex
	limiters map[string]*projectBucket
}

type projectBucket struct {
	limiter   *rate.Limiter
	perMinute int
}

// NewProjectLimiter creates an empty limiter registry.
func NewProjectLimiter() *ProjectLimiter {
	return &ProjectLimiter{limiters: make(map[string]*projectBucket)}
}

// Wait blocks until the project may issue another model call, or until
// the context is done. Changing a project's requests-per-minute setting
// replaces its bucket on the next call.
func (l *ProjectLimiter) Wait(ctx context.Context, projectID string, perMinute int) error {
	if perMinute <= 0 {
		return nil
	}
	return l.bucket(projectID, perMinute).Wait(ctx)
}

// Allow reports whether the project may issue a call right now without
// blocking, consuming a token if so.
func (l *ProjectLimiter) Allow(projectID string, perMinute int) bool {
	if perMinute <= 0 {
		return true
	}
	return l.bucket(projectID, perMinute).Allow()
}

func (l *ProjectLimiter) bucket(projectID string, perMinute int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.limiters[projectID]
	if !ok || bucket.perMinute != perMinute {
		bucket = &projectBucket{
			limiter:   rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
			perMinute: perMinute,
		}
		l.limiters[projectID] = bucket
	}
	return bucket.limiter
}

// Forget drops a project's bucket, releasing its state after a project
// is deleted.
func (l *ProjectLimiter) Forget(projectID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, projectID)
}
