package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/steveyegge/devpulse/internal/types"
)

// ErrRefreshThrottled is returned when a project has no rollup yet and its
// on-demand refresh budget is spent.
var ErrRefreshThrottled = errors.New("dashboard refresh throttled")

// Refresher serves stored rollups and refreshes them on demand, at most
// once per Config.RefreshEvery per project.
type Refresher struct {
	agg *Aggregator
	now func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRefresher wraps an aggregator.
func NewRefresher(agg *Aggregator) *Refresher {
	return &Refresher{
		agg:      agg,
		now:      func() time.Time { return time.Now().UTC() },
		limiters: make(map[string]*rate.Limiter),
	}
}

// SetClock overrides the clock used for staleness and throttling.
func (r *Refresher) SetClock(now func() time.Time) {
	r.now = func() time.Time { return now().UTC() }
}

func (r *Refresher) limiter(project string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[project]
	if !ok {
		l = rate.NewLimiter(rate.Every(r.agg.config.RefreshEvery), r.agg.config.RefreshBurst)
		r.limiters[project] = l
	}
	return l
}

// Get returns the project's rollup with hoursSinceLastAnalysis computed
// against now. A missing rollup, or force, triggers a refresh when the
// project's limiter allows it; a throttled forced refresh falls back to the
// stored rollup.
func (r *Refresher) Get(ctx context.Context, project string, force bool) (*types.DashboardRollup, error) {
	now := r.now()
	stored, err := r.agg.store.GetRollup(ctx, project)
	if err != nil {
		return nil, err
	}
	if stored != nil && !force {
		return stored.WithStaleness(now), nil
	}

	if !r.limiter(project).AllowN(now, 1) {
		if stored != nil {
			return stored.WithStaleness(now), nil
		}
		return nil, ErrRefreshThrottled
	}
	fresh, err := r.agg.Refresh(ctx, project)
	if err != nil {
		return nil, err
	}
	return fresh.WithStaleness(now), nil
}
