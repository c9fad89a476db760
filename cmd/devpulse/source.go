package main

import (
	"context"
	"fmt"

	"github.com/steveyegge/devpulse/internal/activity"
	"github.com/steveyegge/devpulse/internal/activity/gitlog"
	"github.com/steveyegge/devpulse/internal/activity/pgsource"
	"github.com/steveyegge/devpulse/internal/config"
)

// activitySource pairs a source with its cleanup. A nil Source means the
// activity imported into the store.
type activitySource struct {
	Source activity.Source
	Close  func()
}

// openSource opens the named activity source.
func openSource(ctx context.Context, kind, repo, project string) (*activitySource, error) {
	switch kind {
	case "", config.SourceStore:
		return &activitySource{Close: func() {}}, nil
	case config.SourceGit:
		src, err := gitlog.NewSource(ctx, repo, project)
		if err != nil {
			return nil, err
		}
		return &activitySource{Source: src, Close: func() {}}, nil
	case config.SourcePostgres:
		src, err := pgsource.New(ctx, cfg.PostgresSource())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to activity database: %w", err)
		}
		return &activitySource{Source: src, Close: src.Close}, nil
	default:
		return nil, fmt.Errorf("unknown activity source %q (want %s, %s or %s)",
			kind, config.SourceStore, config.SourceGit, config.SourcePostgres)
	}
}
