package feedsvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/suprss/suprss/core"
	"github.com/suprss/suprss/core/feed"
)

const cleanupEvery = 24 * time.Hour

// Refresher is the part of feed.Service the Poller drives.
type Refresher interface {
	DueFeeds(ctx context.Context) ([]feed.Feed, error)
	RefreshFeed(ctx context.Context, f feed.Feed) (int, error)
	CleanupArticles(ctx context.Context) (int, error)
}

// Report sums up one polling round.
type Report struct {
	Due         int
	Refreshed   int
	Failed      int
	NewArticles int
}

// Poller periodically refreshes the feeds that are due, with a bounded number of workers.
type Poller struct {
	svc      Refresher
	logger   core.Logger
	interval time.Duration
	workers  int

	mu          sync.Mutex
	lastCleanup time.Time
}

func NewPoller(conf *core.Config, svc Refresher, logger core.Logger) (p *Poller, err error) {
	switch {
	case svc == nil:
		return nil, errors.New("invalid poller arguments: svc is nil")
	case logger == nil:
		return nil, errors.New("invalid poller arguments: logger is nil")
	}
	if err = vala.BeginValidation().Validate(
		vala.GreaterThan(conf.Feeds.PollWorkers, 0, "conf.Feeds.PollWorkers"),
		vala.GreaterThan(int(conf.Feeds.PollInterval/time.Second), 0, "conf.Feeds.PollInterval"),
	).Check(); err != nil {
		return nil, errors.Wrap(err, "invalid poller arguments")
	}

	return &Poller{
		svc:      svc,
		logger:   logger,
		interval: conf.Feeds.PollInterval,
		workers:  conf.Feeds.PollWorkers,
	}, nil
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info(fmt.Sprintf("feed poller started: every %s, %d workers", p.interval, p.workers))
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.tick(ctx)
		select {
		case <-ctx.Done():
			p.logger.Info("feed poller stopped")
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	rep, err := p.PollOnce(ctx)
	if err != nil && ctx.Err() == nil {
		p.logger.Error(fmt.Sprintf("polling feeds: %v", err), err)
	} else if rep.Due > 0 {
		p.logger.Info("feeds polled", map[string]interface{}{
			"due": rep.Due, "refreshed": rep.Refreshed, "failed": rep.Failed, "new_articles": rep.NewArticles,
		})
	}

	p.mu.Lock()
	due := time.Since(p.lastCleanup) >= cleanupEvery
	if due {
		p.lastCleanup = time.Now()
	}
	p.mu.Unlock()
	if due {
		if n, err := p.svc.CleanupArticles(ctx); err != nil {
			p.logger.Error(fmt.Sprintf("cleaning up articles: %v", err), err)
		} else if n > 0 {
			p.logger.Info(fmt.Sprintf("%d old articles deleted", n))
		}
	}
}

// PollOnce refreshes every due feed once. A failing feed does not stop the others.
func (p *Poller) PollOnce(ctx context.Context) (Report, error) {
	var rep Report
	feeds, err := p.svc.DueFeeds(ctx)
	if err != nil {
		return rep, errors.Wrap(err, "listing due feeds")
	}
	rep.Due = len(feeds)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, f := range feeds {
		f := f
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			n, err := p.svc.RefreshFeed(gctx, f)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.Failed++
				p.logger.Warn(fmt.Sprintf("refreshing feed %d: %v", f.ID, err))
				return nil
			}
			rep.Refreshed++
			rep.NewArticles += n
			return nil
		})
	}
	err = g.Wait()
	return rep, err
}
