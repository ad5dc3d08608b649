package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/sadopc/issuedesk/internal/remote"
)

// startFeeds runs the configured remote feeds in the background until ctx
// is done. The returned stop waits for them and closes the Postgres feed.
func startFeeds(ctx context.Context, e *env) (stop func(), err error) {
	var wg sync.WaitGroup
	var pg *remote.PostgresFeed

	if e.cfg.RemoteDSN != "" {
		pg, err = remote.NewPostgresFeed(e.cfg.RemoteDSN)
		if err != nil {
			return nil, fmt.Errorf("remote feed: %w", err)
		}
		poller := remote.NewPoller(pg, e.sess, e.sess, remote.PollerOptions{
			Interval: e.cfg.PollInterval,
			Logger:   e.logger,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
	}

	if e.cfg.InboxDir != "" {
		feed := remote.NewDirFeed(e.cfg.InboxDir, e.sess, e.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := feed.Run(ctx); err != nil {
				e.logger.Error("inbox feed stopped", "dir", e.cfg.InboxDir, "error", err)
			}
		}()
	}

	return func() {
		wg.Wait()
		if pg != nil {
			pg.Close()
		}
	}, nil
}
