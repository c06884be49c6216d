package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) pollFeeds(ctx context.Context) error {
	rep, err := cli.poller.PollOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d due feeds: %d refreshed, %d failed, %d new articles\n",
		rep.Due, rep.Refreshed, rep.Failed, rep.NewArticles)
	return nil
}

func (cli *commandLine) cleanup(ctx context.Context) error {
	n, err := cli.feeds.CleanupArticles(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d old articles deleted\n", n)
	return nil
}
