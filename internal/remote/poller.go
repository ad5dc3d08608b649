package remote

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"
)

const (
	DefaultPollInterval = 5 * time.Second
	defaultBatchSize    = 100
)

type Puller interface {
	Pull(ctx context.Context, after int64, limit int) ([]Envelope, error)
}

// Cursor persists the last applied sequence number.
type Cursor interface {
	RemoteCursor() (string, error)
	SetRemoteCursor(string) error
}

type PollerOptions struct {
	Interval  time.Duration
	BatchSize int
	Logger    *slog.Logger
}

// Poller moves envelopes from a Puller into a Sink, advancing the cursor
// after each one.
type Poller struct {
	feed     Puller
	sink     Sink
	cursor   Cursor
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

func NewPoller(feed Puller, sink Sink, cursor Cursor, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Poller{
		feed:     feed,
		sink:     sink,
		cursor:   cursor,
		interval: opts.Interval,
		batch:    opts.BatchSize,
		logger:   opts.Logger.With("feed", "postgres"),
	}
}

// PollOnce applies everything after the cursor and returns how many
// change-sets were applied. Invalid payloads are skipped; a sink failure
// stops the cycle without advancing past the failed envelope.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	raw, err := p.cursor.RemoteCursor()
	if err != nil {
		return 0, err
	}
	var after int64
	if raw != "" {
		if after, err = strconv.ParseInt(raw, 10, 64); err != nil {
			p.logger.Warn("bad remote cursor, starting over", "cursor", raw)
			after = 0
		}
	}

	applied := 0
	for {
		envs, err := p.feed.Pull(ctx, after, p.batch)
		if err != nil {
			return applied, err
		}
		for _, env := range envs {
			set, err := Parse(env.Payload)
			if err != nil {
				p.logger.Warn("skipping invalid change set", "seq", env.Seq, "error", err)
			} else if err := p.sink.ApplyRemote(set); err != nil {
				return applied, err
			} else {
				applied++
			}
			after = env.Seq
			if err := p.cursor.SetRemoteCursor(strconv.FormatInt(after, 10)); err != nil {
				return applied, err
			}
		}
		if len(envs) < p.batch {
			return applied, nil
		}
	}
}

// Run polls immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	run := func() {
		n, err := p.PollOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Warn("remote poll failed", "error", err)
			return
		}
		if n > 0 {
			p.logger.Info("applied remote changes", "count", n)
		}
	}

	run()
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			run()
			timer.Reset(p.interval)
		}
	}
}
