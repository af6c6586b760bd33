// Package runner drives one pass over every configured feed: it loads the
// feeders with their stored state, drains them into the sink and persists
// state at checkpoints.
package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ppiankov/changewatch/internal/config"
	"github.com/ppiankov/changewatch/internal/feeder"
	"github.com/ppiankov/changewatch/internal/filter"
	"github.com/ppiankov/changewatch/internal/logger"
	"github.com/ppiankov/changewatch/internal/resource"
	"github.com/ppiankov/changewatch/internal/sink"
)

// maxRetries bounds reconnect-and-resend attempts for one event.
const maxRetries = 3

// ErrDegraded is returned when the run finished but something was lost or
// reported along the way.
var ErrDegraded = errors.New("run completed with errors")

// Store loads and persists per-feeder state.
type Store interface {
	LoadResource(ctx context.Context, feeder string) (*resource.Resource, bool, error)
	SaveResource(ctx context.Context, feeder string, res *resource.Resource) error
}

// Factory builds a feeder variant around its prior state.
type Factory func(variant string, res *resource.Resource) (feeder.Feeder, error)

// FeederFactory returns a Factory backed by the feeder registry.
func FeederFactory(deps feeder.Deps) Factory {
	return func(variant string, res *resource.Resource) (feeder.Feeder, error) {
		return feeder.New(variant, res, deps)
	}
}

// Options narrow a run. Disable/Enable select feeders by variant name,
// Exclude/Include select feeds by name.
type Options struct {
	Disable []string
	Enable  []string
	Exclude []string
	Include []string
	DryRun  bool
}

func (o Options) feederDisabled(name string) bool {
	return slices.Contains(o.Disable, name) || (len(o.Enable) > 0 && !slices.Contains(o.Enable, name))
}

func (o Options) feedIncluded(name string) bool {
	return slices.Contains(o.Include, name) || (len(o.Include) == 0 && !slices.Contains(o.Exclude, name))
}

// Result summarizes a run.
type Result struct {
	Degraded bool
	Feeders  int
	Events   int
	Sent     int
	Filtered int
	Dropped  int
	Errors   int
	Duration time.Duration
}

type loaded struct {
	name       string
	feeder     feeder.Feeder
	blacklists map[string]*filter.Blacklist
}

type Runner struct {
	store   Store
	sink    sink.Sink
	factory Factory
	log     logger.Logger
	opts    Options
	now     func() time.Time
}

func New(st Store, sk sink.Sink, factory Factory, log logger.Logger, opts Options) (*Runner, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if sk == nil {
		return nil, errors.New("sink is required")
	}
	if factory == nil {
		return nil, errors.New("feeder factory is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{store: st, sink: sk, factory: factory, log: log, opts: opts, now: time.Now}, nil
}

// Run performs one pass. It returns an error only for fatal conditions
// (sink connect failure, cancellation) or ErrDegraded; the Result is
// always filled in.
func (r *Runner) Run(ctx context.Context, feeds []config.FeedConfig) (Result, error) {
	start := r.now()
	var res Result

	feeders := r.load(ctx, feeds, &res)

	if err := r.sink.Connect(ctx); err != nil {
		return res, fmt.Errorf("connect sink: %w", err)
	}

	var runErr error
	for _, l := range feeders {
		if l.feeder == nil {
			continue
		}
		log := r.log.With(logger.String("feeder", l.name))
		if r.opts.feederDisabled(l.name) {
			log.Debug("feeder disabled")
			continue
		}
		res.Feeders++

		before := res
		if err := r.drain(ctx, l, log, &res); err != nil {
			runErr = err
		}
		r.checkpoint(ctx, l, log, &res)
		log.Info("feeder drained",
			logger.Int("events", res.Events-before.Events),
			logger.Int("sent", res.Sent-before.Sent),
			logger.Int("errors", res.Errors-before.Errors),
		)

		if runErr != nil {
			break
		}
	}

	if err := r.sink.Disconnect(); err != nil {
		r.log.Warn("failed to disconnect sink", logger.Error(err))
	}

	res.Duration = r.now().Sub(start)
	if runErr != nil {
		return res, runErr
	}
	if res.Degraded {
		return res, ErrDegraded
	}
	return res, nil
}

// load constructs every referenced feeder once, in first-reference order,
// and registers the feeds that pass the include/exclude filters.
func (r *Runner) load(ctx context.Context, feeds []config.FeedConfig, res *Result) []*loaded {
	var order []*loaded
	byName := make(map[string]*loaded)

	for _, fc := range feeds {
		l, ok := byName[fc.Feeder]
		if !ok {
			l = &loaded{name: fc.Feeder, blacklists: make(map[string]*filter.Blacklist)}
			l.feeder = r.construct(ctx, fc.Feeder, res)
			byName[fc.Feeder] = l
			order = append(order, l)
		}

		if l.feeder == nil {
			r.log.Warn("no usable feeder for feed",
				logger.String("feeder", fc.Feeder), logger.String("feed", fc.Name))
			res.Degraded = true
			continue
		}
		if !r.opts.feedIncluded(fc.Name) {
			r.log.Debug("feed excluded", logger.String("feed", fc.Name))
			continue
		}

		bl := filter.NewBlacklist(fc.Blacklist)
		if err := bl.Err(); err != nil {
			r.log.Error("invalid blacklist pattern skipped",
				logger.String("feed", fc.Name), logger.Error(err))
			res.Degraded = true
		}
		l.blacklists[fc.Name] = bl
		l.feeder.Add(SourceFromConfig(fc))
	}

	return order
}

func (r *Runner) construct(ctx context.Context, name string, res *Result) feeder.Feeder {
	log := r.log.With(logger.String("feeder", name))
	if !feeder.Known(name) {
		log.Warn("unknown feeder")
		return nil
	}

	state, _, err := r.store.LoadResource(ctx, name)
	if err != nil {
		log.Error("stored state unreadable, starting fresh", logger.Error(err))
		res.Degraded = true
		state = resource.New()
	}

	f, err := r.factory(name, state)
	if err != nil {
		log.Warn("failed to construct feeder", logger.Error(err))
		return nil
	}
	return f
}

// drain consumes every item of one feeder. A panic inside the feeder ends
// its drain and marks the run degraded; it never reaches the caller.
func (r *Runner) drain(ctx context.Context, l *loaded, log logger.Logger, res *Result) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("feeder failed", logger.Any("panic", p))
			res.Degraded = true
			res.Errors++
		}
	}()

	for item := range l.feeder.Items(ctx) {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch item.Kind {
		case feeder.KindError:
			log.Error("source error", logger.Error(item.Err))
			res.Errors++
			res.Degraded = true
		case feeder.KindCheckpoint:
			r.checkpoint(ctx, l, log, res)
		case feeder.KindEvent:
			r.handleEvent(ctx, l, log, item.Event, res)
		}
	}
	return ctx.Err()
}

func (r *Runner) handleEvent(ctx context.Context, l *loaded, log logger.Logger, ev feeder.Event, res *Result) {
	res.Events++
	log = log.With(logger.String("feed", ev.Name))

	bl, ok := l.blacklists[ev.Name]
	if !ok {
		log.Error("event for unregistered feed dropped", logger.String("subject", ev.Subject))
		res.Dropped++
		res.Degraded = true
		return
	}
	if pattern, hit := bl.Match(ev.Subject); hit {
		log.Info("event blacklisted",
			logger.String("subject", ev.Subject), logger.String("pattern", pattern))
		res.Filtered++
		return
	}

	if err := r.dispatch(ctx, ev, log); err != nil {
		log.Error("failed to send event",
			logger.String("subject", ev.Subject), logger.Error(err))
		res.Dropped++
		res.Degraded = true
		return
	}
	res.Sent++
}

// dispatch sends one event, reconnecting and retrying on transient failures.
func (r *Runner) dispatch(ctx context.Context, ev feeder.Event, log logger.Logger) error {
	err := r.sink.Send(ctx, ev)
	for attempt := 1; err != nil && attempt <= maxRetries; attempt++ {
		if !sink.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		log.Warn("send failed, reconnecting",
			logger.Int("attempt", attempt), logger.Error(err))

		if err = r.sink.Connect(ctx); err != nil {
			continue
		}
		err = r.sink.Send(ctx, ev)
	}
	return err
}

// checkpoint persists the feeder's state. Saving ignores cancellation so an
// interrupt after a sent event still records it.
func (r *Runner) checkpoint(ctx context.Context, l *loaded, log logger.Logger, res *Result) {
	if r.opts.DryRun {
		log.Debug("dry run, state not saved")
		return
	}
	if err := r.store.SaveResource(context.WithoutCancel(ctx), l.name, l.feeder.Resource()); err != nil {
		log.Error("failed to save state", logger.Error(err))
		res.Degraded = true
	}
}

// SourceFromConfig maps a feed config entry to the source a feeder works on.
func SourceFromConfig(fc config.FeedConfig) feeder.Source {
	return feeder.Source{
		Name:             fc.Name,
		URL:              fc.URL,
		IgnoreWhiteSpace: fc.IgnoresWhiteSpace(),
		Description:      fc.Description,
		StripImages:      fc.StripImages,
		StripEmptyLinks:  fc.StripEmptyLinks,
		DedupeBRs:        fc.DedupeBRs,
		Blacklist:        fc.Blacklist,
	}
}
