package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/goliatone/go-graph-cache/internal/metrics"
	"github.com/goliatone/go-graph-cache/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Publisher hands an activity over for delivery. FanOut delivers inline;
// transports such as a message queue deliver later.
type Publisher interface {
	Publish(ctx context.Context, a Activity) (Report, error)
}

// Report summarises one Publish call.
type Report struct {
	ActivityID string
	Targets    int
	Delivered  int
	Trimmed    int64
	// Queued is set when the activity was handed to an asynchronous transport.
	Queued bool
}

// Retention bounds every feed stream. MaxLength is enforced on every append;
// MaxAge only by Sweep, so an activity published with an old timestamp is
// readable until the next sweep.
type Retention struct {
	// MaxLength keeps the newest N activities per feed. Zero disables it.
	MaxLength int64
	// MaxAge drops activities older than it. Zero disables it.
	MaxAge time.Duration
}

// DefaultRetention keeps the newest 1000 activities of each feed for 30 days.
func DefaultRetention() Retention {
	return Retention{
		MaxLength: 1000,
		MaxAge:    30 * 24 * time.Hour,
	}
}

func (r Retention) appendPolicy() TrimPolicy {
	return TrimPolicy{MaxLen: r.MaxLength}
}

func (r Retention) policy(now time.Time) TrimPolicy {
	p := TrimPolicy{MaxLen: r.MaxLength}
	if r.MaxAge > 0 {
		p.MinScore = now.Add(-r.MaxAge).UnixMilli()
	}
	return p
}

// FanOut appends activities to the feeds of their targets.
type FanOut struct {
	stream      Stream
	resolver    TargetResolver
	retention   Retention
	concurrency int
	global      bool
	logger      logger.Logger
	metrics     metrics.Recorder
	now         func() time.Time
}

// Option customises a FanOut.
type Option func(*FanOut)

// WithResolver sets the target resolver. SelfResolver is used by default.
func WithResolver(r TargetResolver) Option {
	return func(f *FanOut) {
		if r != nil {
			f.resolver = r
		}
	}
}

// WithRetention sets the retention applied after each append and by Sweep.
func WithRetention(r Retention) Option {
	return func(f *FanOut) {
		f.retention = r
	}
}

// WithConcurrency bounds the number of parallel stream appends per activity.
func WithConcurrency(n int) Option {
	return func(f *FanOut) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithGlobalStream mirrors every activity to GlobalKey.
func WithGlobalStream(enabled bool) Option {
	return func(f *FanOut) {
		f.global = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(f *FanOut) {
		f.logger = logger.OrNop(l)
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(f *FanOut) {
		f.metrics = metrics.OrNoop(m)
	}
}

// WithClock overrides the clock used for age based retention.
func WithClock(now func() time.Time) Option {
	return func(f *FanOut) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFanOut creates a FanOut writing to stream.
func NewFanOut(stream Stream, opts ...Option) *FanOut {
	f := &FanOut{
		stream:      stream,
		resolver:    SelfResolver{},
		retention:   DefaultRetention(),
		concurrency: 8,
		logger:      logger.NewNopLogger(),
		metrics:     metrics.Noop{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Publish validates a and appends it to the feed of every target.
//
// A failing target never stops the others. When some targets fail the
// returned error is a *PartialFailureError and the report still counts the
// successful deliveries.
func (f *FanOut) Publish(ctx context.Context, a Activity) (Report, error) {
	report := Report{ActivityID: a.ID}
	if err := a.Validate(); err != nil {
		return report, err
	}

	member, err := json.Marshal(a)
	if err != nil {
		return report, err
	}

	keys := f.targetKeys(ctx, a)
	report.Targets = len(keys)

	var (
		mu     sync.Mutex
		failed []TargetError
	)
	policy := f.retention.appendPolicy()

	g := new(errgroup.Group)
	g.SetLimit(f.concurrency)
	for _, key := range keys {
		g.Go(func() error {
			trimmed, err := f.append(ctx, key, a.Score(), member, policy)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, TargetError{Key: key, Err: err})
				return nil
			}
			report.Delivered++
			report.Trimmed += trimmed
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		return report, &PartialFailureError{
			ActivityID: a.ID,
			Delivered:  report.Delivered,
			Failed:     failed,
		}
	}
	return report, nil
}

func (f *FanOut) append(ctx context.Context, key string, score int64, member []byte, policy TrimPolicy) (int64, error) {
	if err := f.stream.Append(ctx, key, score, member); err != nil {
		f.metrics.FanOutFailure(streamLabel(key))
		f.logger.Warn("feed append failed",
			logger.String("stream", key),
			logger.Error(err))
		return 0, err
	}
	f.metrics.FanOutAppend(streamLabel(key))

	if policy.IsZero() {
		return 0, nil
	}
	removed, err := f.stream.Trim(ctx, key, policy)
	if err != nil {
		f.logger.Warn("feed trim failed",
			logger.String("stream", key),
			logger.Error(err))
		return 0, nil
	}
	if removed > 0 {
		f.metrics.FeedTrimmed(removed)
	}
	return removed, nil
}

func (f *FanOut) targetKeys(ctx context.Context, a Activity) []string {
	ids, err := f.resolver.Targets(ctx, a)
	if err != nil {
		f.logger.Warn("feed target resolution failed, delivering to actor only",
			logger.String("activity", a.ID),
			logger.Int64("actor", a.ActorID),
			logger.Error(err))
		ids = []int64{a.ActorID}
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, Key(id))
	}
	if f.global {
		keys = append(keys, GlobalKey)
	}
	return keys
}

// Sweep applies the retention policy to every feed stream and returns the
// number of removed activities. A failing stream is logged and skipped.
func (f *FanOut) Sweep(ctx context.Context) (int64, error) {
	policy := f.retention.policy(f.now())
	if policy.IsZero() {
		return 0, nil
	}

	var removed int64
	trim := func(key string) error {
		n, err := f.stream.Trim(ctx, key, policy)
		if err != nil {
			f.logger.Warn("feed sweep failed for stream",
				logger.String("stream", key),
				logger.Error(err))
			return nil
		}
		removed += n
		return nil
	}

	if err := f.stream.ScanKeys(ctx, FeedKeyPattern, trim); err != nil {
		return removed, err
	}
	if f.global {
		_ = trim(GlobalKey)
	}
	if removed > 0 {
		f.metrics.FeedTrimmed(removed)
	}
	return removed, nil
}

func streamLabel(key string) string {
	if key == GlobalKey {
		return "global"
	}
	return "user"
}
