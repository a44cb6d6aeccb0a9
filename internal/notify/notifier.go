package notify

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/graaaaa/raidlog-companion/internal/clock"
	"github.com/graaaaa/raidlog-companion/internal/raid"
)

// FilterConfig selects which archived raids are announced.
type FilterConfig struct {
	NotifyOnSurvived bool
	// NotifyOnDeath covers every outcome where the loadout was lost.
	NotifyOnDeath bool
}

// NotifierStatus represents the current status of the notifier.
type NotifierStatus struct {
	Disabled       bool
	DisabledReason string
	DisabledAt     time.Time
}

// DefaultMaxQueueSize is the default maximum number of queued raids.
const DefaultMaxQueueSize = 100

// DefaultBatchDelay is used when the configured delay is not positive.
const DefaultBatchDelay = 3 * time.Second

// Notifier batches archived raids into Discord messages. A dedicated
// goroutine (Run) owns sending; Enqueue may be called from anywhere.
type Notifier struct {
	sender       Sender
	afterFunc    AfterFunc
	clock        clock.Clock
	backoff      *Backoff
	batchDelay   time.Duration
	filter       FilterConfig
	logger       *slog.Logger
	maxQueueSize int

	raidCh  chan Raid
	flushCh chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}

	mu          sync.Mutex
	queue       []Raid
	timerHandle TimerHandle
	status      NotifierStatus

	// backoff state, owned by the Run goroutine
	backoffAttempt int
	backoffUntil   time.Time

	stopOnce sync.Once
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithAfterFunc sets the timer function.
func WithAfterFunc(af AfterFunc) NotifierOption {
	return func(n *Notifier) { n.afterFunc = af }
}

// WithNotifierClock sets the time source used for backoff.
func WithNotifierClock(c clock.Clock) NotifierOption {
	return func(n *Notifier) { n.clock = c }
}

// WithBackoff replaces the retry delay calculator.
func WithBackoff(b *Backoff) NotifierOption {
	return func(n *Notifier) { n.backoff = b }
}

// WithNotifierLogger sets the logger.
func WithNotifierLogger(logger *slog.Logger) NotifierOption {
	return func(n *Notifier) { n.logger = logger }
}

// WithMaxQueueSize sets the maximum queue size.
func WithMaxQueueSize(size int) NotifierOption {
	return func(n *Notifier) {
		if size > 0 {
			n.maxQueueSize = size
		}
	}
}

// NewNotifier creates a Notifier. Call Run to start processing.
func NewNotifier(sender Sender, batchDelay time.Duration, filter FilterConfig, opts ...NotifierOption) *Notifier {
	if batchDelay <= 0 {
		batchDelay = DefaultBatchDelay
	}
	n := &Notifier{
		sender:       sender,
		afterFunc:    DefaultAfterFunc,
		clock:        clock.Real,
		backoff:      NewBackoff(DefaultBackoffConfig),
		batchDelay:   batchDelay,
		filter:       filter,
		logger:       slog.Default(),
		maxQueueSize: DefaultMaxQueueSize,
		raidCh:       make(chan Raid, 64),
		flushCh:      make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Run processes queued raids until Stop is called or ctx is cancelled,
// then makes one best-effort flush.
func (n *Notifier) Run(ctx context.Context) {
	defer close(n.doneCh)

	for {
		select {
		case r := <-n.raidCh:
			n.handleRaid(r)
		case <-n.flushCh:
			n.flush(ctx)
		case <-n.stopCh:
			n.flush(ctx)
			return
		case <-ctx.Done():
			n.flush(context.Background())
			return
		}
	}
}

// OnArchived queues rec if the filter selects its outcome. It matches the
// lifecycle archive hook signature and never blocks.
func (n *Notifier) OnArchived(account string, rec *raid.ArchivedRecord) {
	if rec == nil || !n.shouldNotify(rec.Result.Outcome) {
		return
	}

	n.mu.Lock()
	disabled := n.status.Disabled
	n.mu.Unlock()
	if disabled {
		return
	}

	select {
	case n.raidCh <- Raid{Account: account, Record: rec}:
	default:
		n.logger.Warn("notification queue full, raid dropped", "account", account, "match", rec.MatchID)
	}
}

func (n *Notifier) shouldNotify(o raid.Outcome) bool {
	switch {
	case o == raid.OutcomeAbandoned:
		return false
	case o.Survived():
		return n.filter.NotifyOnSurvived
	default:
		return n.filter.NotifyOnDeath
	}
}

func (n *Notifier) handleRaid(r Raid) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.queue = append(n.queue, r)
	n.coalesceQueueLocked()

	if len(n.queue) > n.maxQueueSize {
		dropped := len(n.queue) - n.maxQueueSize
		n.queue = n.queue[dropped:]
		n.logger.Warn("notification queue overflow, dropped oldest raids", "dropped", dropped)
	}

	if n.timerHandle == nil {
		n.timerHandle = n.afterFunc(n.batchDelay, n.triggerFlush)
	}
}

// coalesceQueueLocked keeps only the latest entry per account and match;
// the rendering step groups what remains per account.
func (n *Notifier) coalesceQueueLocked() {
	if len(n.queue) <= 1 {
		return
	}
	seen := make(map[string]int, len(n.queue))
	out := n.queue[:0:0]
	for _, r := range n.queue {
		key := r.Account + "\x00" + r.Record.MatchID
		if i, ok := seen[key]; ok {
			out[i] = r
			continue
		}
		seen[key] = len(out)
		out = append(out, r)
	}
	n.queue = out
}

func (n *Notifier) triggerFlush() {
	select {
	case n.flushCh <- struct{}{}:
	default:
	}
}

func (n *Notifier) flush(ctx context.Context) {
	n.mu.Lock()
	if len(n.queue) == 0 {
		n.timerHandle = nil
		n.mu.Unlock()
		return
	}

	if now := n.clock.Now(); now.Before(n.backoffUntil) {
		remaining := n.backoffUntil.Sub(now)
		n.logger.Debug("in backoff, keeping raids queued", "queued", len(n.queue), "remaining", remaining)
		if n.timerHandle == nil {
			n.timerHandle = n.afterFunc(remaining, n.triggerFlush)
		}
		n.mu.Unlock()
		return
	}

	raids := n.queue
	n.queue = nil
	n.timerHandle = nil
	n.mu.Unlock()

	batches := splitByAccounts(raids, MaxEmbedsPerRequest)
	for i, batch := range batches {
		result, retryAfter := n.sender.Send(ctx, BuildPayloads(batch)[0])
		n.handleSendResult(result, retryAfter)
		switch result {
		case SendOK:
			continue
		case SendRetryable:
			n.requeue(slices.Concat(batches[i:]...))
		}
		return
	}
}

// requeue puts unsent raids back in front of the queue and schedules a
// flush for when the backoff ends.
func (n *Notifier) requeue(unsent []Raid) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queue = append(unsent, n.queue...)
	if len(n.queue) > n.maxQueueSize {
		n.queue = n.queue[len(n.queue)-n.maxQueueSize:]
	}
	if n.timerHandle == nil {
		n.timerHandle = n.afterFunc(n.backoffUntil.Sub(n.clock.Now()), n.triggerFlush)
	}
}

// splitByAccounts cuts raids into batches spanning at most limit accounts,
// so each batch renders to a single payload.
func splitByAccounts(raids []Raid, limit int) [][]Raid {
	var (
		batches [][]Raid
		current []Raid
		seen    = map[string]bool{}
	)
	for _, r := range raids {
		if !seen[r.Account] && len(seen) == limit {
			batches = append(batches, current)
			current, seen = nil, map[string]bool{}
		}
		seen[r.Account] = true
		current = append(current, r)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func (n *Notifier) handleSendResult(result SendResult, retryAfter time.Duration) {
	switch result {
	case SendOK:
		n.backoffAttempt = 0
		n.backoffUntil = time.Time{}

	case SendRetryable:
		n.backoffAttempt++
		delay := retryAfter
		if delay == 0 {
			delay = n.backoff.Delay(n.backoffAttempt)
		}
		n.backoffUntil = n.clock.Now().Add(delay)
		n.logger.Warn("discord send failed, backing off",
			"attempt", n.backoffAttempt, "backoff_until", n.backoffUntil)

	case SendFatal:
		n.mu.Lock()
		n.status = NotifierStatus{
			Disabled:       true,
			DisabledReason: "webhook rejected the request",
			DisabledAt:     n.clock.Now(),
		}
		n.mu.Unlock()
		n.logger.Error("discord send fatal error, notifications disabled")
	}
}

// Stop stops the notifier and waits for the run loop to finish or ctx to
// end. Safe to call more than once.
func (n *Notifier) Stop(ctx context.Context) error {
	n.stopOnce.Do(func() {
		close(n.stopCh)
	})
	select {
	case <-n.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current notifier status.
func (n *Notifier) Status() NotifierStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// QueueLength returns the number of raids waiting for the next flush.
func (n *Notifier) QueueLength() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}
