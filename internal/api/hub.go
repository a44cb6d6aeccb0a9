package api

import (
	"log/slog"
	"sync"
	"time"

	"github.com/graaaaa/raidlog-companion/internal/raid"
)

const (
	defaultSubscriberBufferSize = 16
	defaultBroadcastBufferSize  = 64
	defaultBacklogSize          = 64
)

// RaidSummary is the stream payload for one archived raid.
type RaidSummary struct {
	Seq          uint64       `json:"seq"`
	Account      string       `json:"account"`
	MatchID      string       `json:"matchId"`
	Side         raid.Side    `json:"side"`
	Outcome      raid.Outcome `json:"outcome"`
	ExitName     string       `json:"exitName,omitempty"`
	EndedAt      time.Time    `json:"endedAt"`
	EntryValue   int64        `json:"entryValue"`
	GrossProfit  int64        `json:"grossProfit"`
	CombatLosses int64        `json:"combatLosses"`
	Net          int64        `json:"net"`
	Kills        int          `json:"kills"`
}

// NewRaidSummary condenses an archived record.
func NewRaidSummary(account string, rec *raid.ArchivedRecord) *RaidSummary {
	s := &RaidSummary{
		Account:      account,
		MatchID:      rec.MatchID,
		Side:         rec.Side,
		Outcome:      rec.Result.Outcome,
		ExitName:     rec.Result.ExitName,
		EndedAt:      rec.EndedAt,
		EntryValue:   rec.Totals.EntryValue,
		GrossProfit:  rec.Totals.GrossProfit,
		CombatLosses: rec.Totals.CombatLosses,
		Net:          rec.Totals.Net(),
	}
	if rec.Result.Stats != nil {
		s.Kills = len(rec.Result.Stats.Victims)
	}
	return s
}

// Subscriber represents an SSE client connection.
type Subscriber struct {
	events chan *RaidSummary
	done   chan struct{}
	after  uint64
}

// Events returns the channel for receiving summaries.
func (s *Subscriber) Events() <-chan *RaidSummary {
	return s.events
}

// Done returns a channel that is closed when the subscriber is unsubscribed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) close() {
	close(s.done)
	close(s.events)
}

// Hub fans archived-raid summaries out to subscribers. A single goroutine
// owns the subscriber set, the sequence counter and the replay backlog.
type Hub struct {
	register   chan *Subscriber
	unregister chan *Subscriber
	broadcast  chan *RaidSummary
	stop       chan struct{}
	stopped    chan struct{}
	stopOnce   sync.Once

	subscriberBufferSize int
	backlogSize          int
	logger               *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubSubscriberBufferSize sets the buffer size of subscriber channels.
func WithHubSubscriberBufferSize(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.subscriberBufferSize = size
		}
	}
}

// WithHubBacklog sets how many recent summaries are kept for replay.
func WithHubBacklog(size int) HubOption {
	return func(h *Hub) {
		if size >= 0 {
			h.backlogSize = size
		}
	}
}

// WithHubLogger sets the logger for the Hub.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub creates a new hub. Call Run to start its loop.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		register:             make(chan *Subscriber),
		unregister:           make(chan *Subscriber),
		broadcast:            make(chan *RaidSummary, defaultBroadcastBufferSize),
		stop:                 make(chan struct{}),
		stopped:              make(chan struct{}),
		subscriberBufferSize: defaultSubscriberBufferSize,
		backlogSize:          defaultBacklogSize,
		logger:               slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run starts the hub's loop and blocks until Stop is called.
func (h *Hub) Run() {
	clients := make(map[*Subscriber]struct{})
	var (
		seq     uint64
		backlog []*RaidSummary
	)
	defer close(h.stopped)

	for {
		select {
		case sub := <-h.register:
			clients[sub] = struct{}{}
			if sub.after > 0 {
				for _, s := range backlog {
					if s.Seq > sub.after {
						h.deliver(sub, s)
					}
				}
			}
			h.logger.Debug("subscriber registered", "count", len(clients))

		case sub := <-h.unregister:
			if _, ok := clients[sub]; ok {
				delete(clients, sub)
				sub.close()
				h.logger.Debug("subscriber unregistered", "count", len(clients))
			}

		case s := <-h.broadcast:
			seq++
			s.Seq = seq
			if h.backlogSize > 0 {
				backlog = append(backlog, s)
				if len(backlog) > h.backlogSize {
					backlog = backlog[len(backlog)-h.backlogSize:]
				}
			}
			for sub := range clients {
				h.deliver(sub, s)
			}

		case <-h.stop:
			for sub := range clients {
				sub.close()
			}
			return
		}
	}
}

func (h *Hub) deliver(sub *Subscriber, s *RaidSummary) {
	select {
	case sub.events <- s:
	default:
		h.logger.Warn("subscriber channel full, summary dropped",
			"seq", s.Seq, "account", s.Account, "match", s.MatchID)
	}
}

// Stop stops the hub's loop and waits for it to exit. Safe to call more
// than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	<-h.stopped
}

// Subscribe creates a new subscriber. Summaries with a sequence number
// above after that are still in the backlog are replayed first; zero
// skips replay. The caller must call Unsubscribe when done.
func (h *Hub) Subscribe(after uint64) *Subscriber {
	sub := &Subscriber{
		events: make(chan *RaidSummary, h.subscriberBufferSize),
		done:   make(chan struct{}),
		after:  after,
	}

	select {
	case h.register <- sub:
	case <-h.stopped:
		sub.close()
	}
	return sub
}

// Unsubscribe removes a subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	select {
	case h.unregister <- sub:
	case <-h.stopped:
	}
}

// Publish queues a summary for broadcast. It never blocks; when the queue
// is full the summary is dropped.
func (h *Hub) Publish(s *RaidSummary) {
	if s == nil {
		return
	}
	select {
	case h.broadcast <- s:
	case <-h.stopped:
	default:
		h.logger.Warn("broadcast channel full, summary dropped",
			"account", s.Account, "match", s.MatchID)
	}
}

// OnArchived publishes a summary of rec. It matches the lifecycle archive
// hook signature.
func (h *Hub) OnArchived(account string, rec *raid.ArchivedRecord) {
	h.Publish(NewRaidSummary(account, rec))
}
