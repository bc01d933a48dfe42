package gridlive

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval matches the frontend's 2-second refresh cadence.
const DefaultPollInterval = 2 * time.Second

// PollerConfig configures a Poller.
type PollerConfig struct {
	// Interval between polls. Defaults to DefaultPollInterval.
	Interval time.Duration

	// OnNew is the attention signal: called with the newly arrived messages
	// whenever a poll observes more messages than the previous watermark
	// (e.g. to scroll the view to the latest message).
	OnNew func(newMessages []Message)

	// OnReset is called when the room was cleared externally (the log went
	// from non-empty back to empty).
	OnReset func()

	Logger zerolog.Logger
}

// Poller reconciles a local message view against the server on a fixed
// interval. The loop is single-flight: it runs one fetch at a time, and ticks
// arriving while a fetch is in flight are dropped, never queued, so a slow or
// timed-out poll is retried on the next tick rather than immediately. A failed
// poll keeps the previous snapshot; stale-but-present beats a blank view.
type Poller struct {
	client   *Client
	roomID   string
	interval time.Duration
	onNew    func([]Message)
	onReset  func()
	logger   zerolog.Logger

	mu        sync.Mutex
	messages  []Message
	watermark int

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewPoller creates a poller for one room. Call Start to begin polling.
func NewPoller(client *Client, roomID string, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}

	return &Poller{
		client:   client,
		roomID:   roomID,
		interval: cfg.Interval,
		onNew:    cfg.OnNew,
		onReset:  cfg.OnReset,
		logger:   cfg.Logger,
		done:     make(chan struct{}),
	}
}

// Start launches the poll loop. It polls once immediately, then on every
// interval tick until ctx is cancelled or Stop is called. Subsequent calls
// are no-ops.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		go p.run(ctx)
	})
}

// Stop tears the loop down and waits for it to exit. After Stop returns no
// poll is in flight and no callback will fire.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

// Done is closed when the loop has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Messages returns the last successfully fetched snapshot.
func (p *Poller) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Watermark returns the last observed message count.
func (p *Poller) Watermark() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
			// A tick that fired while the fetch was in flight is stale;
			// drop it so the retry lands on the next tick, not immediately.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	resp, err := p.client.GetMessages(ctx, p.roomID)
	if err != nil {
		// Retried on the next tick; the rendered snapshot stays as-is.
		p.logger.Warn().Err(err).Str("room_id", p.roomID).Msg("poll failed")
		return
	}

	p.reconcile(resp.Messages)
}

// reconcile applies length-delta detection against the watermark.
func (p *Poller) reconcile(messages []Message) {
	p.mu.Lock()

	var newMessages []Message
	cleared := false

	switch n := len(messages); {
	case n > p.watermark:
		newMessages = messages[p.watermark:]
		p.watermark = n
	case n == 0 && p.watermark > 0:
		p.watermark = 0
		cleared = true
	}
	p.messages = messages

	p.mu.Unlock()

	// Callbacks run outside the lock; an unchanged length fires neither.
	if len(newMessages) > 0 && p.onNew != nil {
		p.onNew(newMessages)
	}
	if cleared && p.onReset != nil {
		p.onReset()
	}
}
