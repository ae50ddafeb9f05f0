package channel

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"tgproxy/internal/delivery"
	"tgproxy/internal/eventbus"
	logx "tgproxy/pkg/logx"
)

// State is the worker lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateCancelled State = "cancelled"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// Health vocabulary exposed by the ping endpoint.
const (
	HealthActive    = "active"
	HealthDone      = "done"
	HealthCancelled = "cancelled"
)

// Health maps a state onto the external vocabulary.
func (s State) Health() string {
	switch s {
	case StateCancelled:
		return HealthCancelled
	case StateDone, StateFailed:
		return HealthDone
	default:
		return HealthActive
	}
}

func (s State) Terminal() bool {
	return s == StateCancelled || s == StateDone || s == StateFailed
}

type Options struct {
	QueueSize int
	Retry     delivery.Policy
	// Banner enqueues BannerText when the worker starts.
	Banner     bool
	BannerText string

	Log logx.Logger
	Bus eventbus.Bus
	Now func() time.Time
}

// Channel is a named queue plus the worker draining it into a provider.
type Channel struct {
	name     string
	provider Provider
	queue    *Queue
	stats    Stats
	retry    delivery.Policy
	banner   string
	log      logx.Logger
	bus      eventbus.Bus
	now      func() time.Time

	mu        sync.Mutex
	state     State
	err       error
	cancel    context.CancelFunc
	cancelReq bool
	done      chan struct{}
}

func New(name string, p Provider, opts Options) *Channel {
	log := opts.Log.With(logx.String("channel", name))
	retry := opts.Retry
	retry.Log = log

	c := &Channel{
		name:     name,
		provider: p,
		queue:    NewQueue(opts.QueueSize),
		retry:    retry,
		log:      log,
		bus:      opts.Bus,
		now:      opts.Now,
		state:    StatePending,
		done:     make(chan struct{}),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if opts.Banner {
		c.banner = opts.BannerText
		if c.banner == "" {
			c.banner = DefaultBanner()
		}
	}
	return c
}

// DefaultBanner is the startup message sent by each channel.
func DefaultBanner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return "Start tgproxy on " + host
}

func (c *Channel) Name() string       { return c.name }
func (c *Channel) Provider() Provider { return c.provider }
func (c *Channel) Describe() string   { return c.provider.Describe() }
func (c *Channel) Len() int           { return c.queue.Len() }
func (c *Channel) Cap() int           { return c.queue.Cap() }
func (c *Channel) Stats() StatsSnapshot {
	return c.stats.Snapshot()
}

// NewMessage builds a message from request values using the provider's fields.
func (c *Channel) NewMessage(values map[string]string) (Message, error) {
	return BuildMessage(c.provider.Fields(), values)
}

// Put enqueues m without blocking. queued is counted before the message is
// visible to the worker and taken back if the queue rejects it.
func (c *Channel) Put(m Message) error {
	c.stats.recordQueued()
	if err := c.queue.Enqueue(m); err != nil {
		c.stats.unrecordQueued()
		c.publish(EventRejected, DeliveryEvent{Channel: c.name, RequestID: m.RequestID(), Error: err.Error(), At: c.now()})
		return err
	}
	c.publish(EventQueued, DeliveryEvent{Channel: c.name, RequestID: m.RequestID(), At: c.now()})
	return nil
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error a failed worker stopped with.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the worker has released its session and exited.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Cancel asks the worker to stop. It does not wait; use Done or Registry.Stop.
func (c *Channel) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelReq = true
	if c.cancel != nil {
		c.cancel()
		return
	}
	if c.state == StatePending {
		c.state = StateCancelled
		close(c.done)
	}
}

// Run is the channel worker. It returns nil when cancelled and an error when
// the worker cannot continue. Per-message failures never end it.
func (c *Channel) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	switch {
	case c.state == StateCancelled && c.cancelReq:
		c.mu.Unlock()
		return nil
	case c.state != StatePending:
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.state = StateStarting
	c.cancel = cancel
	if c.cancelReq {
		cancel()
	}
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			c.finish(StateFailed, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	c.log.Info("channel worker starting", logx.String("provider", c.provider.Describe()))
	sess, err := c.provider.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			c.finish(StateCancelled, nil)
			return nil
		}
		err = fmt.Errorf("open session: %w", err)
		c.log.Error("channel worker failed", logx.Err(err))
		c.finish(StateFailed, err)
		return err
	}

	if c.banner != "" {
		if err := c.Put(NewMessage(c.banner, "", nil)); err != nil {
			c.log.Warn("startup banner not queued", logx.Err(err))
		}
	}

	c.setState(StateRunning)
	c.log.Info("channel worker running", logx.Int("queue_cap", c.queue.Cap()))

	runErr := c.loop(ctx, sess)
	if cerr := sess.Close(); cerr != nil {
		c.log.Warn("close session", logx.Err(cerr))
	}

	if ctx.Err() != nil {
		c.log.Info("channel worker cancelled", logx.Int("dropped", c.queue.Len()))
		c.finish(StateCancelled, nil)
		return nil
	}
	if runErr == nil {
		c.finish(StateDone, nil)
		return nil
	}
	c.log.Error("channel worker failed", logx.Err(runErr))
	c.finish(StateFailed, runErr)
	return runErr
}

func (c *Channel) loop(ctx context.Context, sess Session) error {
	for {
		m, err := c.queue.Dequeue(ctx)
		if err != nil {
			return err
		}
		if err := c.process(ctx, sess, m); err != nil {
			return err
		}
	}
}

// process drives one message to a terminal outcome. A returned error stops
// the worker.
func (c *Channel) process(ctx context.Context, sess Session, m Message) error {
	var (
		attempts int
		receipt  Receipt
	)
	err := c.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt
		r, err := sess.Deliver(ctx, m)
		if err == nil {
			receipt = r
		}
		return err
	})

	now := c.now()
	ev := DeliveryEvent{Channel: c.name, RequestID: m.RequestID(), Text: m.Text(), Attempts: attempts, At: now}

	switch {
	case err == nil:
		c.stats.recordSent(now)
		ev.StatusCode, ev.MessageID = receipt.StatusCode, receipt.MessageID
		c.log.Debug("message delivered", logx.String("request_id", m.RequestID()), logx.Int("attempts", attempts))
		c.publish(EventSent, ev)
		return nil
	case ctx.Err() != nil:
		c.log.Debug("in-flight message dropped", logx.String("request_id", m.RequestID()))
		return ctx.Err()
	}

	de, ok := delivery.As(err)
	if !ok {
		return fmt.Errorf("deliver %s: %w", m.RequestID(), err)
	}
	detail := de.Detail
	if detail == "" {
		detail = de.Error()
	}
	c.stats.recordError(now, detail)
	ev.Kind, ev.Error = de.Kind.String(), detail
	c.log.Warn("message rejected",
		logx.String("request_id", m.RequestID()),
		logx.String("kind", de.Kind.String()),
		logx.Int("attempts", attempts),
		logx.Err(err),
	)
	c.publish(EventFailed, ev)
	return nil
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Channel) finish(s State, err error) {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	c.state, c.err = s, err
	close(c.done)
	c.mu.Unlock()

	ev := StoppedEvent{Channel: c.name, State: s}
	if err != nil {
		ev.Error = err.Error()
	}
	c.publish(EventStopped, ev)
}

func (c *Channel) publish(typ string, data any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventbus.Event{Type: typ, Time: c.now(), Data: data})
}
