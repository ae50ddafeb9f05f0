package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tgproxy/internal/delivery"
	logx "tgproxy/pkg/logx"
)

type deliverFunc func(ctx context.Context, m Message, call int) (Receipt, error)

type fakeProvider struct {
	deliver deliverFunc
	openErr error

	mu        sync.Mutex
	delivered []Message
	calls     int

	opened atomic.Int32
	closed atomic.Int32
}

func (p *fakeProvider) Scheme() string   { return "fake" }
func (p *fakeProvider) Describe() string { return "fake://test" }
func (p *fakeProvider) Fields() []Field  { return BaseFields() }

func (p *fakeProvider) Open(context.Context) (Session, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	p.opened.Add(1)
	return &fakeSession{p: p}, nil
}

func (p *fakeProvider) Delivered() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.delivered...)
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeSession struct {
	p      *fakeProvider
	closed bool
}

func (s *fakeSession) Deliver(ctx context.Context, m Message) (Receipt, error) {
	if s.closed {
		return Receipt{}, ErrNoSession
	}
	s.p.mu.Lock()
	s.p.calls++
	call := s.p.calls
	fn := s.p.deliver
	s.p.mu.Unlock()

	r := Receipt{StatusCode: 200, MessageID: int64(call)}
	if fn != nil {
		var err error
		if r, err = fn(ctx, m, call); err != nil {
			return Receipt{}, err
		}
	}
	s.p.mu.Lock()
	s.p.delivered = append(s.p.delivered, m)
	s.p.mu.Unlock()
	return r, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	s.p.closed.Add(1)
	return nil
}

func fastRetry(attempts int) delivery.Policy {
	return delivery.Policy{
		MaxAttempts: attempts,
		Base:        time.Millisecond,
		MinWait:     time.Millisecond,
		MaxWait:     2 * time.Millisecond,
	}
}

func newTestChannel(t *testing.T, p Provider, opts Options) *Channel {
	t.Helper()
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = fastRetry(3)
	}
	opts.Log = logx.Nop()
	return New("test", p, opts)
}

// runChannel starts the worker and returns a func that cancels it and
// returns Run's result.
func runChannel(t *testing.T, c *Channel) func() error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background()) }()
	return func() error {
		c.Cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
			return nil
		}
	}
}

func waitState(t *testing.T, c *Channel, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, 5*time.Second, time.Millisecond,
		"state is %s, want %s", c.State(), want)
}

func waitStats(t *testing.T, c *Channel, cond func(s StatsSnapshot) bool) StatsSnapshot {
	t.Helper()
	require.Eventually(t, func() bool { return cond(c.Stats()) }, 5*time.Second, time.Millisecond)
	return c.Stats()
}
