package channel

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"tgproxy/internal/delivery"
	"tgproxy/internal/eventbus"
	logx "tgproxy/pkg/logx"
)

// Receipt describes a successful delivery.
type Receipt struct {
	StatusCode int
	MessageID  int64
}

// Session is a provider connection owned by one channel worker.
//
// Deliver performs exactly one attempt. Failures are *delivery.Error values;
// a cancelled ctx is returned as ctx.Err().
type Session interface {
	Deliver(ctx context.Context, m Message) (Receipt, error)
	Close() error
}

// Provider is a delivery endpoint bound to one destination.
type Provider interface {
	Scheme() string
	// Describe returns a description safe to expose (no secrets).
	Describe() string
	// Fields lists the inbound request fields this provider accepts.
	Fields() []Field
	Open(ctx context.Context) (Session, error)
}

// Factory builds a provider from a parsed channel URL.
type Factory func(u *URL) (Provider, error)

// Options common to every channel URL.
const (
	OptBanner      = "send_banner_on_startup"
	OptMaxAttempts = "max_attempts"
	OptQueueSize   = "queue_size"
)

// Builder creates channels from URLs using registered provider factories.
type Builder struct {
	QueueSize int
	Retry     delivery.Policy
	Banner    bool
	Log       logx.Logger
	Bus       eventbus.Bus

	mu        sync.RWMutex
	factories map[string]Factory
}

func NewBuilder() *Builder {
	return &Builder{
		QueueSize: DefaultQueueSize,
		Retry:     delivery.DefaultPolicy(),
		Banner:    true,
		factories: map[string]Factory{},
	}
}

// Register binds a URL scheme to a factory. A later call replaces an earlier one.
func (b *Builder) Register(scheme string, f Factory) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.factories == nil {
		b.factories = map[string]Factory{}
	}
	b.factories[strings.ToLower(scheme)] = f
}

// Schemes lists the registered URL schemes in order.
func (b *Builder) Schemes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.factories))
	for s := range b.factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Build parses raw and returns a channel ready to Run.
func (b *Builder) Build(raw string) (*Channel, error) {
	u, err := ParseURL(raw)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	f := b.factories[u.Scheme]
	b.mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownChannelType, u.Scheme, strings.Join(b.Schemes(), ", "))
	}

	opts := Options{
		QueueSize: b.QueueSize,
		Retry:     b.Retry,
		Banner:    b.Banner,
		Log:       b.Log,
		Bus:       b.Bus,
	}
	if opts.Banner, err = u.Bool(OptBanner, opts.Banner); err != nil {
		return nil, fmt.Errorf("channel %s: %w", u.Name, err)
	}
	if opts.Retry.MaxAttempts, err = u.Int(OptMaxAttempts, opts.Retry.MaxAttempts); err != nil {
		return nil, fmt.Errorf("channel %s: %w", u.Name, err)
	}
	if opts.QueueSize, err = u.Int(OptQueueSize, opts.QueueSize); err != nil {
		return nil, fmt.Errorf("channel %s: %w", u.Name, err)
	}

	p, err := f(u)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", u.Name, err)
	}
	return New(u.Name, p, opts), nil
}

// BuildAll builds every URL and rejects duplicate names.
func (b *Builder) BuildAll(raws []string) ([]*Channel, error) {
	out := make([]*Channel, 0, len(raws))
	seen := map[string]bool{}
	for _, raw := range raws {
		ch, err := b.Build(raw)
		if err != nil {
			return nil, err
		}
		if seen[ch.Name()] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateChannel, ch.Name())
		}
		seen[ch.Name()] = true
		out = append(out, ch)
	}
	return out, nil
}
