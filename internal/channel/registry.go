package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"tgproxy/internal/runtime/supervisor"
	logx "tgproxy/pkg/logx"
)

const taskPrefix = "channel:"

// Registry owns the configured channels and their workers.
type Registry struct {
	log      logx.Logger
	order    []string
	channels map[string]*Channel

	mu  sync.Mutex
	sup *supervisor.Supervisor
}

// NewRegistry rejects duplicate channel names. Order is preserved.
func NewRegistry(log logx.Logger, channels ...*Channel) (*Registry, error) {
	r := &Registry{
		log:      log.With(logx.String("comp", "registry")),
		channels: make(map[string]*Channel, len(channels)),
	}
	for _, ch := range channels {
		if _, dup := r.channels[ch.Name()]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateChannel, ch.Name())
		}
		r.channels[ch.Name()] = ch
		r.order = append(r.order, ch.Name())
	}
	return r, nil
}

func (r *Registry) Get(name string) (*Channel, error) {
	ch, ok := r.channels[name]
	if !ok {
		return nil, &ChannelNotFoundError{Name: name}
	}
	return ch, nil
}

// Channels returns the channels in configuration order.
func (r *Registry) Channels() []*Channel {
	out := make([]*Channel, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.channels[name])
	}
	return out
}

func (r *Registry) Len() int { return len(r.order) }

// Put enqueues m on the named channel.
func (r *Registry) Put(name string, m Message) error {
	ch, err := r.Get(name)
	if err != nil {
		return err
	}
	return ch.Put(m)
}

// Start launches one supervised worker per channel.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sup != nil {
		return errors.New("registry already started")
	}
	r.sup = supervisor.New(ctx, supervisor.WithLogger(r.log))
	for _, ch := range r.Channels() {
		r.sup.Go(taskPrefix+ch.Name(), ch.Run)
	}
	r.log.Info("channel workers started", logx.Int("channels", len(r.order)))
	return nil
}

// Stop cancels every worker and waits, bounded by ctx, until each has closed
// its session and returned.
func (r *Registry) Stop(ctx context.Context) error {
	for _, ch := range r.Channels() {
		ch.Cancel()
	}

	r.mu.Lock()
	sup := r.sup
	r.mu.Unlock()
	if sup == nil {
		return nil
	}

	err := sup.Stop(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		pending := []string{}
		for _, t := range sup.Tasks() {
			if t.Running {
				pending = append(pending, strings.TrimPrefix(t.Name, taskPrefix))
			}
		}
		r.log.Warn("channel workers did not stop in time", logx.Any("pending", pending))
		return fmt.Errorf("stop channel workers %s: %w", strings.Join(pending, ","), ctxErr)
	}
	if err != nil {
		// Worker failures were already logged and show up in Health.
		r.log.Debug("channel workers stopped with error", logx.Err(err))
	}
	r.log.Info("channel workers stopped")
	return nil
}

// Health is the aggregate worker health.
type Health struct {
	Workers map[string]string `json:"workers"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Healthy is true when every worker is active.
func (h Health) Healthy() bool {
	for _, s := range h.Workers {
		if s != HealthActive {
			return false
		}
	}
	return true
}

func (r *Registry) Health() Health {
	h := Health{Workers: make(map[string]string, len(r.order))}
	for _, ch := range r.Channels() {
		h.Workers[ch.Name()] = ch.State().Health()
		if err := ch.Err(); err != nil {
			if h.Errors == nil {
				h.Errors = map[string]string{}
			}
			h.Errors[ch.Name()] = err.Error()
		}
	}
	return h
}
