package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgproxy/internal/delivery"
	"tgproxy/internal/eventbus"
)

func TestChannelDeliversInOrder(t *testing.T) {
	p := &fakeProvider{}
	c := newTestChannel(t, p, Options{QueueSize: 10})
	for _, txt := range []string{"one", "two", "three"} {
		require.NoError(t, c.Put(NewMessage(txt, "", nil)))
	}

	stop := runChannel(t, c)
	snap := waitStats(t, c, func(s StatsSnapshot) bool { return s.Sended == 3 })
	require.NoError(t, stop())

	var texts []string
	for _, m := range p.Delivered() {
		texts = append(texts, m.Text())
	}
	assert.Equal(t, []string{"one", "two", "three"}, texts)
	assert.EqualValues(t, 3, snap.Queued)
	assert.EqualValues(t, 0, snap.Errors)
	assert.NotZero(t, snap.LastSendedAt)
	assert.Zero(t, snap.LastErrorAt)
	assert.Empty(t, snap.LastError)
}

func TestChannelPutWhenFull(t *testing.T) {
	c := newTestChannel(t, &fakeProvider{}, Options{QueueSize: 5})
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Put(NewMessage("x", "", nil)))
	}
	err := c.Put(NewMessage("x", "", nil))
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, "Queue is full. Max size is 5", err.Error())
	assert.EqualValues(t, 5, c.Stats().Queued)
	assert.Equal(t, 5, c.Len())
}

func TestChannelFatalIsNotRetried(t *testing.T) {
	p := &fakeProvider{deliver: func(_ context.Context, m Message, _ int) (Receipt, error) {
		if m.Text() == "bad" {
			return Receipt{}, delivery.NewFatal("fake", "Status: 400. Body: <NO BODY>", nil)
		}
		return Receipt{StatusCode: 200}, nil
	}}
	c := newTestChannel(t, p, Options{QueueSize: 10, Retry: fastRetry(5)})
	require.NoError(t, c.Put(NewMessage("bad", "", nil)))
	require.NoError(t, c.Put(NewMessage("good", "", nil)))

	stop := runChannel(t, c)
	snap := waitStats(t, c, func(s StatsSnapshot) bool { return s.Sended+s.Errors == 2 })
	require.NoError(t, stop())

	assert.EqualValues(t, 1, snap.Errors)
	assert.EqualValues(t, 1, snap.Sended)
	assert.Equal(t, "Status: 400. Body: <NO BODY>", snap.LastError)
	assert.NotZero(t, snap.LastErrorAt)
	assert.Equal(t, 2, p.Calls())
}

func TestChannelTransientThenSuccess(t *testing.T) {
	p := &fakeProvider{deliver: func(_ context.Context, _ Message, call int) (Receipt, error) {
		if call < 3 {
			return Receipt{}, delivery.NewTransient("fake", "Status: 502. Body: <NO BODY>", nil)
		}
		return Receipt{StatusCode: 200}, nil
	}}
	c := newTestChannel(t, p, Options{QueueSize: 10, Retry: fastRetry(5)})
	require.NoError(t, c.Put(NewMessage("x", "", nil)))

	stop := runChannel(t, c)
	snap := waitStats(t, c, func(s StatsSnapshot) bool { return s.Sended == 1 })
	require.NoError(t, stop())

	assert.EqualValues(t, 0, snap.Errors)
	assert.Equal(t, 3, p.Calls())
}

func TestChannelRetriesExhausted(t *testing.T) {
	p := &fakeProvider{deliver: func(context.Context, Message, int) (Receipt, error) {
		return Receipt{}, delivery.NewTransient("fake", "Status: 500. Body: oops", nil)
	}}
	c := newTestChannel(t, p, Options{QueueSize: 10, Retry: fastRetry(3)})
	require.NoError(t, c.Put(NewMessage("x", "", nil)))

	stop := runChannel(t, c)
	snap := waitStats(t, c, func(s StatsSnapshot) bool { return s.Errors == 1 })
	require.NoError(t, stop())

	assert.Equal(t, 3, p.Calls())
	assert.Equal(t, "Status: 500. Body: oops", snap.LastError)
	assert.EqualValues(t, 0, snap.Sended)
}

func TestChannelCancelWhileIdle(t *testing.T) {
	p := &fakeProvider{}
	c := newTestChannel(t, p, Options{QueueSize: 10})
	stop := runChannel(t, c)
	waitState(t, c, StateRunning)
	assert.Equal(t, HealthActive, c.State().Health())

	require.NoError(t, stop())
	<-c.Done()
	assert.Equal(t, StateCancelled, c.State())
	assert.Equal(t, HealthCancelled, c.State().Health())
	assert.EqualValues(t, 1, p.opened.Load())
	assert.EqualValues(t, 1, p.closed.Load())
}

func TestChannelCancelDuringDelivery(t *testing.T) {
	entered := make(chan struct{})
	p := &fakeProvider{deliver: func(ctx context.Context, _ Message, _ int) (Receipt, error) {
		close(entered)
		<-ctx.Done()
		return Receipt{}, ctx.Err()
	}}
	c := newTestChannel(t, p, Options{QueueSize: 10})
	require.NoError(t, c.Put(NewMessage("stuck", "", nil)))
	require.NoError(t, c.Put(NewMessage("never", "", nil)))

	stop := runChannel(t, c)
	<-entered
	require.NoError(t, stop())

	snap := c.Stats()
	assert.Equal(t, StateCancelled, c.State())
	assert.EqualValues(t, 0, snap.Sended)
	assert.EqualValues(t, 0, snap.Errors)
	assert.EqualValues(t, 1, p.closed.Load())
}

func TestChannelCancelBeforeRun(t *testing.T) {
	p := &fakeProvider{}
	c := newTestChannel(t, p, Options{})
	c.Cancel()
	assert.Equal(t, StateCancelled, c.State())

	require.NoError(t, c.Run(context.Background()))
	assert.EqualValues(t, 0, p.opened.Load())
}

func TestChannelRunTwice(t *testing.T) {
	c := newTestChannel(t, &fakeProvider{}, Options{})
	stop := runChannel(t, c)
	waitState(t, c, StateRunning)
	assert.ErrorIs(t, c.Run(context.Background()), ErrAlreadyRunning)
	require.NoError(t, stop())
}

func TestChannelOpenFailure(t *testing.T) {
	p := &fakeProvider{openErr: errors.New("boom")}
	c := newTestChannel(t, p, Options{})
	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, HealthDone, c.State().Health())
	assert.ErrorContains(t, c.Err(), "boom")
}

func TestChannelUnexpectedErrorStopsWorker(t *testing.T) {
	p := &fakeProvider{deliver: func(context.Context, Message, int) (Receipt, error) {
		return Receipt{}, ErrNoSession
	}}
	c := newTestChannel(t, p, Options{QueueSize: 10})
	require.NoError(t, c.Put(NewMessage("x", "", nil)))

	err := c.Run(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, StateFailed, c.State())
	assert.EqualValues(t, 1, p.closed.Load())
	assert.EqualValues(t, 0, c.Stats().Errors)
}

func TestChannelBanner(t *testing.T) {
	p := &fakeProvider{}
	c := newTestChannel(t, p, Options{QueueSize: 10, Banner: true, BannerText: "hello"})
	require.NoError(t, c.Put(NewMessage("after", "", nil)))

	stop := runChannel(t, c)
	waitStats(t, c, func(s StatsSnapshot) bool { return s.Sended == 2 })
	require.NoError(t, stop())

	got := p.Delivered()
	require.Len(t, got, 2)
	assert.Equal(t, "after", got[0].Text())
	assert.Equal(t, "hello", got[1].Text())
	assert.EqualValues(t, 2, c.Stats().Queued)
}

func TestChannelCountersBalance(t *testing.T) {
	p := &fakeProvider{deliver: func(_ context.Context, _ Message, call int) (Receipt, error) {
		if call%3 == 0 {
			return Receipt{}, delivery.NewFatal("fake", "rejected", nil)
		}
		return Receipt{StatusCode: 200}, nil
	}}
	c := newTestChannel(t, p, Options{QueueSize: 100})
	for i := 0; i < 30; i++ {
		require.NoError(t, c.Put(NewMessage("m", "", nil)))
	}

	stop := runChannel(t, c)
	snap := waitStats(t, c, func(s StatsSnapshot) bool { return s.Sended+s.Errors == 30 })
	require.NoError(t, stop())

	assert.Equal(t, snap.Queued, snap.Sended+snap.Errors)
	assert.EqualValues(t, 10, snap.Errors)
}

func TestChannelStatsNeverShowMoreOutcomesThanQueued(t *testing.T) {
	c := newTestChannel(t, &fakeProvider{}, Options{QueueSize: 4})
	stop := runChannel(t, c)

	done := make(chan struct{})
	var bad []StatsSnapshot
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			for c.Put(NewMessage("m", "", nil)) != nil {
				time.Sleep(time.Microsecond)
			}
		}
	}()
	for reading := true; reading; {
		select {
		case <-done:
			reading = false
		default:
		}
		if snap := c.Stats(); snap.Sended+snap.Errors > snap.Queued {
			bad = append(bad, snap)
		}
	}
	snap := waitStats(t, c, func(s StatsSnapshot) bool { return s.Sended == 200 })
	require.NoError(t, stop())

	assert.Empty(t, bad)
	assert.EqualValues(t, 200, snap.Queued)
}

func TestChannelPublishesEvents(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16, "channel.")
	defer unsub()

	p := &fakeProvider{}
	c := newTestChannel(t, p, Options{QueueSize: 1, Bus: bus})
	require.NoError(t, c.Put(NewMessage("x", "r1", nil)))
	require.Error(t, c.Put(NewMessage("y", "r2", nil)))

	stop := runChannel(t, c)
	waitStats(t, c, func(s StatsSnapshot) bool { return s.Sended == 1 })
	require.NoError(t, stop())

	var types []string
	timeout := time.After(time.Second)
	for len(types) < 4 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
			if ev.Type == EventSent {
				d := ev.Data.(DeliveryEvent)
				assert.Equal(t, "r1", d.RequestID)
				assert.Equal(t, 1, d.Attempts)
			}
		case <-timeout:
			t.Fatalf("got events %v", types)
		}
	}
	assert.Equal(t, []string{EventQueued, EventRejected, EventSent, EventStopped}, types)
}
