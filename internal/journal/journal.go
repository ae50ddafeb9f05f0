// Package journal records terminal delivery outcomes from the event bus into
// storage.
package journal

import (
	"context"
	"time"

	"tgproxy/internal/channel"
	"tgproxy/internal/eventbus"
	"tgproxy/internal/storage"
	logx "tgproxy/pkg/logx"
)

const (
	defaultBuffer = 1024
	writeTimeout  = 5 * time.Second
)

// Journal subscribes on construction so no event published after New is
// missed, even before Run starts.
type Journal struct {
	store storage.Store
	log   logx.Logger

	events <-chan eventbus.Event
	unsub  func()
}

func New(bus eventbus.Bus, store storage.Store, log logx.Logger) *Journal {
	events, unsub := bus.Subscribe(defaultBuffer, channel.EventSent, channel.EventFailed)
	return &Journal{
		store:  store,
		log:    log.With(logx.String("comp", "journal")),
		events: events,
		unsub:  unsub,
	}
}

// Run writes records until ctx is done, then drains what is already buffered.
func (j *Journal) Run(ctx context.Context) error {
	defer j.unsub()
	for {
		select {
		case <-ctx.Done():
			j.drain()
			return nil
		case ev, ok := <-j.events:
			if !ok {
				return nil
			}
			j.write(ev)
		}
	}
}

func (j *Journal) drain() {
	for {
		select {
		case ev, ok := <-j.events:
			if !ok {
				return
			}
			j.write(ev)
		default:
			return
		}
	}
}

func (j *Journal) write(ev eventbus.Event) {
	rec, ok := Record(ev)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := j.store.AppendDelivery(ctx, rec); err != nil {
		j.log.Warn("journal write failed",
			logx.String("channel", rec.Channel),
			logx.String("request_id", rec.RequestID),
			logx.Err(err),
		)
	}
}

// Record converts a delivery event into a journal record.
func Record(ev eventbus.Event) (storage.DeliveryRecord, bool) {
	d, ok := ev.Data.(channel.DeliveryEvent)
	if !ok {
		return storage.DeliveryRecord{}, false
	}
	rec := storage.DeliveryRecord{
		At:         d.At,
		Channel:    d.Channel,
		RequestID:  d.RequestID,
		Kind:       d.Kind,
		Attempts:   d.Attempts,
		StatusCode: d.StatusCode,
		MessageID:  d.MessageID,
		Error:      d.Error,
		Text:       d.Text,
	}
	switch ev.Type {
	case channel.EventSent:
		rec.Outcome = storage.OutcomeSent
	case channel.EventFailed:
		rec.Outcome = storage.OutcomeFailed
	default:
		return storage.DeliveryRecord{}, false
	}
	if rec.At.IsZero() {
		rec.At = ev.Time
	}
	return rec, true
}
