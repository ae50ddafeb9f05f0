// Package systemd speaks the sd_notify protocol so tgproxy can run as a
// Type=notify service with an optional watchdog.
//
// Every call is a no-op outside systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "tgproxy/pkg/logx"
)

type Notifier struct {
	log      logx.Logger
	notify   bool
	watchdog bool
}

func NewNotifier(log logx.Logger, notify, watchdog bool) *Notifier {
	return &Notifier{
		log:      log.With(logx.String("comp", "systemd")),
		notify:   notify,
		watchdog: watchdog,
	}
}

func (n *Notifier) send(state string) bool {
	if n == nil || !n.notify {
		return false
	}
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	return sent
}

// Ready reports READY=1. It returns whether systemd received it.
func (n *Notifier) Ready() bool {
	sent := n.send(daemon.SdNotifyReady)
	if sent {
		n.log.Debug("systemd notified: ready")
	}
	return sent
}

func (n *Notifier) Stopping() bool { return n.send(daemon.SdNotifyStopping) }

func (n *Notifier) Reloading() bool { return n.send(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(msg string) bool { return n.send("STATUS=" + msg) }

// RunWatchdog pings the watchdog at half the interval systemd asked for,
// until ctx is done. It returns immediately when no watchdog is configured.
func (n *Notifier) RunWatchdog(ctx context.Context) error {
	if n == nil || !n.notify || !n.watchdog {
		return nil
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return err
	}
	if interval <= 0 {
		return nil
	}
	every := interval / 2
	n.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		n.send(daemon.SdNotifyWatchdog)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
