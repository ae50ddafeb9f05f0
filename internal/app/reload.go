package app

import (
	"context"
	"strings"

	"tgproxy/internal/config"
	logx "tgproxy/pkg/logx"
)

// reloadLoop applies logging changes live. Everything else is reported as
// needing a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			// The manager shares its pointer; override a copy.
			cp := *newCfg
			if err := applyOverride(&cp, a.opts.Override); err != nil {
				a.log.Warn("config reload rejected", logx.Err(err))
				continue
			}
			lastApplied = a.applyConfig(lastApplied, &cp)
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) *config.Config {
	change := config.SummarizeConfigChange(prev, next)
	if change.Empty() {
		a.log.Info("config reloaded (no changes)")
		return next
	}
	a.sd.Reloading()
	defer a.sd.Ready()

	a.logs.Apply(mapLoggingConfig(next))
	if len(change.Restart) > 0 {
		a.log.Warn("config sections changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(change.Restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Attrs...)
	a.log.Info("config reloaded", fields...)
	return next
}
