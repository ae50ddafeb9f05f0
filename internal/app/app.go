// Package app wires configuration, channels, the HTTP API and the optional
// journal, report and systemd integration into one process lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tgproxy/internal/api"
	"tgproxy/internal/channel"
	"tgproxy/internal/config"
	"tgproxy/internal/eventbus"
	"tgproxy/internal/journal"
	"tgproxy/internal/report"
	rtsup "tgproxy/internal/runtime/supervisor"
	"tgproxy/internal/storage"
	logx "tgproxy/pkg/logx"
	"tgproxy/pkg/systemd"
)

type Options struct {
	// ConfigPath is a JSON or YAML file. Empty means built-in defaults and
	// no hot reload.
	ConfigPath string
	// Override runs on every loaded config, reloads included, before
	// validation. Command-line flags use it.
	Override func(*config.Config)
}

type App struct {
	opts Options
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	reg     *channel.Registry
	store   storage.Store
	journal *journal.Journal
	report  *report.Reporter
	api     *api.Server
	sd      *systemd.Notifier

	shutdown time.Duration
}

// LoadConfig reads opts.ConfigPath (or the defaults), applies the override
// and validates the result.
func LoadConfig(opts Options) (*config.Config, error) {
	var cfg *config.Config
	if strings.TrimSpace(opts.ConfigPath) == "" {
		cfg = config.Default()
	} else {
		var err error
		if cfg, err = config.NewManager(opts.ConfigPath).Parse(); err != nil {
			return nil, err
		}
	}
	if err := applyOverride(cfg, opts.Override); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverride(cfg *config.Config, fn func(*config.Config)) error {
	if fn == nil {
		return nil
	}
	fn(cfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func NewApp(opts Options) (*App, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	var cfgm *config.Manager
	if strings.TrimSpace(opts.ConfigPath) != "" {
		cfgm = config.NewManager(opts.ConfigPath)
		cfgm.Commit(cfg)
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	a := &App{
		opts: opts,
		cfgm: cfgm,
		log:  log,
		logs: logSvc,
		bus:  eventbus.New(),
		sd:   systemd.NewNotifier(log, cfg.Systemd.Notify, cfg.Systemd.Watchdog),
	}
	if err := a.build(cfg); err != nil {
		if a.store != nil {
			_ = a.store.Close()
		}
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	root := a.logs.Logger()

	reg, err := BuildRegistry(cfg, a.bus, root)
	if err != nil {
		return err
	}
	a.reg = reg

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return err
	} else if enabled {
		st, err := storage.Open(sc, root)
		if err != nil {
			return err
		}
		a.store = st
		a.journal = journal.New(a.bus, st, root)
		a.log.Info("delivery journal enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	if rc, enabled := mapReportConfig(cfg); enabled {
		if a.report, err = report.New(reg, rc, root); err != nil {
			return err
		}
	}

	sc, err := mapServerConfig(cfg)
	if err != nil {
		return err
	}
	if _, _, _, a.shutdown, err = cfg.Server.Timeouts(); err != nil {
		return err
	}
	a.api = api.New(sc, reg, a.store, root)
	return nil
}

func (a *App) Registry() *channel.Registry { return a.reg }

// Addr is the bound HTTP address once started.
func (a *App) Addr() string { return a.api.Addr() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	if err := a.reg.Start(run); err != nil {
		return err
	}
	if a.journal != nil {
		a.sup.Go("journal", a.journal.Run)
	}
	if a.report != nil {
		if err := a.report.Start(); err != nil {
			return err
		}
	}
	if err := a.api.Start(run); err != nil {
		return err
	}
	a.sup.Go("http.watch", func(c context.Context) error {
		select {
		case <-c.Done():
			return nil
		case <-a.api.Done():
			if err := a.api.Err(); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		}
	})

	// Debug-level so per-message events stay quiet in production.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		sub := a.cfgm.Subscribe(8)
		a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
		a.sup.Go("config.watch", a.cfgm.Watch)
	}

	a.sup.Go("systemd.watchdog", a.sd.RunWatchdog)
	a.sd.Ready()
	a.sd.Status(fmt.Sprintf("serving %d channels on %s", a.reg.Len(), a.api.Addr()))

	a.log.Info("app started", logx.Int("channels", a.reg.Len()), logx.String("addr", a.api.Addr()))
	return nil
}
