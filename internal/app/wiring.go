package app

import (
	"fmt"
	"strings"

	"tgproxy/internal/api"
	"tgproxy/internal/channel"
	"tgproxy/internal/config"
	"tgproxy/internal/eventbus"
	"tgproxy/internal/provider/telegram"
	"tgproxy/internal/report"
	"tgproxy/internal/storage"
	logx "tgproxy/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapServerConfig(cfg *config.Config) (api.Config, error) {
	read, write, idle, _, err := cfg.Server.Timeouts()
	if err != nil {
		return api.Config{}, err
	}
	return api.Config{
		Addr:         cfg.Server.Addr(),
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
		Pprof:        cfg.Server.Pprof,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
		Keep:        sc.Keep,
		RecordText:  sc.RecordText,
	}, true, nil
}

func mapReportConfig(cfg *config.Config) (report.Config, bool) {
	if cfg == nil || cfg.Report == nil || !cfg.Report.Enabled {
		return report.Config{}, false
	}
	return report.Config{
		Schedule: cfg.Report.Schedule,
		Timezone: cfg.Report.Timezone,
		Channel:  cfg.Report.Channel,
	}, true
}

// newBuilder maps the delivery and queue sections onto a channel builder
// with every known provider registered.
func newBuilder(cfg *config.Config, bus eventbus.Bus, log logx.Logger) (*channel.Builder, error) {
	retry, err := cfg.Delivery.RetryPolicy()
	if err != nil {
		return nil, err
	}
	status, err := cfg.Delivery.StatusPolicy()
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Delivery.RequestTimeout()
	if err != nil {
		return nil, err
	}

	b := channel.NewBuilder()
	b.QueueSize = cfg.Queue.MaxSize
	b.Retry = retry
	b.Banner = cfg.Delivery.BannerEnabled()
	b.Log = log
	b.Bus = bus
	b.Register(telegram.Scheme, telegram.NewFactory(telegram.Defaults{
		APIURL:  strings.TrimSpace(cfg.Delivery.APIURL),
		Timeout: timeout,
		Status:  status,
		Log:     log,
	}))
	return b, nil
}

// BuildRegistry builds every configured channel through the same builder the
// service uses, so delivery and queue settings apply.
func BuildRegistry(cfg *config.Config, bus eventbus.Bus, log logx.Logger) (*channel.Registry, error) {
	if len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("no channels configured")
	}
	b, err := newBuilder(cfg, bus, log)
	if err != nil {
		return nil, err
	}
	chs, err := b.BuildAll(cfg.Channels)
	if err != nil {
		return nil, err
	}
	return channel.NewRegistry(log, chs...)
}
