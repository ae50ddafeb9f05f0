package config

import (
	"reflect"
	"strings"

	logx "tgproxy/pkg/logx"
)

// Change summarizes a reload.
type Change struct {
	// Sections lists changed top-level sections.
	Sections []string
	// Live are sections applied without a restart.
	Live []string
	// Restart are sections that only take effect after a restart.
	Restart []string
	// Attrs are safe log fields; channel URLs are never included since they
	// carry bot tokens.
	Attrs []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// SummarizeConfigChange compares two configs section by section.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var ch Change
	mark := func(section string, live bool, attrs ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		if live {
			ch.Live = append(ch.Live, section)
		} else {
			ch.Restart = append(ch.Restart, section)
		}
		ch.Attrs = append(ch.Attrs, attrs...)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging", true,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		mark("server", false, logx.String("server.addr", newCfg.Server.Addr()))
	}
	if !reflect.DeepEqual(oldCfg.Channels, newCfg.Channels) {
		mark("channels", false, logx.Int("channels.count", len(newCfg.Channels)))
	}
	if oldCfg.Queue != newCfg.Queue {
		mark("queue", false, logx.Int("queue.max_size", newCfg.Queue.MaxSize))
	}
	if !reflect.DeepEqual(oldCfg.Delivery, newCfg.Delivery) {
		mark("delivery", false,
			logx.Int("delivery.max_attempts", newCfg.Delivery.MaxAttempts),
			logx.Bool("delivery.api_url_set", strings.TrimSpace(newCfg.Delivery.APIURL) != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		mark("storage", false, logx.Bool("storage.enabled", newCfg.Storage != nil))
	}
	if !reflect.DeepEqual(oldCfg.Report, newCfg.Report) {
		mark("report", false, logx.Bool("report.enabled", newCfg.Report != nil && newCfg.Report.Enabled))
	}
	if oldCfg.Systemd != newCfg.Systemd {
		mark("systemd", false)
	}
	return ch
}
