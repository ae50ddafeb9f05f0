// Package report periodically summarizes channel statistics.
//
// The digest is always logged. When a target channel is configured it is also
// queued there as a regular message, so it counts in that channel's stats.
package report

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	tele "gopkg.in/telebot.v4"

	"tgproxy/internal/channel"
	logx "tgproxy/pkg/logx"
	"tgproxy/pkg/tgui"
)

const maxErrorRunes = 200

type Config struct {
	// Schedule is a cron spec ("0 9 * * *", "@hourly", "@every 30m") or a
	// plain duration ("30m").
	Schedule string
	Timezone string
	Channel  string
}

type Reporter struct {
	reg    *channel.Registry
	log    logx.Logger
	target *channel.Channel
	spec   string
	loc    *time.Location

	mu sync.Mutex
	c  *cron.Cron
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NormalizeSchedule turns a bare duration into an @every descriptor and
// checks the result parses.
func NormalizeSchedule(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("report schedule required")
	}
	if !strings.HasPrefix(s, "@") && !strings.ContainsAny(s, " \t") {
		d, err := time.ParseDuration(s)
		if err != nil {
			return "", fmt.Errorf("report schedule %q: %w", raw, err)
		}
		if d < time.Second {
			return "", fmt.Errorf("report schedule %q: interval below 1s", raw)
		}
		s = "@every " + d.String()
	}
	if _, err := parser.Parse(s); err != nil {
		return "", fmt.Errorf("report schedule %q: %w", raw, err)
	}
	return s, nil
}

func New(reg *channel.Registry, cfg Config, log logx.Logger) (*Reporter, error) {
	spec, err := NormalizeSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("report timezone: %w", err)
		}
	}
	r := &Reporter{
		reg:  reg,
		log:  log.With(logx.String("comp", "report")),
		spec: spec,
		loc:  loc,
	}
	if name := strings.TrimSpace(cfg.Channel); name != "" {
		if r.target, err = reg.Get(name); err != nil {
			return nil, fmt.Errorf("report channel: %w", err)
		}
	}
	return r, nil
}

func (r *Reporter) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return nil
	}
	c := cron.New(cron.WithParser(parser), cron.WithLocation(r.loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(r.spec, r.RunOnce); err != nil {
		return err
	}
	c.Start()
	r.c = c
	r.log.Info("stats report scheduled", logx.String("schedule", r.spec), logx.String("tz", r.loc.String()))
	return nil
}

// Stop unschedules the report and waits, bounded by ctx, for a running one.
func (r *Reporter) Stop(ctx context.Context) error {
	r.mu.Lock()
	c := r.c
	r.c = nil
	r.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce logs the digest and queues it on the target channel.
func (r *Reporter) RunOnce() {
	for _, ch := range r.reg.Channels() {
		s := ch.Stats()
		r.log.Info("channel stats",
			logx.String("channel", ch.Name()),
			logx.String("state", string(ch.State())),
			logx.Int64("queued", s.Queued),
			logx.Int64("sended", s.Sended),
			logx.Int64("errors", s.Errors),
			logx.Int("backlog", ch.Len()),
		)
	}
	if r.target == nil {
		return
	}
	msg := channel.NewMessage(DigestHTML(r.reg.Channels()).String(), "", map[string]string{"parse_mode": tele.ModeHTML})
	if err := r.target.Put(msg); err != nil {
		r.log.Warn("stats report not queued", logx.String("channel", r.target.Name()), logx.Err(err))
	}
}

// Digest renders one line per channel.
func Digest(chs []*channel.Channel) string {
	var b strings.Builder
	b.WriteString("tgproxy stats")
	for _, ch := range chs {
		s := ch.Stats()
		fmt.Fprintf(&b, "\n%s [%s]: queued=%d sended=%d errors=%d backlog=%d",
			ch.Name(), ch.State().Health(), s.Queued, s.Sended, s.Errors, ch.Len())
		if s.LastError != "" {
			fmt.Fprintf(&b, " last_error=%q", tgui.TruncRunes(s.LastError, maxErrorRunes))
		}
	}
	return b.String()
}

// DigestHTML is Digest for Telegram's HTML parse mode, cut to one message.
func DigestHTML(chs []*channel.Channel) tgui.H {
	lines := []tgui.H{tgui.B("tgproxy stats")}
	for _, ch := range chs {
		s := ch.Stats()
		line := tgui.JoinH(" ",
			tgui.Code(ch.Name()),
			tgui.Esc(fmt.Sprintf("[%s] queued=%d sended=%d errors=%d backlog=%d",
				ch.State().Health(), s.Queued, s.Sended, s.Errors, ch.Len())),
		)
		if s.LastError != "" {
			line = tgui.JoinH("\n", line, tgui.I(tgui.TruncRunes(s.LastError, maxErrorRunes)))
		}
		lines = append(lines, line)
	}
	return tgui.Lines(lines...)
}
