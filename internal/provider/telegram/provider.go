package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tgproxy/internal/channel"
	"tgproxy/internal/delivery"
	logx "tgproxy/pkg/logx"
)

const (
	Scheme = "telegram"

	DefaultAPIURL  = "https://api.telegram.org"
	DefaultTimeout = 25 * time.Second

	OptTimeout    = "timeout"
	OptRatePerSec = "rate_per_sec"
	OptAPIURL     = "api_url"
)

// Defaults apply to every telegram channel unless its URL overrides them.
type Defaults struct {
	APIURL  string
	Timeout time.Duration
	Status  delivery.StatusPolicy
	Log     logx.Logger
}

// NewFactory returns a channel.Factory for the telegram scheme.
func NewFactory(d Defaults) channel.Factory {
	if d.APIURL == "" {
		d.APIURL = DefaultAPIURL
	}
	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}
	if d.Status.Overrides == nil {
		d.Status = delivery.DefaultStatusPolicy()
	}
	return func(u *channel.URL) (channel.Provider, error) {
		return New(u, d)
	}
}

// Provider sends to one chat with one bot token.
type Provider struct {
	token    string
	chatID   string
	botName  string
	apiURL   string
	timeout  time.Duration
	rps      float64
	status   delivery.StatusPolicy
	describe string
	log      logx.Logger
}

func New(u *channel.URL, d Defaults) (*Provider, error) {
	if u.User == "" || u.Password == "" {
		return nil, fmt.Errorf("telegram: bot token must be <bot_id>:<secret>")
	}
	if u.Host == "" {
		return nil, fmt.Errorf("telegram: missing chat id")
	}

	p := &Provider{
		token:    u.User + ":" + u.Password,
		chatID:   u.Host,
		botName:  u.User,
		apiURL:   d.APIURL,
		timeout:  d.Timeout,
		status:   d.Status,
		describe: u.Redacted(),
	}
	if p.apiURL == "" {
		p.apiURL = DefaultAPIURL
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.status.Overrides == nil {
		p.status = delivery.DefaultStatusPolicy()
	}
	if v, ok := u.Option(OptAPIURL); ok && v != "" {
		p.apiURL = v
	}
	secs, err := u.Float(OptTimeout, p.timeout.Seconds())
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	if secs <= 0 {
		return nil, fmt.Errorf("telegram: option %s must be positive", OptTimeout)
	}
	p.timeout = time.Duration(secs * float64(time.Second))

	if p.rps, err = u.Float(OptRatePerSec, 0); err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	if p.rps < 0 {
		return nil, fmt.Errorf("telegram: option %s must not be negative", OptRatePerSec)
	}

	p.log = d.Log.With(
		logx.String("comp", "telegram"),
		logx.String("bot", p.botName),
		logx.String("chat_id", p.chatID),
	)
	return p, nil
}

func (p *Provider) Scheme() string          { return Scheme }
func (p *Provider) Describe() string        { return p.describe }
func (p *Provider) Fields() []channel.Field { return Fields() }
func (p *Provider) Timeout() time.Duration  { return p.timeout }
func (p *Provider) ChatID() string          { return p.chatID }

func (p *Provider) endpoint(method string) string {
	return strings.TrimRight(p.apiURL, "/") + "/bot" + p.token + "/" + method
}

// Open creates a session with its own connection pool.
func (p *Provider) Open(ctx context.Context) (channel.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 2
	s := &Session{
		p:         p,
		transport: tr,
		client: &http.Client{
			Transport: tr,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	if p.rps > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(p.rps), 1)
	}
	p.log.Debug("telegram session opened")
	return s, nil
}
