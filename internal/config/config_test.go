package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgproxy/internal/delivery"
	logx "tgproxy/pkg/logx"
)

const sampleJSON = `{
  "server": {"host": "0.0.0.0", "port": 8080, "shutdown_timeout": "5s"},
  "logging": {"level": "debug", "console": true},
  "channels": ["telegram://1:a@-100/alerts"],
  "queue": {"max_size": 50},
  "delivery": {
    "max_attempts": 4,
    "backoff_min": "1s",
    "backoff_max": "30s",
    "status_overrides": {"400": "transient"}
  },
  "storage": {"driver": "sqlite"}
}`

const sampleYAML = `
server:
  port: 8080
logging:
  level: warn
channels:
  - telegram://1:a@-100/alerts
delivery:
  status_overrides:
    400: transient
report:
  enabled: true
  channel: alerts
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadJSON(t *testing.T) {
	m := NewManager(writeFile(t, "tgproxy.json", sampleJSON))
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, m.Get())

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 50, cfg.Queue.MaxSize)
	assert.Equal(t, []string{"telegram://1:a@-100/alerts"}, cfg.Channels)
	require.NotNil(t, cfg.Storage)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, DefaultStoragePath, cfg.Storage.Path)
	assert.Nil(t, cfg.Report)

	_, _, _, shutdown, err := cfg.Server.Timeouts()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, shutdown)

	p, err := cfg.Delivery.RetryPolicy()
	require.NoError(t, err)
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, time.Second, p.MinWait)
	assert.Equal(t, 30*time.Second, p.MaxWait)
	assert.Equal(t, delivery.DefaultBackoffBase, p.Base)

	sp, err := cfg.Delivery.StatusPolicy()
	require.NoError(t, err)
	assert.Equal(t, delivery.Transient, sp.Classify(400))
	assert.Equal(t, delivery.Transient, sp.Classify(429))
	assert.Equal(t, delivery.Fatal, sp.Classify(403))
	assert.True(t, cfg.Delivery.BannerEnabled())
}

func TestLoadYAML(t *testing.T) {
	cfg, err := NewManager(writeFile(t, "tgproxy.yaml", sampleYAML)).Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, map[string]string{"400": "transient"}, cfg.Delivery.StatusOverrides)
	require.NotNil(t, cfg.Report)
	assert.Equal(t, DefaultReportSchedule, cfg.Report.Schedule)
	assert.Equal(t, "alerts", cfg.Report.Channel)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "localhost:5000", cfg.Server.Addr())
	assert.Equal(t, DefaultQueueSize, cfg.Queue.MaxSize)
	assert.Equal(t, delivery.DefaultMaxAttempts, cfg.Delivery.MaxAttempts)
	assert.NoError(t, cfg.Validate())
}

func TestDecodeRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":    `{"bogus": 1}`,
		"trailing data":    `{} {}`,
		"bad duration":     `{"server": {"read_timeout": "soon"}}`,
		"bad port":         `{"server": {"port": 70000}}`,
		"bad level":        `{"logging": {"level": "loud"}}`,
		"bad override":     `{"delivery": {"status_overrides": {"200": "fatal"}}}`,
		"bad kind":         `{"delivery": {"status_overrides": {"500": "maybe"}}}`,
		"bad driver":       `{"storage": {"driver": "redis"}}`,
		"empty channel":    `{"channels": [""]}`,
		"duplicate urls":   `{"channels": ["telegram://1:a@2/x", "telegram://1:a@2/x"]}`,
		"bad timezone":     `{"report": {"timezone": "Mars/Olympus"}}`,
		"negative queue":   `{"queue": {"max_size": -1}}`,
		"bad format":       `{"logging": {"format": "xml"}}`,
		"negative retries": `{"delivery": {"max_attempts": -2}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode("c.json", []byte(body))
			assert.Error(t, err)
		})
	}
}

func TestRetryPolicyRejectsInvertedBounds(t *testing.T) {
	d := DeliveryConfig{BackoffMin: "10s", BackoffMax: "1s"}
	_, err := d.RetryPolicy()
	assert.Error(t, err)
}

func TestSubscribeDeliversLatest(t *testing.T) {
	m := NewManager("unused.json")
	ch := m.Subscribe(1)

	a, b := Default(), Default()
	b.Queue.MaxSize = 7
	m.publish(a)
	m.publish(b)

	got := <-ch
	assert.Same(t, b, got)

	m.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestWatchPublishesValidReload(t *testing.T) {
	path := writeFile(t, "tgproxy.json", `{"queue": {"max_size": 1}}`)
	m := NewManager(path)
	m.SetLogger(logx.Nop())
	_, err := m.Load()
	require.NoError(t, err)

	updates := m.Subscribe(4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`{"queue": {"max_size": "broken"}}`), 0o644))
	time.Sleep(3 * reloadDebounce)
	require.NoError(t, os.WriteFile(path, []byte(`{"queue": {"max_size": 2}}`), 0o644))

	select {
	case cfg := <-updates:
		assert.Equal(t, 2, cfg.Queue.MaxSize)
		assert.Equal(t, 2, m.Get().Queue.MaxSize)
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
}

func TestWatchValidatorRejects(t *testing.T) {
	path := writeFile(t, "tgproxy.json", `{"queue": {"max_size": 1}}`)
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	m.SetValidator(func(context.Context, *Config) error { return assert.AnError })

	updates := m.Subscribe(1)
	require.NoError(t, os.WriteFile(path, []byte(`{"queue": {"max_size": 3}}`), 0o644))
	m.reload(context.Background())

	select {
	case <-updates:
		t.Fatal("rejected config was published")
	default:
	}
	assert.Equal(t, 1, m.Get().Queue.MaxSize)
}

func TestSummarizeConfigChange(t *testing.T) {
	a := Default()
	b := Default()
	assert.True(t, SummarizeConfigChange(a, b).Empty())

	b.Logging.Level = "debug"
	b.Channels = []string{"telegram://1:secret@2/x"}
	ch := SummarizeConfigChange(a, b)
	assert.Equal(t, []string{"logging", "channels"}, ch.Sections)
	assert.Equal(t, []string{"logging"}, ch.Live)
	assert.Equal(t, []string{"channels"}, ch.Restart)
}

func TestParseDurationField(t *testing.T) {
	d, err := ParseDurationField("x", " 2s ")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)

	d, err = ParseDurationField("x", "")
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = ParseDurationField("x", "-1s")
	assert.Error(t, err)

	d, err = ParseDurationOrDefault("x", "", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)
}
