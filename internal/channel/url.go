package channel

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// URL is a parsed channel definition:
//
//	<scheme>://<user>:<password>@<host>/<name>?<options>
//
// For telegram the user and password are the two halves of the bot token and
// the host is the chat id.
type URL struct {
	Scheme   string
	User     string
	Password string
	Host     string
	Name     string
	Options  map[string]string
	Raw      string
}

// ParseURL parses a channel URL. Repeated query keys keep the last value.
func ParseURL(raw string) (*URL, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse channel url: %w", redactURLError(err))
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("parse channel url: missing scheme")
	}
	if u.Opaque != "" {
		return nil, fmt.Errorf("parse channel url: expected %s://", u.Scheme)
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return nil, fmt.Errorf("parse channel url: missing channel name")
	}
	if strings.Contains(name, "/") {
		return nil, fmt.Errorf("parse channel url: channel name %q must be a single path segment", name)
	}

	out := &URL{
		Scheme:  strings.ToLower(u.Scheme),
		Host:    u.Host,
		Name:    name,
		Options: map[string]string{},
		Raw:     raw,
	}
	if u.User != nil {
		out.User = u.User.Username()
		out.Password, _ = u.User.Password()
	}
	for k, vs := range u.Query() {
		if len(vs) > 0 {
			out.Options[k] = vs[len(vs)-1]
		}
	}
	return out, nil
}

// url.Parse echoes the input, token included.
func redactURLError(err error) error {
	if ue, ok := err.(*url.Error); ok {
		return ue.Err
	}
	return err
}

// Option returns a query option.
func (u *URL) Option(name string) (string, bool) {
	v, ok := u.Options[name]
	return v, ok
}

// Int returns an integer option or def when it is absent.
func (u *URL) Int(name string, def int) (int, error) {
	v, ok := u.Options[name]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("option %s: invalid integer %q", name, v)
	}
	return n, nil
}

// Float returns a float option or def when it is absent.
func (u *URL) Float(name string, def float64) (float64, error) {
	v, ok := u.Options[name]
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("option %s: invalid number %q", name, v)
	}
	return f, nil
}

// Bool accepts 1/0 and the strconv.ParseBool spellings.
func (u *URL) Bool(name string, def bool) (bool, error) {
	v, ok := u.Options[name]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("option %s: invalid boolean %q", name, v)
	}
	return b, nil
}

// Redacted renders the URL with the password masked and options sorted.
func (u *URL) Redacted() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	if u.User != "" || u.Password != "" {
		b.WriteString(u.User)
		if u.Password != "" {
			b.WriteString(":***")
		}
		b.WriteString("@")
	}
	b.WriteString(u.Host)
	b.WriteString("/")
	b.WriteString(u.Name)
	if q := EncodeOptions(u.Options); q != "" {
		b.WriteString("?")
		b.WriteString(q)
	}
	return b.String()
}

// EncodeOptions renders options as a query string with sorted keys.
func EncodeOptions(opts map[string]string) string {
	if len(opts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(opts[k]))
	}
	return strings.Join(parts, "&")
}
