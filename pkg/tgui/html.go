package tgui

import (
	"html"
	"strings"
)

// MaxMessageRunes is Telegram's text limit for one message.
const MaxMessageRunes = 4096

// H represents HTML that is safe to pass to Telegram when ParseMode="HTML".
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H    { return wrap("b", Esc(s)) }
func I(s string) H    { return wrap("i", Esc(s)) }
func Code(s string) H { return wrap("code", Esc(s)) }

// JoinH joins safe HTML parts with sep, skipping blank parts.
func JoinH(sep string, parts ...H) H {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p.String()) == "" {
			continue
		}
		ss = append(ss, p.String())
	}
	return H(strings.Join(ss, sep))
}

// Lines joins parts with newlines and stops before the message limit, so
// no tag is ever cut in half.
func Lines(parts ...H) H {
	var b strings.Builder
	runes := 0
	for i, p := range parts {
		n := len([]rune(p.String()))
		if i > 0 {
			n++
		}
		if runes+n > MaxMessageRunes {
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(p.String())
		runes += n
	}
	return H(b.String())
}
