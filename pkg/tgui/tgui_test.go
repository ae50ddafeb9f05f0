package tgui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscAndTags(t *testing.T) {
	assert.Equal(t, H("a &lt;b&gt; &amp; c"), Esc("a <b> & c"))
	assert.Equal(t, H("<b>x&lt;</b>"), B("x<"))
	assert.Equal(t, H("<code>main</code>"), Code("main"))
	assert.Equal(t, H("<b>a</b> · <i>b</i>"), JoinH(" · ", B("a"), "", I("b")))
}

func TestTruncRunes(t *testing.T) {
	assert.Equal(t, "héllo", TruncRunes("héllo", 5))
	assert.Equal(t, "hé…", TruncRunes("héllo", 2))
	assert.Equal(t, "", TruncRunes("héllo", 0))
}

func TestLinesStopsAtLimit(t *testing.T) {
	long := H(strings.Repeat("x", MaxMessageRunes-10))
	got := Lines(B("head"), long, B("tail"))
	assert.Equal(t, "<b>head</b>", got.String())

	got = Lines(B("a"), B("b"))
	assert.Equal(t, "<b>a</b>\n<b>b</b>", got.String())
}
