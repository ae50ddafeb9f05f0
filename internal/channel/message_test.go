package channel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageCopiesOptions(t *testing.T) {
	opts := map[string]string{"parse_mode": "HTML"}
	m := NewMessage("hi", "r1", opts)
	opts["parse_mode"] = "Markdown"

	v, ok := m.Option("parse_mode")
	require.True(t, ok)
	assert.Equal(t, "HTML", v)

	got := m.Options()
	got["parse_mode"] = "changed"
	v, _ = m.Option("parse_mode")
	assert.Equal(t, "HTML", v)
}

func TestNewMessageGeneratesRequestID(t *testing.T) {
	a := NewMessage("x", "", nil)
	b := NewMessage("x", "  ", nil)
	assert.NotEmpty(t, a.RequestID())
	assert.NotEmpty(t, b.RequestID())
	assert.NotEqual(t, a.RequestID(), b.RequestID())
	assert.Equal(t, "given", NewMessage("x", "given", nil).RequestID())
}

func TestMessageString(t *testing.T) {
	m := NewMessage("hi", "r1", map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, `Message(text="hi", request_id="r1", options={a=1, b=2})`, m.String())
}

func TestBuildMessage(t *testing.T) {
	fields := append(BaseFields(),
		Field{Name: "mode", Default: "0", HasDefault: true},
		Field{Name: "reply_to", Validate: func(v string) error {
			if v == "bad" {
				return errors.New("not a number")
			}
			return nil
		}},
	)

	t.Run("defaults", func(t *testing.T) {
		m, err := BuildMessage(fields, map[string]string{})
		require.NoError(t, err)
		assert.Equal(t, DefaultText, m.Text())
		assert.NotEmpty(t, m.RequestID())
		assert.Equal(t, map[string]string{"mode": "0"}, m.Options())
	})

	t.Run("values", func(t *testing.T) {
		m, err := BuildMessage(fields, map[string]string{
			"text": "hello", "request_id": "r-1", "reply_to": "42", "unknown": "ignored",
		})
		require.NoError(t, err)
		assert.Equal(t, "hello", m.Text())
		assert.Equal(t, "r-1", m.RequestID())
		assert.Equal(t, map[string]string{"mode": "0", "reply_to": "42"}, m.Options())
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := BuildMessage(fields, map[string]string{"reply_to": "bad"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidMessage)
		assert.Contains(t, err.Error(), "reply_to")
	})
}
