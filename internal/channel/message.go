package channel

import (
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	FieldText      = "text"
	FieldRequestID = "request_id"

	DefaultText = "<Empty message>"
)

// Message is an immutable outbound message.
type Message struct {
	text      string
	requestID string
	options   map[string]string
}

// NewMessage copies options. An empty requestID gets a generated one.
func NewMessage(text, requestID string, options map[string]string) Message {
	if strings.TrimSpace(requestID) == "" {
		requestID = uuid.NewString()
	}
	var opts map[string]string
	if len(options) > 0 {
		opts = maps.Clone(options)
	}
	return Message{text: text, requestID: requestID, options: opts}
}

func (m Message) Text() string      { return m.text }
func (m Message) RequestID() string { return m.requestID }

// Options returns a copy of the provider-specific fields.
func (m Message) Options() map[string]string {
	if len(m.options) == 0 {
		return map[string]string{}
	}
	return maps.Clone(m.options)
}

// Option returns a single provider-specific field.
func (m Message) Option(name string) (string, bool) {
	v, ok := m.options[name]
	return v, ok
}

func (m Message) String() string {
	keys := make([]string, 0, len(m.options))
	for k := range m.options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m.options[k])
	}
	return fmt.Sprintf("Message(text=%q, request_id=%q, options={%s})", m.text, m.requestID, strings.Join(parts, ", "))
}

// Field describes one inbound request field a provider accepts.
type Field struct {
	Name string
	// Default applies when the request omits the field. Without a default the
	// field is left out of the message.
	Default    string
	HasDefault bool
	Validate   func(v string) error
}

// BaseFields are accepted by every provider.
func BaseFields() []Field {
	return []Field{
		{Name: FieldText, Default: DefaultText, HasDefault: true},
		{Name: FieldRequestID},
	}
}

// BuildMessage turns request values into a Message using the field table.
// Values for names outside the table are ignored.
func BuildMessage(fields []Field, values map[string]string) (Message, error) {
	var (
		text, requestID string
		opts            = map[string]string{}
	)
	for _, f := range fields {
		v, ok := values[f.Name]
		if !ok && f.HasDefault {
			v, ok = f.Default, true
		}
		if !ok {
			continue
		}
		if f.Validate != nil {
			if err := f.Validate(v); err != nil {
				return Message{}, &FieldError{Field: f.Name, Err: err}
			}
		}
		switch f.Name {
		case FieldText:
			text = v
		case FieldRequestID:
			requestID = v
		default:
			opts[f.Name] = v
		}
	}
	return NewMessage(text, requestID, opts), nil
}
