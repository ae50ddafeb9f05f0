package telegram

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"tgproxy/internal/channel"
)

const (
	FieldParseMode             = "parse_mode"
	FieldDisableWebPagePreview = "disable_web_page_preview"
	FieldDisableNotifications  = "disable_notifications"
	FieldReplyToMessageID      = "reply_to_message_id"
)

// Fields are the inbound request fields a telegram channel accepts.
func Fields() []channel.Field {
	return append(channel.BaseFields(),
		channel.Field{Name: FieldParseMode, Validate: validParseMode},
		channel.Field{Name: FieldDisableWebPagePreview, Default: "0", HasDefault: true, Validate: validFlag},
		channel.Field{Name: FieldDisableNotifications, Default: "0", HasDefault: true, Validate: validFlag},
		channel.Field{Name: FieldReplyToMessageID, Validate: validMessageID},
	)
}

func validParseMode(v string) error {
	switch tele.ParseMode(v) {
	case tele.ModeDefault, tele.ModeMarkdown, tele.ModeMarkdownV2, tele.ModeHTML:
		return nil
	}
	return fmt.Errorf("unsupported parse mode %q (want %s, %s or %s)", v, tele.ModeMarkdown, tele.ModeMarkdownV2, tele.ModeHTML)
}

func validFlag(v string) error {
	if _, err := strconv.ParseBool(v); err != nil {
		return fmt.Errorf("expected 0 or 1, got %q", v)
	}
	return nil
}

func validMessageID(v string) error {
	if _, err := strconv.ParseInt(v, 10, 64); err != nil {
		return fmt.Errorf("expected a message id, got %q", v)
	}
	return nil
}
