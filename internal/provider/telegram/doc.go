// Package telegram delivers channel messages through the Telegram Bot API
// sendMessage method.
//
// Channel URL:
//
//	telegram://<bot_id>:<secret>@<chat_id>/<name>?timeout=25&rate_per_sec=1&api_url=https://api.telegram.org
//
// The bot token is "<bot_id>:<secret>". Any other query option is passed
// through to the channel and shows up in its description.
package telegram
