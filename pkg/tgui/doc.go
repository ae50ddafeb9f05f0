// Package tgui renders text for Telegram's HTML parse mode.
//
// Values of type H are already escaped; build them with Esc and the tag
// helpers rather than by concatenating user input.
package tgui
