// Package telegram implements the chat transport against the Telegram
// Bot API: long-polling updates into events, sending messages and
// inline keyboards, editing status messages, and transferring media
// with progress reporting.
package telegram
