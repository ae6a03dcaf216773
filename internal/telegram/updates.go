package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"clipbot/internal/logging"
	"clipbot/internal/transport"
)

const (
	pollTimeout   = 30 * time.Second
	pollErrorWait = 3 * time.Second
)

// --- Bot API wire types ---

type update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *message       `json:"message"`
	CallbackQuery *callbackQuery `json:"callback_query"`
}

type message struct {
	MessageID      int64     `json:"message_id"`
	From           *user     `json:"from"`
	Chat           chat      `json:"chat"`
	Text           string    `json:"text"`
	Video          *fileInfo `json:"video"`
	Audio          *fileInfo `json:"audio"`
	Voice          *fileInfo `json:"voice"`
	Document       *fileInfo `json:"document"`
	ReplyToMessage *message  `json:"reply_to_message"`
}

type user struct {
	ID int64 `json:"id"`
}

type chat struct {
	ID int64 `json:"id"`
}

type fileInfo struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
}

type callbackQuery struct {
	ID      string   `json:"id"`
	From    user     `json:"from"`
	Message *message `json:"message"`
	Data    string   `json:"data"`
}

// Poll long-polls the Bot API and emits converted events until ctx is
// canceled. Transient API failures are logged and retried; the loop
// only exits with the context.
func (c *Client) Poll(ctx context.Context, events chan<- transport.Event) {
	var offset int64

	for {
		if ctx.Err() != nil {
			return
		}

		updates, err := c.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Warn("getUpdates failed: %v", err)
			select {
			case <-time.After(pollErrorWait):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}

			ev, ok := convertUpdate(&u)
			if !ok {
				continue
			}
			if u.CallbackQuery != nil {
				c.answerCallback(ctx, u.CallbackQuery.ID)
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Client) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	params := url.Values{}
	params.Set("timeout", strconv.Itoa(int(pollTimeout.Seconds())))
	params.Set("allowed_updates", `["message","callback_query"]`)
	if offset > 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}

	ctx, cancel := context.WithTimeout(ctx, pollTimeout+10*time.Second)
	defer cancel()

	result, err := c.call(ctx, "getUpdates", params)
	if err != nil {
		return nil, err
	}

	var updates []update
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, fmt.Errorf("getUpdates: decode result: %w", err)
	}
	return updates, nil
}

// convertUpdate maps one Bot API update onto the transport event model.
// Updates without a usable sender or content are dropped.
func convertUpdate(u *update) (transport.Event, bool) {
	if cb := u.CallbackQuery; cb != nil {
		if cb.Message == nil {
			return transport.Event{}, false
		}
		return transport.Event{
			UserID:    cb.From.ID,
			ChatID:    cb.Message.Chat.ID,
			Kind:      transport.EventButton,
			Payload:   cb.Data,
			MessageID: cb.Message.MessageID,
		}, true
	}

	msg := u.Message
	if msg == nil || msg.From == nil {
		return transport.Event{}, false
	}

	ev := transport.Event{
		UserID:    msg.From.ID,
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		ReplyTo:   mediaRef(msg.ReplyToMessage),
	}

	if media := mediaRef(msg); media != nil {
		ev.Kind = transport.EventMedia
		ev.Media = media
		return ev, true
	}

	if strings.HasPrefix(msg.Text, "/") {
		name, args, _ := strings.Cut(strings.TrimPrefix(msg.Text, "/"), " ")
		// Commands in group chats may carry a "@botname" suffix.
		name, _, _ = strings.Cut(name, "@")
		ev.Kind = transport.EventCommand
		ev.Command = name
		ev.Args = strings.TrimSpace(args)
		return ev, true
	}

	if msg.Text != "" {
		ev.Kind = transport.EventText
		ev.Text = msg.Text
		return ev, true
	}

	return transport.Event{}, false
}

// mediaRef extracts the uploaded media of a message, if any.
func mediaRef(msg *message) *transport.MediaRef {
	if msg == nil {
		return nil
	}
	switch {
	case msg.Video != nil:
		return &transport.MediaRef{FileID: msg.Video.FileID, FileName: msg.Video.FileName, Kind: transport.MediaVideo}
	case msg.Audio != nil:
		return &transport.MediaRef{FileID: msg.Audio.FileID, FileName: msg.Audio.FileName, Kind: transport.MediaAudio}
	case msg.Voice != nil:
		return &transport.MediaRef{FileID: msg.Voice.FileID, FileName: msg.Voice.FileName, Kind: transport.MediaAudio}
	case msg.Document != nil:
		return &transport.MediaRef{FileID: msg.Document.FileID, FileName: msg.Document.FileName, Kind: transport.MediaDocument}
	}
	return nil
}
