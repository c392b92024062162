package logger

import (
	"context"
	"fmt"
	"invitetrack/bot"
	"invitetrack/entity"
	"log/slog"
)

const topicKey = "tg_topic"

// Notifier delivers a formatted record to Telegram subscribers.
type Notifier interface {
	SendMessageWithTopic(msg string, level slog.Level, topic string)
}

// TelegramHandler is a slog.Handler that forwards records at or above minLevel
// to Telegram, after passing them to the wrapped handler.
type TelegramHandler struct {
	handler  slog.Handler
	notifier Notifier
	minLevel slog.Level
	attrs    []slog.Attr
	group    string
}

func NewTelegramHandler(handler slog.Handler, notifier Notifier, minLevel slog.Level) *TelegramHandler {
	return &TelegramHandler{
		handler:  handler,
		notifier: notifier,
		minLevel: minLevel,
	}
}

// Enabled reports whether either destination wants the level.
func (h *TelegramHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level) || (h.notifier != nil && level >= h.minLevel)
}

func (h *TelegramHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.handler.Enabled(ctx, record.Level) {
		if err := h.handler.Handle(ctx, record); err != nil {
			return err
		}
	}
	if h.notifier == nil || record.Level < h.minLevel {
		return nil
	}

	msg, topic := h.format(record)
	h.notifier.SendMessageWithTopic(msg, record.Level, topic)
	return nil
}

// format renders the record as MarkdownV2 and picks its topic: an explicit
// tg_topic attribute wins, otherwise error for error records and system below.
func (h *TelegramHandler) format(record slog.Record) (string, string) {
	topic := entity.TopicSystem
	if record.Level >= slog.LevelError {
		topic = entity.TopicError
	}

	name := record.Message
	if h.group != "" {
		name = h.group + "." + record.Message
	}
	msg := fmt.Sprintf("*%s* `%s`", record.Level.String(), bot.Sanitize(name))

	add := func(attr slog.Attr) {
		if attr.Key == topicKey {
			if t := attr.Value.String(); entity.IsValidTopic(t) {
				topic = t
			}
			return
		}
		if attr.Key == "error" {
			msg += fmt.Sprintf("\nerror: `%s`", bot.Sanitize(attr.Value.String()))
			return
		}
		msg += bot.Sanitize(fmt.Sprintf("\n%s: %v", attr.Key, attr.Value))
	}
	for _, attr := range h.attrs {
		add(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		add(attr)
		return true
	})
	return msg, topic
}

func (h *TelegramHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)

	return &TelegramHandler{
		handler:  h.handler.WithAttrs(attrs),
		notifier: h.notifier,
		minLevel: h.minLevel,
		attrs:    newAttrs,
		group:    h.group,
	}
}

func (h *TelegramHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}

	return &TelegramHandler{
		handler:  h.handler.WithGroup(name),
		notifier: h.notifier,
		minLevel: h.minLevel,
		attrs:    h.attrs,
		group:    group,
	}
}
