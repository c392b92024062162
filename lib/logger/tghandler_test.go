package logger

import (
	"bytes"
	"errors"
	"invitetrack/entity"
	"invitetrack/lib/sl"
	"log/slog"
	"strings"
	"testing"
)

type notification struct {
	msg   string
	level slog.Level
	topic string
}

type fakeNotifier struct {
	got []notification
}

func (f *fakeNotifier) SendMessageWithTopic(msg string, level slog.Level, topic string) {
	f.got = append(f.got, notification{msg: msg, level: level, topic: topic})
}

func newHandler(minLevel slog.Level) (*slog.Logger, *bytes.Buffer, *fakeNotifier) {
	var buf bytes.Buffer
	n := &fakeNotifier{}
	base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewTelegramHandler(base, n, minLevel)), &buf, n
}

func TestTelegramHandler_Level(t *testing.T) {
	log, buf, n := newHandler(slog.LevelWarn)

	log.Info("routine")
	log.Warn("careful")

	if !strings.Contains(buf.String(), "routine") || !strings.Contains(buf.String(), "careful") {
		t.Errorf("base handler output = %q", buf.String())
	}
	if len(n.got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(n.got))
	}
	if n.got[0].msg != "*WARN* `careful`" || n.got[0].topic != entity.TopicSystem {
		t.Errorf("notification = %+v", n.got[0])
	}
}

func TestTelegramHandler_Format(t *testing.T) {
	log, _, n := newHandler(slog.LevelWarn)

	log.With(sl.Module("attribution")).WithGroup("engine").Error("fetch failed",
		sl.Err(errors.New("status 503")),
		slog.Int("n", 2),
	)

	if len(n.got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(n.got))
	}
	want := "*ERROR* `engine\\.fetch failed`\nmod: attribution\nerror: `status 503`\nn: 2"
	if n.got[0].msg != want {
		t.Errorf("msg = %q, want %q", n.got[0].msg, want)
	}
	if n.got[0].topic != entity.TopicError {
		t.Errorf("topic = %q", n.got[0].topic)
	}
}

func TestTelegramHandler_Topic(t *testing.T) {
	log, _, n := newHandler(slog.LevelInfo)

	log.Info("member joined", sl.Topic(entity.TopicJoin))
	log.Info("odd", sl.Topic("nonsense"))

	if len(n.got) != 2 {
		t.Fatalf("notifications = %d", len(n.got))
	}
	if n.got[0].topic != entity.TopicJoin || strings.Contains(n.got[0].msg, "tg\\_topic") {
		t.Errorf("tagged = %+v", n.got[0])
	}
	if n.got[1].topic != entity.TopicSystem {
		t.Errorf("invalid tag topic = %q", n.got[1].topic)
	}
}

func TestTelegramHandler_NilNotifier(t *testing.T) {
	var buf bytes.Buffer
	h := NewTelegramHandler(slog.NewTextHandler(&buf, nil), nil, slog.LevelWarn)
	slog.New(h).Error("still logged")
	if !strings.Contains(buf.String(), "still logged") {
		t.Error("record lost")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"loud":  slog.LevelWarn,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelForEnv(t *testing.T) {
	if l, ok := levelForEnv("prod"); !ok || l != slog.LevelInfo {
		t.Errorf("prod = %v %v", l, ok)
	}
	if _, ok := levelForEnv("staging"); ok {
		t.Error("unknown env accepted")
	}
}
