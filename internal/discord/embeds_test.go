package discord

import (
	"context"
	"errors"
	"fmt"
	"invitetrack/entity"
	"strings"
	"testing"
)

func TestJoinEmbed(t *testing.T) {
	known := joinEmbed(&entity.Attribution{
		Member:      entity.Member{ID: "1"},
		InviterID:   "2",
		Code:        "abc",
		NewUseCount: 6,
	})
	if known.Description != "**<@1>** was invited by **<@2>**.\nInvite `abc` uses: 6" {
		t.Errorf("known = %q", known.Description)
	}

	unknown := joinEmbed(&entity.Attribution{Member: entity.Member{ID: "1"}, Reason: entity.ReasonFetchFailed})
	if !strings.Contains(unknown.Description, "invite is unknown") {
		t.Errorf("unknown = %q", unknown.Description)
	}
}

func TestLeaveEmbed(t *testing.T) {
	if got := leaveEmbed(&entity.Departure{Member: entity.Member{ID: "1", Username: "bob"}}).Description; got != "**bob** left the server." {
		t.Errorf("named = %q", got)
	}
	if got := leaveEmbed(&entity.Departure{Member: entity.Member{ID: "1"}}).Description; got != "**1** left the server." {
		t.Errorf("anonymous = %q", got)
	}
}

func TestInviteListEmbed(t *testing.T) {
	if e := inviteListEmbed("x", nil); e.Description != "No active invites." || len(e.Fields) != 0 {
		t.Errorf("empty = %+v", e)
	}

	invites := make([]entity.Invite, 30)
	for i := range invites {
		invites[i] = entity.Invite{Code: fmt.Sprintf("c%02d", i), Uses: i}
	}
	invites[0].MaxUses = 5

	e := inviteListEmbed("x", invites)
	if len(e.Fields) != maxEmbedFields {
		t.Fatalf("fields = %d, want %d", len(e.Fields), maxEmbedFields)
	}
	if e.Footer == nil || e.Footer.Text != "5 more not shown" {
		t.Errorf("footer = %+v", e.Footer)
	}
	if e.Fields[0].Value != "Invited by: unknown\nUses: 0/5" {
		t.Errorf("first value = %q", e.Fields[0].Value)
	}
}

func TestRankingEmbed(t *testing.T) {
	e := rankingEmbed([]entity.InviterTotal{
		{InviterID: "1", InviterName: "alice", Uses: 9},
		{InviterID: "2", Uses: 4},
	})
	if len(e.Fields) != 2 || e.Fields[0].Name != "1. alice" || e.Fields[1].Name != "2. 2" || e.Fields[1].Value != "4 invites" {
		t.Errorf("ranking = %+v %+v", e.Fields[0], e.Fields[1])
	}
	if rankingEmbed(nil).Description == "" {
		t.Error("empty ranking has no description")
	}
}

func TestLogChannel(t *testing.T) {
	if NewLogChannel(&fakeMessenger{}, "") != nil {
		t.Fatal("log channel without id should be nil")
	}

	m := &fakeMessenger{}
	l := NewLogChannel(m, "900")
	if err := l.Joined(context.Background(), &entity.Attribution{Member: entity.Member{ID: "1"}}); err != nil {
		t.Fatal(err)
	}
	if err := l.Left(context.Background(), &entity.Departure{Member: entity.Member{ID: "1"}}); err != nil {
		t.Fatal(err)
	}
	if len(m.sent) != 2 || m.sent[0].channelID != "900" || m.sent[0].embed == nil || m.sent[1].embed == nil {
		t.Errorf("sent = %+v", m.sent)
	}

	m.err = errors.New("missing access")
	if err := l.Joined(context.Background(), &entity.Attribution{}); err == nil {
		t.Error("expected error")
	}
}
