// Package query answers aggregate questions about invites. Every call reads live
// platform state; the attribution snapshot is never consulted.
package query

import (
	"context"
	"errors"
	"fmt"
	"invitetrack/entity"
	"invitetrack/lib/errx"
	"sort"
)

const (
	DefaultTopLimit  = 10
	DefaultJoinLimit = 25
	MaxJoinLimit     = 100
)

type Platform interface {
	GuildInvites(ctx context.Context, guildID string) ([]entity.Invite, error)
	ChannelInvites(ctx context.Context, channelID string) ([]entity.Invite, error)
	ChannelGuild(ctx context.Context, channelID string) (string, error)
}

// JoinLog looks up recorded attributions. LastJoin returns nil, nil when the member
// has no recorded join.
type JoinLog interface {
	LastJoin(ctx context.Context, guildID, memberID string) (*entity.Attribution, error)
	RecentJoins(ctx context.Context, guildID, inviterID string, limit int64) ([]*entity.Attribution, error)
}

type Service struct {
	platform Platform
	joins    JoinLog
}

func New(platform Platform) *Service {
	return &Service{platform: platform}
}

func (s *Service) SetJoinLog(joins JoinLog) {
	s.joins = joins
}

// Invites lists the live invites of a guild.
func (s *Service) Invites(ctx context.Context, guildID string) ([]entity.Invite, error) {
	invites, err := s.platform.GuildInvites(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("listing guild invites: %w", err)
	}
	return invites, nil
}

func (s *Service) TotalUses(ctx context.Context, guildID string) (int, error) {
	invites, err := s.Invites(ctx, guildID)
	if err != nil {
		return 0, err
	}
	return entity.TotalUses(invites), nil
}

// TopInviters sums uses per inviter and returns the best limit inviters, highest
// first. Equal sums keep the order in which the inviters first appear in the live
// list. Invites without an inviter (vanity, widget) are not ranked.
func (s *Service) TopInviters(ctx context.Context, guildID string, limit int) ([]entity.InviterTotal, error) {
	invites, err := s.Invites(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	ranking := RankInviters(invites)
	if len(ranking) > limit {
		ranking = ranking[:limit]
	}
	return ranking, nil
}

// RankInviters groups invites by inviter in first-seen order and sorts the groups
// by total uses, descending, keeping first-seen order among equals.
func RankInviters(invites []entity.Invite) []entity.InviterTotal {
	index := make(map[string]int)
	var totals []entity.InviterTotal
	for _, inv := range invites {
		if inv.InviterID == "" {
			continue
		}
		i, ok := index[inv.InviterID]
		if !ok {
			i = len(totals)
			index[inv.InviterID] = i
			totals = append(totals, entity.InviterTotal{InviterID: inv.InviterID, InviterName: inv.InviterName})
		}
		totals[i].Uses += inv.Uses
	}
	sort.SliceStable(totals, func(a, b int) bool {
		return totals[a].Uses > totals[b].Uses
	})
	return totals
}

// InviterUses is the number of members brought in by one inviter's live invites.
func (s *Service) InviterUses(ctx context.Context, guildID, inviterID string) (int, error) {
	invites, err := s.Invites(ctx, guildID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, inv := range invites {
		if inv.InviterID == inviterID {
			total += inv.Uses
		}
	}
	return total, nil
}

// MostUsed returns the invite with the most uses; the first listed wins a tie.
// A guild without invites fails with errx.NotFound.
func (s *Service) MostUsed(ctx context.Context, guildID string) (*entity.Invite, error) {
	invites, err := s.Invites(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if len(invites) == 0 {
		return nil, errx.E("query.MostUsed", errx.NotFound, errors.New("guild has no invites"))
	}
	best := invites[0]
	for _, inv := range invites[1:] {
		if inv.Uses > best.Uses {
			best = inv
		}
	}
	return &best, nil
}

// ChannelInvites returns the channel's invite list as the platform reports it.
func (s *Service) ChannelInvites(ctx context.Context, channelID string) ([]entity.Invite, error) {
	invites, err := s.platform.ChannelInvites(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("listing channel invites: %w", err)
	}
	return invites, nil
}

// GuildChannelInvites lists a channel's invites when the channel belongs to guildID.
// A channel of another guild fails with errx.NotFound, as if it did not exist.
func (s *Service) GuildChannelInvites(ctx context.Context, guildID, channelID string) ([]entity.Invite, error) {
	owner, err := s.platform.ChannelGuild(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("resolving channel: %w", err)
	}
	if owner != guildID {
		return nil, errx.E("query.GuildChannelInvites", errx.NotFound, fmt.Errorf("channel %s is not in guild %s", channelID, guildID))
	}
	return s.ChannelInvites(ctx, channelID)
}

// WhoInvited returns the recorded attribution of the member's latest join.
func (s *Service) WhoInvited(ctx context.Context, guildID, memberID string) (*entity.Attribution, error) {
	if s.joins == nil {
		return nil, errx.E("query.WhoInvited", errx.Unavailable, errors.New("join log not connected"))
	}
	a, err := s.joins.LastJoin(ctx, guildID, memberID)
	if err != nil {
		return nil, errx.E("query.WhoInvited", errx.Unavailable, err)
	}
	if a == nil {
		return nil, errx.E("query.WhoInvited", errx.NotFound, errors.New("no recorded join"))
	}
	return a, nil
}

// RecentJoins lists the newest recorded joins of a guild. An empty inviterID lists
// every join; limit is clamped to 1..MaxJoinLimit.
func (s *Service) RecentJoins(ctx context.Context, guildID, inviterID string, limit int) ([]*entity.Attribution, error) {
	if s.joins == nil {
		return nil, errx.E("query.RecentJoins", errx.Unavailable, errors.New("join log not connected"))
	}
	if limit <= 0 {
		limit = DefaultJoinLimit
	}
	if limit > MaxJoinLimit {
		limit = MaxJoinLimit
	}
	joins, err := s.joins.RecentJoins(ctx, guildID, inviterID, int64(limit))
	if err != nil {
		return nil, errx.E("query.RecentJoins", errx.Unavailable, err)
	}
	return joins, nil
}
