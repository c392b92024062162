package entity

import (
	"sort"
	"time"
)

// Invite is one platform invite as last observed. Code is unique within a guild.
// MaxUses and MaxAge are zero when unlimited.
type Invite struct {
	Code        string    `json:"code" bson:"code"`
	Uses        int       `json:"uses" bson:"uses"`
	InviterID   string    `json:"inviter_id" bson:"inviter_id"`
	InviterName string    `json:"inviter_name" bson:"inviter_name"`
	GuildID     string    `json:"guild_id" bson:"guild_id"`
	ChannelID   string    `json:"channel_id" bson:"channel_id"`
	MaxUses     int       `json:"max_uses" bson:"max_uses"`
	MaxAge      int       `json:"max_age" bson:"max_age"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

// InviteRequest are the parameters of an administrative invite creation.
// Zero MaxUses or MaxAge mean unlimited.
type InviteRequest struct {
	ChannelID string `json:"channel_id" validate:"required,numeric"`
	MaxUses   int    `json:"max_uses" validate:"min=0,max=100"`
	MaxAge    int    `json:"max_age" validate:"min=0,max=604800"`
}

// Snapshot maps invite code to its record for one guild at a point in time.
type Snapshot map[string]Invite

// NewSnapshot indexes a live invite list by code. On duplicate codes the last one wins.
func NewSnapshot(invites []Invite) Snapshot {
	s := make(Snapshot, len(invites))
	for _, inv := range invites {
		s[inv.Code] = inv
	}
	return s
}

func (s Snapshot) Clone() Snapshot {
	c := make(Snapshot, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Codes returns the snapshot's codes in ascending order.
func (s Snapshot) Codes() []string {
	codes := make([]string, 0, len(s))
	for code := range s {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// TotalUses sums the use counters of all invites in the list.
func TotalUses(invites []Invite) int {
	total := 0
	for _, inv := range invites {
		total += inv.Uses
	}
	return total
}
