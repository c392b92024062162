package entity

import "time"

// Member is the joining or leaving guild member as reported by the platform.
type Member struct {
	ID       string `json:"id" bson:"id"`
	Username string `json:"username" bson:"username"`
	Bot      bool   `json:"bot" bson:"bot"`
}

// Attribution is the inferred answer for one join. InviterID and Code are empty when
// the join could not be traced to any tracked invite.
type Attribution struct {
	ID          string    `json:"id" bson:"id"`
	GuildID     string    `json:"guild_id" bson:"guild_id"`
	Member      Member    `json:"member" bson:"member"`
	InviterID   string    `json:"inviter_id,omitempty" bson:"inviter_id,omitempty"`
	InviterName string    `json:"inviter_name,omitempty" bson:"inviter_name,omitempty"`
	Code        string    `json:"code,omitempty" bson:"code,omitempty"`
	NewUseCount int       `json:"new_use_count" bson:"new_use_count"`
	Candidates  int       `json:"candidates" bson:"candidates"`
	Reason      string    `json:"reason,omitempty" bson:"reason,omitempty"`
	JoinedAt    time.Time `json:"joined_at" bson:"joined_at"`
}

// Reasons recorded for joins that resolve to unknown.
const (
	ReasonNoCandidate = "no_candidate"
	ReasonFetchFailed = "fetch_failed"
)

func (a *Attribution) Known() bool {
	return a.Code != ""
}

// Departure is a leave notification; it never touches the invite snapshot.
type Departure struct {
	GuildID string    `json:"guild_id" bson:"guild_id"`
	Member  Member    `json:"member" bson:"member"`
	LeftAt  time.Time `json:"left_at" bson:"left_at"`
}

// InviterTotal is one row of an inviter ranking.
type InviterTotal struct {
	InviterID   string `json:"inviter_id"`
	InviterName string `json:"inviter_name"`
	Uses        int    `json:"uses"`
}
