package discord

import (
	"context"
	"invitetrack/entity"
	"invitetrack/internal/supervisor"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
)

// syncTasks runs tasks inline so tests can assert right after the handler returns.
// With hold set it keeps them for run; with reject set it refuses them.
type syncTasks struct {
	names  []string
	held   []supervisor.Task
	hold   bool
	reject bool
}

func (s *syncTasks) Go(ctx context.Context, name string, task supervisor.Task) bool {
	if s.reject {
		return false
	}
	s.names = append(s.names, name)
	if s.hold {
		s.held = append(s.held, task)
		return true
	}
	_ = task(ctx)
	return true
}

func (s *syncTasks) run(ctx context.Context) {
	held := s.held
	s.held = nil
	for _, task := range held {
		_ = task(ctx)
	}
}

type fakeAttributor struct {
	mu        sync.Mutex
	queued    map[string][]entity.Member
	draining  map[string]bool
	joins     []string
	leaves    []string
	discarded []string
}

func (f *fakeAttributor) Enqueue(guildID string, m entity.Member) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queued == nil {
		f.queued = make(map[string][]entity.Member)
		f.draining = make(map[string]bool)
	}
	f.queued[guildID] = append(f.queued[guildID], m)
	if f.draining[guildID] {
		return false
	}
	f.draining[guildID] = true
	return true
}

func (f *fakeAttributor) Drain(_ context.Context, guildID string) []*entity.Attribution {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Attribution
	for _, m := range f.queued[guildID] {
		f.joins = append(f.joins, guildID+"/"+m.ID)
		out = append(out, &entity.Attribution{GuildID: guildID, Member: m})
	}
	delete(f.queued, guildID)
	f.draining[guildID] = false
	return out
}

func (f *fakeAttributor) Discard(guildID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.queued[guildID])
	delete(f.queued, guildID)
	f.draining[guildID] = false
	f.discarded = append(f.discarded, guildID)
	return n
}

func (f *fakeAttributor) Leave(_ context.Context, guildID string, m entity.Member) *entity.Departure {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, guildID+"/"+m.ID)
	return &entity.Departure{GuildID: guildID, Member: m}
}

type fakeRefresher struct {
	started   []string
	refreshed []string
	forgotten []string
	tracked   map[string]bool
}

func (f *fakeRefresher) Startup(_ context.Context, ids []string) int {
	f.started = append(f.started, ids...)
	return len(ids)
}

func (f *fakeRefresher) Refresh(_ context.Context, guildID string) error {
	f.refreshed = append(f.refreshed, guildID)
	return nil
}

func (f *fakeRefresher) Tracked(guildID string) bool {
	return f.tracked[guildID]
}

func (f *fakeRefresher) Forget(guildID string) {
	f.forgotten = append(f.forgotten, guildID)
}

func newTestRouter() (*Router, *fakeAttributor, *fakeRefresher, *syncTasks, *fakeMessenger) {
	a := &fakeAttributor{}
	r := &fakeRefresher{tracked: map[string]bool{"1": true}}
	tasks := &syncTasks{}
	m := &fakeMessenger{}
	cmds := newTestCommands(&fakeQueries{total: 3}, &fakeAdmin{}, m)
	return NewRouter(context.Background(), a, r, cmds, tasks, discardLogger()), a, r, tasks, m
}

func TestRouter_Ready(t *testing.T) {
	router, _, ref, _, _ := newTestRouter()

	router.onReady(nil, &discordgo.Ready{Guilds: []*discordgo.Guild{{ID: "1"}, {ID: "2"}}})

	if len(ref.started) != 2 || ref.started[0] != "1" || ref.started[1] != "2" {
		t.Errorf("started = %v", ref.started)
	}
}

func TestRouter_GuildCreate(t *testing.T) {
	router, _, ref, _, _ := newTestRouter()

	router.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "1"}})
	router.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "2", Unavailable: true}})
	router.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "3"}})

	if len(ref.refreshed) != 1 || ref.refreshed[0] != "3" {
		t.Errorf("refreshed = %v, want only the untracked available guild", ref.refreshed)
	}
}

func TestRouter_GuildDelete(t *testing.T) {
	router, _, ref, _, _ := newTestRouter()

	router.onGuildDelete(nil, &discordgo.GuildDelete{Guild: &discordgo.Guild{ID: "1", Unavailable: true}})
	router.onGuildDelete(nil, &discordgo.GuildDelete{Guild: &discordgo.Guild{ID: "1"}})

	if len(ref.forgotten) != 1 || ref.forgotten[0] != "1" {
		t.Errorf("forgotten = %v", ref.forgotten)
	}
}

func TestRouter_Members(t *testing.T) {
	router, att, ref, tasks, _ := newTestRouter()

	user := &discordgo.User{ID: "42", Username: "bob"}
	router.onMemberAdd(nil, &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "1", User: user}})
	router.onMemberRemove(nil, &discordgo.GuildMemberRemove{Member: &discordgo.Member{GuildID: "1", User: user}})
	router.onMemberAdd(nil, &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "1"}})

	if len(att.joins) != 1 || att.joins[0] != "1/42" {
		t.Errorf("joins = %v", att.joins)
	}
	if len(att.leaves) != 1 || att.leaves[0] != "1/42" {
		t.Errorf("leaves = %v", att.leaves)
	}
	if len(ref.refreshed) != 0 {
		t.Errorf("member events refreshed %v", ref.refreshed)
	}
	if len(tasks.names) != 2 || tasks.names[0] != "member_join" || tasks.names[1] != "member_leave" {
		t.Errorf("tasks = %v", tasks.names)
	}
}

func TestRouter_JoinsShareOneDrain(t *testing.T) {
	router, att, _, tasks, _ := newTestRouter()
	tasks.hold = true

	for _, id := range []string{"10", "11", "12"} {
		router.onMemberAdd(nil, &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "1", User: &discordgo.User{ID: id}}})
	}
	if len(tasks.held) != 1 {
		t.Fatalf("tasks started = %d, want 1", len(tasks.held))
	}
	tasks.run(context.Background())

	want := []string{"1/10", "1/11", "1/12"}
	if len(att.joins) != len(want) {
		t.Fatalf("joins = %v, want %v", att.joins, want)
	}
	for i := range want {
		if att.joins[i] != want[i] {
			t.Errorf("joins = %v, want %v", att.joins, want)
		}
	}
}

func TestRouter_JoinDiscardedWhenTaskRejected(t *testing.T) {
	router, att, _, tasks, _ := newTestRouter()
	tasks.reject = true

	router.onMemberAdd(nil, &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "1", User: &discordgo.User{ID: "10"}}})

	if len(att.discarded) != 1 || att.discarded[0] != "1" || len(att.joins) != 0 {
		t.Errorf("discarded = %v, joins = %v", att.discarded, att.joins)
	}
}

func TestRouter_InviteEvents(t *testing.T) {
	router, _, ref, _, _ := newTestRouter()

	router.onInviteCreate(nil, &discordgo.InviteCreate{Invite: &discordgo.Invite{Code: "a"}, GuildID: "1"})
	router.onInviteDelete(nil, &discordgo.InviteDelete{GuildID: "2", Code: "b"})
	router.onInviteDelete(nil, &discordgo.InviteDelete{Code: "c"})

	if len(ref.refreshed) != 2 || ref.refreshed[0] != "1" || ref.refreshed[1] != "2" {
		t.Errorf("refreshed = %v", ref.refreshed)
	}
}

func TestRouter_MessageCreate(t *testing.T) {
	router, _, _, tasks, m := newTestRouter()

	router.onMessageCreate(nil, &discordgo.MessageCreate{Message: message("just chatting")})
	bot := message("?totalinvites")
	bot.Author.Bot = true
	router.onMessageCreate(nil, &discordgo.MessageCreate{Message: bot})
	if len(tasks.names) != 0 {
		t.Fatalf("tasks started for non-commands: %v", tasks.names)
	}

	router.onMessageCreate(nil, &discordgo.MessageCreate{Message: message("?totalinvites")})
	if got := m.last(t).text; got != "📊 Total invite uses: **3**" {
		t.Errorf("reply = %q", got)
	}
}
