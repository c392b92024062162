package attribution

import (
	"context"
	"errors"
	"fmt"
	"invitetrack/entity"
	"invitetrack/internal/snapshot"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePlatform serves a mutable live invite list. Each call to GuildInvites first
// applies one queued use, which models a join whose counter update has landed by
// the time its own handler fetches.
type fakePlatform struct {
	mu      sync.Mutex
	live    map[string]map[string]entity.Invite
	pending map[string][]string
	err     error
	calls   int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		live:    make(map[string]map[string]entity.Invite),
		pending: make(map[string][]string),
	}
}

func (f *fakePlatform) set(guildID, code string, uses int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.live[guildID] == nil {
		f.live[guildID] = make(map[string]entity.Invite)
	}
	f.live[guildID][code] = entity.Invite{Code: code, Uses: uses, InviterID: "owner-" + code}
}

func (f *fakePlatform) use(guildID, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[guildID] = append(f.pending[guildID], code)
}

func (f *fakePlatform) GuildInvites(_ context.Context, guildID string) ([]entity.Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if q := f.pending[guildID]; len(q) > 0 {
		code := q[0]
		f.pending[guildID] = q[1:]
		inv := f.live[guildID][code]
		inv.Uses++
		f.live[guildID][code] = inv
	}
	out := make([]entity.Invite, 0, len(f.live[guildID]))
	for _, inv := range f.live[guildID] {
		out = append(out, inv)
	}
	return out, nil
}

type recordingSink struct {
	mu     sync.Mutex
	joins  []*entity.Attribution
	leaves []*entity.Departure
	err    error
}

func (s *recordingSink) Joined(_ context.Context, a *entity.Attribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joins = append(s.joins, a)
	return s.err
}

func (s *recordingSink) Left(_ context.Context, d *entity.Departure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves = append(s.leaves, d)
	return s.err
}

func newTestEngine(store *snapshot.Store, p Platform, sink Sink) *Engine {
	return New(store, p, sink, Config{}, discardLogger())
}

func TestJoin_AttributesIncrementedInvite(t *testing.T) {
	store := snapshot.New()
	store.Replace("g", snap("A", 5, "B", 3))
	p := newFakePlatform()
	p.set("g", "A", 6)
	p.set("g", "B", 3)
	sink := &recordingSink{}

	res := newTestEngine(store, p, sink).Join(context.Background(), "g", entity.Member{ID: "m1"})

	if res.Code != "A" || res.InviterID != "owner-A" || res.NewUseCount != 6 {
		t.Errorf("result = %+v, want A/owner-A/6", res)
	}
	if res.ID == "" {
		t.Error("result has no id")
	}
	if len(sink.joins) != 1 || sink.joins[0] != res {
		t.Errorf("sink got %d joins", len(sink.joins))
	}
	if got := store.Get("g")["A"].Uses; got != 6 {
		t.Errorf("snapshot A uses = %d, want 6", got)
	}
}

func TestJoin_NoChangeIsUnknown(t *testing.T) {
	store := snapshot.New()
	store.Replace("g", snap("A", 5))
	p := newFakePlatform()
	p.set("g", "A", 5)

	res := newTestEngine(store, p, nil).Join(context.Background(), "g", entity.Member{ID: "m1"})

	if res.Known() {
		t.Errorf("result = %+v, want unknown", res)
	}
	if res.Reason != entity.ReasonNoCandidate {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestJoin_UnseenCode(t *testing.T) {
	store := snapshot.New()
	p := newFakePlatform()
	p.set("g", "C", 1)

	res := newTestEngine(store, p, nil).Join(context.Background(), "g", entity.Member{ID: "m1"})

	if res.Code != "C" || res.InviterID != "owner-C" || res.NewUseCount != 1 {
		t.Errorf("result = %+v, want C/owner-C/1", res)
	}
}

func TestJoin_FetchFailureKeepsSnapshot(t *testing.T) {
	store := snapshot.New()
	store.Replace("g", snap("A", 5))
	p := newFakePlatform()
	p.err = errors.New("502 bad gateway")
	sink := &recordingSink{}

	res := newTestEngine(store, p, sink).Join(context.Background(), "g", entity.Member{ID: "m1"})

	if res.Known() || res.Reason != entity.ReasonFetchFailed {
		t.Errorf("result = %+v, want unknown/fetch_failed", res)
	}
	if got := store.Get("g")["A"].Uses; got != 5 {
		t.Errorf("snapshot changed after failed fetch: uses = %d", got)
	}
	if len(sink.joins) != 1 {
		t.Errorf("sink got %d joins, want 1", len(sink.joins))
	}
}

func TestJoin_SinkErrorDoesNotChangeResult(t *testing.T) {
	store := snapshot.New()
	p := newFakePlatform()
	p.set("g", "A", 1)
	sink := &recordingSink{err: errors.New("log channel gone")}

	res := newTestEngine(store, p, sink).Join(context.Background(), "g", entity.Member{ID: "m1"})
	if res.Code != "A" {
		t.Errorf("result = %+v", res)
	}
}

func TestJoin_WaitsBeforeFetching(t *testing.T) {
	store := snapshot.New()
	p := newFakePlatform()
	e := New(store, p, nil, Config{Delay: 1500 * time.Millisecond}, discardLogger())

	var slept []time.Duration
	e.sleep = func(d time.Duration) {
		p.mu.Lock()
		calls := p.calls
		p.mu.Unlock()
		if calls != 0 {
			t.Error("invites fetched before the delay")
		}
		slept = append(slept, d)
	}
	e.Join(context.Background(), "g", entity.Member{ID: "m1"})

	if len(slept) != 1 || slept[0] != 1500*time.Millisecond {
		t.Errorf("slept = %v, want [1.5s]", slept)
	}
}

func TestJoin_IgnoresCancelledContext(t *testing.T) {
	store := snapshot.New()
	p := newFakePlatform()
	p.set("g", "A", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestEngine(store, p, nil).Join(ctx, "g", entity.Member{ID: "m1"})
	if res.Code != "A" {
		t.Errorf("result = %+v, want attribution despite cancelled context", res)
	}
}

func TestJoin_SequentialJoinsUseFreshBaselines(t *testing.T) {
	store := snapshot.New()
	store.Replace("g", snap("invite1", 0))
	p := newFakePlatform()
	p.set("g", "invite1", 0)
	e := newTestEngine(store, p, nil)

	p.use("g", "invite1")
	first := e.Join(context.Background(), "g", entity.Member{ID: "memberA"})
	p.use("g", "invite1")
	second := e.Join(context.Background(), "g", entity.Member{ID: "memberB"})

	if first.Member.ID != "memberA" || first.Code != "invite1" || first.InviterID != "owner-invite1" || first.NewUseCount != 1 {
		t.Errorf("first = %+v", first)
	}
	if second.Member.ID != "memberB" || second.Code != "invite1" || second.InviterID != "owner-invite1" || second.NewUseCount != 2 {
		t.Errorf("second = %+v", second)
	}
	if got := store.Get("g")["invite1"].Uses; got != 2 {
		t.Errorf("snapshot uses = %d, want 2", got)
	}
}

func TestJoin_ConcurrentJoinsNeverShareAnIncrement(t *testing.T) {
	const n = 25
	store := snapshot.New()
	p := newFakePlatform()
	initial := entity.Snapshot{}
	codes := make([]string, n)
	for i := 0; i < n; i++ {
		codes[i] = fmt.Sprintf("code%02d", i)
		p.set("g", codes[i], 0)
		initial[codes[i]] = entity.Invite{Code: codes[i]}
		p.use("g", codes[i])
	}
	store.Replace("g", initial)
	e := newTestEngine(store, p, nil)

	results := make([]*entity.Attribution, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Join(context.Background(), "g", entity.Member{ID: fmt.Sprintf("m%d", i)})
		}(i)
	}
	wg.Wait()

	got := make([]string, 0, n)
	for _, r := range results {
		if !r.Known() {
			t.Fatalf("join %s not attributed: %+v", r.Member.ID, r)
		}
		if r.NewUseCount != 1 {
			t.Errorf("join %s: new use count = %d, want 1", r.Member.ID, r.NewUseCount)
		}
		got = append(got, r.Code)
	}
	sort.Strings(got)
	for i := range codes {
		if got[i] != codes[i] {
			t.Fatalf("attributed codes = %v, want each of %v exactly once", got, codes)
		}
	}
}

func TestJoin_GuildsDoNotInterfere(t *testing.T) {
	store := snapshot.New()
	p := newFakePlatform()
	p.set("g1", "A", 1)
	p.set("g2", "A", 0)
	e := newTestEngine(store, p, nil)

	r1 := e.Join(context.Background(), "g1", entity.Member{ID: "m1"})
	r2 := e.Join(context.Background(), "g2", entity.Member{ID: "m2"})

	if r1.Code != "A" {
		t.Errorf("g1 result = %+v", r1)
	}
	if r2.Known() {
		t.Errorf("g2 result = %+v, want unknown", r2)
	}
}

func TestLeave_DoesNotTouchSnapshot(t *testing.T) {
	store := snapshot.New()
	store.Replace("g", snap("A", 3))
	p := newFakePlatform()
	sink := &recordingSink{}

	d := newTestEngine(store, p, sink).Leave(context.Background(), "g", entity.Member{ID: "m1", Username: "bob"})

	if d.GuildID != "g" || d.Member.Username != "bob" {
		t.Errorf("departure = %+v", d)
	}
	if p.calls != 0 {
		t.Errorf("leave fetched invites %d times", p.calls)
	}
	if len(sink.leaves) != 1 {
		t.Errorf("sink got %d leaves", len(sink.leaves))
	}
	if store.Get("g")["A"].Uses != 3 {
		t.Error("snapshot changed on leave")
	}
}

func TestDrain_AttributesInArrivalOrder(t *testing.T) {
	store := snapshot.New()
	store.Replace("g", entity.NewSnapshot([]entity.Invite{{Code: "A"}, {Code: "B"}}))
	p := newFakePlatform()
	p.set("g", "A", 0)
	p.set("g", "B", 0)
	p.use("g", "B")
	p.use("g", "A")
	sink := &recordingSink{}
	e := newTestEngine(store, p, sink)

	if !e.Enqueue("g", entity.Member{ID: "first"}) {
		t.Fatal("first Enqueue() = false, want the caller to drain")
	}
	if e.Enqueue("g", entity.Member{ID: "second"}) {
		t.Fatal("second Enqueue() = true while the queue is owned")
	}

	results := e.Drain(context.Background(), "g")
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Member.ID != "first" || results[0].Code != "B" {
		t.Errorf("first = %+v", results[0])
	}
	if results[1].Member.ID != "second" || results[1].Code != "A" {
		t.Errorf("second = %+v", results[1])
	}
	if len(sink.joins) != 2 || sink.joins[0].Member.ID != "first" {
		t.Errorf("sink order = %+v", sink.joins)
	}
	if !e.Enqueue("g", entity.Member{ID: "third"}) {
		t.Error("Enqueue() after an emptied queue = false")
	}
}

func TestDrain_DelayCountsFromArrival(t *testing.T) {
	store := snapshot.New()
	p := newFakePlatform()
	e := New(store, p, nil, Config{Delay: time.Second}, discardLogger())

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return clock }
	var slept []time.Duration
	e.sleep = func(d time.Duration) { slept = append(slept, d) }

	e.Enqueue("g", entity.Member{ID: "m1"})
	clock = clock.Add(400 * time.Millisecond)
	e.Enqueue("g", entity.Member{ID: "m2"})
	clock = clock.Add(2 * time.Second)

	results := e.Drain(context.Background(), "g")
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if len(slept) != 0 {
		t.Errorf("slept = %v, want none for joins older than the delay", slept)
	}

	e.Enqueue("g", entity.Member{ID: "m3"})
	clock = clock.Add(300 * time.Millisecond)
	e.Drain(context.Background(), "g")
	if len(slept) != 1 || slept[0] != 700*time.Millisecond {
		t.Errorf("slept = %v, want [700ms]", slept)
	}
}

func TestDiscard_DropsQueuedJoins(t *testing.T) {
	e := newTestEngine(snapshot.New(), newFakePlatform(), nil)
	e.Enqueue("g", entity.Member{ID: "m1"})
	e.Enqueue("g", entity.Member{ID: "m2"})

	if n := e.Discard("g"); n != 2 {
		t.Errorf("Discard() = %d, want 2", n)
	}
	if got := e.Drain(context.Background(), "g"); len(got) != 0 {
		t.Errorf("Drain() after Discard = %d results", len(got))
	}
	if !e.Enqueue("g", entity.Member{ID: "m3"}) {
		t.Error("Enqueue() after Discard = false")
	}
}
