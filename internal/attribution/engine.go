// Package attribution infers which invite brought a new member into a guild.
//
// The platform does not say which invite was used, so on every join the engine
// fetches the live invite list and compares use counters with the snapshot taken
// after the previous join (or at startup). The whole fetch, diff and replace runs
// inside the guild's exclusive section of the snapshot store. Joins queued with
// Enqueue are attributed in arrival order per guild.
package attribution

import (
	"context"
	"invitetrack/entity"
	"invitetrack/internal/snapshot"
	"invitetrack/lib/sl"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultDelay        = time.Second
	DefaultFetchTimeout = 10 * time.Second
)

// Platform lists the live invites of a guild.
type Platform interface {
	GuildInvites(ctx context.Context, guildID string) ([]entity.Invite, error)
}

// Sink receives every attribution and departure. Implementations own formatting and
// delivery; a failing sink never changes the attribution.
type Sink interface {
	Joined(ctx context.Context, a *entity.Attribution) error
	Left(ctx context.Context, d *entity.Departure) error
}

type Config struct {
	// Delay before fetching invites; the platform's counters lag the join event.
	Delay        time.Duration
	FetchTimeout time.Duration
}

type Engine struct {
	store    *snapshot.Store
	platform Platform
	sink     Sink
	conf     Config
	log      *slog.Logger
	sleep    func(time.Duration)
	now      func() time.Time

	mu     sync.Mutex
	queues map[string]*joinQueue
}

type queuedJoin struct {
	member  entity.Member
	arrived time.Time
}

// joinQueue holds the joins of one guild in arrival order. draining is set while a
// Drain call owns the queue.
type joinQueue struct {
	joins    []queuedJoin
	draining bool
}

func New(store *snapshot.Store, platform Platform, sink Sink, conf Config, log *slog.Logger) *Engine {
	if store == nil {
		panic("snapshot store is nil")
	}
	if conf.Delay < 0 {
		conf.Delay = 0
	}
	if conf.FetchTimeout <= 0 {
		conf.FetchTimeout = DefaultFetchTimeout
	}
	return &Engine{
		store:    store,
		platform: platform,
		sink:     sink,
		conf:     conf,
		log:      log.With(sl.Module("attribution")),
		sleep:    time.Sleep,
		now:      time.Now,
		queues:   make(map[string]*joinQueue),
	}
}

// Join resolves the inviter of a member who just joined guildID. It always returns a
// result; when nothing can be traced the result has no code and Reason is set.
// Cancelling ctx does not abort a join already in progress.
func (e *Engine) Join(ctx context.Context, guildID string, member entity.Member) *entity.Attribution {
	return e.join(ctx, guildID, member, e.now(), e.conf.Delay)
}

// Enqueue records a join of guildID in arrival order. It returns true when no Drain
// owns the guild's queue; the caller must then run Drain for it.
func (e *Engine) Enqueue(guildID string, member entity.Member) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	q := e.queues[guildID]
	if q == nil {
		q = &joinQueue{}
		e.queues[guildID] = q
	}
	q.joins = append(q.joins, queuedJoin{member: member, arrived: e.now()})
	if q.draining {
		return false
	}
	q.draining = true
	return true
}

// Drain attributes the queued joins of guildID one after another, oldest first,
// until the queue is empty. Joins that arrive meanwhile are picked up by the same
// call. The delay is counted from each join's arrival, so a join that waited in the
// queue does not wait again.
func (e *Engine) Drain(ctx context.Context, guildID string) []*entity.Attribution {
	var results []*entity.Attribution
	finished := false
	defer func() {
		if !finished {
			// a panicking join releases the queue so the next Enqueue starts a new Drain
			e.mu.Lock()
			if q := e.queues[guildID]; q != nil {
				q.draining = false
			}
			e.mu.Unlock()
		}
	}()
	for {
		next, ok := e.next(guildID)
		if !ok {
			finished = true
			return results
		}
		delay := e.conf.Delay - e.now().Sub(next.arrived)
		results = append(results, e.join(ctx, guildID, next.member, next.arrived, delay))
	}
}

// Discard drops the queued joins of guildID, for when no Drain could be started.
func (e *Engine) Discard(guildID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	q := e.queues[guildID]
	delete(e.queues, guildID)
	if q == nil {
		return 0
	}
	e.log.With(sl.Guild(guildID), slog.Int("joins", len(q.joins))).Warn("queued joins dropped")
	return len(q.joins)
}

func (e *Engine) next(guildID string) (queuedJoin, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q := e.queues[guildID]
	if q == nil {
		return queuedJoin{}, false
	}
	if len(q.joins) == 0 {
		delete(e.queues, guildID)
		return queuedJoin{}, false
	}
	j := q.joins[0]
	q.joins = q.joins[1:]
	return j, true
}

func (e *Engine) join(ctx context.Context, guildID string, member entity.Member, joinedAt time.Time, delay time.Duration) *entity.Attribution {
	ctx = context.WithoutCancel(ctx)
	log := e.log.With(sl.Guild(guildID), sl.Member(member.ID))

	result := &entity.Attribution{
		ID:       uuid.NewString(),
		GuildID:  guildID,
		Member:   member,
		JoinedAt: joinedAt,
	}

	if delay > 0 {
		e.sleep(delay)
	}

	e.attribute(ctx, log, result)

	if result.Known() {
		log.With(
			slog.String("code", result.Code),
			slog.String("inviter_id", result.InviterID),
			slog.Int("uses", result.NewUseCount),
			slog.Int("candidates", result.Candidates),
		).Info("join attributed")
	} else {
		log.With(slog.String("reason", result.Reason)).Info("join not attributed")
	}

	if e.sink != nil {
		if err := e.sink.Joined(ctx, result); err != nil {
			log.Warn("delivering join notification", sl.Err(err))
		}
	}
	return result
}

func (e *Engine) attribute(ctx context.Context, log *slog.Logger, result *entity.Attribution) {
	unlock := e.store.Lock(result.GuildID)
	defer unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, e.conf.FetchTimeout)
	invites, err := e.platform.GuildInvites(fetchCtx, result.GuildID)
	cancel()
	if err != nil {
		// keep the old snapshot; the next successful join diffs against it
		log.Warn("fetching invites", sl.Err(err))
		result.Reason = entity.ReasonFetchFailed
		return
	}

	live := entity.NewSnapshot(invites)
	match, ok := Resolve(e.store.Get(result.GuildID), live)
	e.store.Replace(result.GuildID, live)

	result.Candidates = match.Candidates
	if !ok {
		result.Reason = entity.ReasonNoCandidate
		return
	}
	result.Code = match.Invite.Code
	result.InviterID = match.Invite.InviterID
	result.InviterName = match.Invite.InviterName
	result.NewUseCount = match.Invite.Uses
}

// Leave forwards a departure to the sink. Leaving does not change any use counter,
// so the snapshot is left alone.
func (e *Engine) Leave(ctx context.Context, guildID string, member entity.Member) *entity.Departure {
	d := &entity.Departure{
		GuildID: guildID,
		Member:  member,
		LeftAt:  e.now(),
	}
	e.log.With(sl.Guild(guildID), sl.Member(member.ID)).Debug("member left")
	if e.sink != nil {
		if err := e.sink.Left(context.WithoutCancel(ctx), d); err != nil {
			e.log.With(sl.Guild(guildID)).Warn("delivering leave notification", sl.Err(err))
		}
	}
	return d
}
