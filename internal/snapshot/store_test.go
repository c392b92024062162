package snapshot

import (
	"invitetrack/entity"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestReplaceAndGet(t *testing.T) {
	st := New()
	live := entity.NewSnapshot([]entity.Invite{
		{Code: "A", Uses: 5, InviterID: "u1"},
		{Code: "B", Uses: 3, InviterID: "u2"},
	})
	st.Replace("g1", live)

	got := st.Get("g1")
	if !reflect.DeepEqual(got, live) {
		t.Errorf("Get() = %+v, want %+v", got, live)
	}
}

func TestGet_UnknownIsEmpty(t *testing.T) {
	st := New()
	got := st.Get("nope")
	if got == nil {
		t.Fatal("Get() returned nil map")
	}
	if len(got) != 0 {
		t.Errorf("Get() = %+v, want empty", got)
	}
}

func TestReplace_CopiesInput(t *testing.T) {
	st := New()
	live := entity.NewSnapshot([]entity.Invite{{Code: "A", Uses: 1}})
	st.Replace("g1", live)

	live["A"] = entity.Invite{Code: "A", Uses: 99}
	if got := st.Get("g1")["A"].Uses; got != 1 {
		t.Errorf("stored snapshot changed through caller map: uses = %d", got)
	}

	out := st.Get("g1")
	out["B"] = entity.Invite{Code: "B"}
	if _, ok := st.Get("g1")["B"]; ok {
		t.Error("stored snapshot changed through Get() result")
	}
}

func TestReplace_DropsVanishedCodes(t *testing.T) {
	st := New()
	st.Replace("g1", entity.NewSnapshot([]entity.Invite{{Code: "A"}, {Code: "B"}}))
	st.Replace("g1", entity.NewSnapshot([]entity.Invite{{Code: "B", Uses: 1}}))

	got := st.Get("g1")
	if _, ok := got["A"]; ok {
		t.Error("code A survived a replace without it")
	}
	if got["B"].Uses != 1 {
		t.Errorf("B uses = %d, want 1", got["B"].Uses)
	}
}

func TestForgetAndCommunities(t *testing.T) {
	st := New()
	st.Replace("g2", entity.Snapshot{})
	st.Replace("g1", entity.Snapshot{})
	if got := st.Communities(); !reflect.DeepEqual(got, []string{"g1", "g2"}) {
		t.Errorf("Communities() = %v", got)
	}
	st.Forget("g2")
	if got := st.Communities(); !reflect.DeepEqual(got, []string{"g1"}) {
		t.Errorf("Communities() after Forget = %v", got)
	}
}

func TestLock_SerializesOneGuild(t *testing.T) {
	st := New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := st.Lock("g1")
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
}

func TestLock_GuildsAreIndependent(t *testing.T) {
	st := New()
	unlock := st.Lock("g1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		u := st.Lock("g2")
		u()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on g2 blocked by g1")
	}
}
