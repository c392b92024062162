package attribution

import "invitetrack/entity"

// Match is the invite chosen for a join.
type Match struct {
	Invite     entity.Invite
	Delta      int
	Candidates int // invites whose counter grew since the previous snapshot
}

// Resolve compares the previous snapshot with the live one and picks the invite
// that was used.
//
// A code missing from prev starts from zero. A counter lower than before means the
// code was deleted and recreated, so it also starts from zero instead of producing a
// negative delta. When several invites grew, the lowest code in byte order wins, so
// the answer never depends on the order the platform listed them in.
func Resolve(prev, live entity.Snapshot) (Match, bool) {
	var m Match
	found := false
	for _, code := range live.Codes() {
		inv := live[code]
		base := 0
		if old, ok := prev[code]; ok && old.Uses <= inv.Uses {
			base = old.Uses
		}
		delta := inv.Uses - base
		if delta <= 0 {
			continue
		}
		m.Candidates++
		if !found {
			m.Invite = inv
			m.Delta = delta
			found = true
		}
	}
	return m, found
}
