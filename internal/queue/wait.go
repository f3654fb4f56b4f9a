package queue

import (
	"sort"
	"time"

	"github.com/park285/court-queue/internal/domain"
)

// WaitSeconds is the player's live waiting time: the carried-over seconds plus
// whole seconds elapsed since WaitingSince. The second result is false when
// the player has no running waiting session.
func WaitSeconds(p *domain.Player, now time.Time) (int64, bool) {
	if p == nil || p.WaitingSince == nil {
		return 0, false
	}
	live := int64(now.Sub(*p.WaitingSince) / time.Second)
	if live < 0 {
		live = 0
	}
	return p.AccumulatedWaitingSeconds + live, true
}

// PoolEntry is one row of the idle pool ordering.
type PoolEntry struct {
	Player        *domain.Player
	WaitSeconds   int64
	Waiting       bool
	Participation domain.Participation
}

// SortIdlePool orders active players before done ones, longest wait first,
// then by id.
func SortIdlePool(entries []PoolEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Player.DonePlaying != b.Player.DonePlaying {
			return !a.Player.DonePlaying
		}
		if a.WaitSeconds != b.WaitSeconds {
			return a.WaitSeconds > b.WaitSeconds
		}
		return a.Player.ID < b.Player.ID
	})
}
