package domain

import (
	"strings"
	"time"
)

// Level is a player's skill bracket.
type Level string

const (
	LevelA Level = "A"
	LevelB Level = "B"
	LevelC Level = "C"
	LevelD Level = "D"
)

// ParseLevel normalises user input ("b", " B ") into a Level.
func ParseLevel(s string) (Level, bool) {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelA:
		return LevelA, true
	case LevelB:
		return LevelB, true
	case LevelC:
		return LevelC, true
	case LevelD:
		return LevelD, true
	default:
		return "", false
	}
}

type Player struct {
	ID                        string
	Name                      string
	Level                     Level
	GamesPlayed               int
	DonePlaying               bool
	WaitingSince              *time.Time
	AccumulatedWaitingSeconds int64
	CreatedAt                 time.Time
}

// Clone returns a deep copy so callers never share the WaitingSince pointer.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	if p.WaitingSince != nil {
		t := *p.WaitingSince
		c.WaitingSince = &t
	}
	return &c
}

// MatchStatus is the lifecycle state of a match.
type MatchStatus string

const (
	MatchQueued   MatchStatus = "queued"
	MatchOngoing  MatchStatus = "ongoing"
	MatchFinished MatchStatus = "finished"
)

// Active reports whether slots in a match with this status count towards the
// one-active-match-per-player rule.
func (s MatchStatus) Active() bool { return s == MatchQueued || s == MatchOngoing }

const (
	MatchCapacity = 4
	TeamOne       = 1
	TeamTwo       = 2
)

type Match struct {
	ID        string
	Status    MatchStatus
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Slots     []Slot // ordered by Seq
}

// Slot binds one player to one team of one match.
type Slot struct {
	MatchID  string
	PlayerID string
	Team     int
	Seq      int
	JoinedAt time.Time
}

// Clone returns a deep copy of the match including its slots.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	if m.StartedAt != nil {
		t := *m.StartedAt
		c.StartedAt = &t
	}
	if m.EndedAt != nil {
		t := *m.EndedAt
		c.EndedAt = &t
	}
	c.Slots = append([]Slot(nil), m.Slots...)
	return &c
}

// SlotOf returns the slot held by playerID, if any.
func (m *Match) SlotOf(playerID string) (Slot, bool) {
	for _, s := range m.Slots {
		if s.PlayerID == playerID {
			return s, true
		}
	}
	return Slot{}, false
}

// ParticipationKind tags the Participation variant.
type ParticipationKind string

const (
	Idle    ParticipationKind = "idle"
	Waiting ParticipationKind = "waiting"
	InMatch ParticipationKind = "in_match"
	Done    ParticipationKind = "done"
)

// Participation is where a player currently stands in the rotation.
// MatchID and Team are only meaningful for InMatch.
type Participation struct {
	Kind    ParticipationKind
	MatchID string
	Team    int
}

func IdleParticipation() Participation    { return Participation{Kind: Idle} }
func WaitingParticipation() Participation { return Participation{Kind: Waiting} }
func DoneParticipation() Participation    { return Participation{Kind: Done} }

func InMatchParticipation(matchID string, team int) Participation {
	return Participation{Kind: InMatch, MatchID: matchID, Team: team}
}

// ParticipationOf derives the variant from the persisted player and its active
// slot (nil when the player holds none).
func ParticipationOf(p *Player, active *Slot) Participation {
	switch {
	case active != nil:
		return InMatchParticipation(active.MatchID, active.Team)
	case p == nil:
		return IdleParticipation()
	case p.DonePlaying:
		return DoneParticipation()
	case p.WaitingSince != nil:
		return WaitingParticipation()
	default:
		return IdleParticipation()
	}
}

// PaymentMethod is how a player settled court fees.
type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "cash"
	PaymentGCash PaymentMethod = "gcash"
)

func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch PaymentMethod(strings.ToLower(strings.TrimSpace(s))) {
	case PaymentCash:
		return PaymentCash, true
	case PaymentGCash:
		return PaymentGCash, true
	default:
		return "", false
	}
}

type Payment struct {
	ID          string
	PlayerID    string
	PlayerName  string
	Method      PaymentMethod
	AmountCents int64
	Timestamp   time.Time
}
