package queuedto

import "time"

type Player struct {
	ID                        string     `json:"id"`
	Name                      string     `json:"name"`
	Level                     string     `json:"level"`
	GamesPlayed               int        `json:"gamesPlayed"`
	DonePlaying               bool       `json:"donePlaying"`
	WaitingSince              *time.Time `json:"waitingSince"`
	AccumulatedWaitingSeconds int64      `json:"accumulatedWaitingSeconds"`
	WaitSeconds               int64      `json:"waitSeconds"`
	Status                    string     `json:"status"`
	MatchID                   string     `json:"matchId,omitempty"`
	Team                      int        `json:"team,omitempty"`
}

type Slot struct {
	PlayerID    string `json:"playerId"`
	Name        string `json:"name"`
	Level       string `json:"level"`
	Team        int    `json:"team"`
	GamesPlayed int    `json:"gamesPlayed"`
	DonePlaying bool   `json:"donePlaying"`
}

type Match struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Slots     []Slot     `json:"slots"`
}

type Placement struct {
	MatchID string `json:"matchId"`
	Team    int    `json:"team"`
	Created bool   `json:"created"`
	Slots   []Slot `json:"slots"`
}

type PlayerSnapshot struct {
	ID                        string     `json:"id"`
	GamesPlayed               int        `json:"gamesPlayed"`
	WaitingSince              *time.Time `json:"waitingSince"`
	AccumulatedWaitingSeconds int64      `json:"accumulatedWaitingSeconds"`
}

type FinishResponse struct {
	Match   Match            `json:"match"`
	Players []PlayerSnapshot `json:"players"`
}

type HistoryEntry struct {
	MatchID   string     `json:"matchId"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Team      int        `json:"team"`
	Teammates []string   `json:"teammates"`
	Opponents []string   `json:"opponents"`
}

type MatchSummary struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	TeamOne   []string   `json:"teamOne"`
	TeamTwo   []string   `json:"teamTwo"`
}

type Payment struct {
	ID          string    `json:"id"`
	PlayerID    string    `json:"playerId"`
	PlayerName  string    `json:"playerName"`
	Method      string    `json:"method"`
	AmountCents int64     `json:"amountCents"`
	Timestamp   time.Time `json:"timestamp"`
}

type PaymentList struct {
	Payments []Payment        `json:"payments"`
	Totals   map[string]int64 `json:"totals"`
	Total    int64            `json:"total"`
}
