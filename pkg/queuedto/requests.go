package queuedto

type EnqueueRequest struct {
	PlayerID string `json:"playerId"`
}

type MatchRequest struct {
	MatchID string `json:"matchId"`
}

type AddPlayerRequest struct {
	Name  string `json:"name"`
	Level string `json:"level"`
}

type PaymentRequest struct {
	PlayerID    string `json:"playerId"`
	Method      string `json:"method"`
	AmountCents int64  `json:"amountCents"`
}
