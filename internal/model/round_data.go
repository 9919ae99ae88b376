package model

import "math/big"

// RoundData is a single AggregatorV3 latestRoundData reading.
// Answer carries the feed's implied decimals (8 for USD pairs).
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

// Clone returns a deep copy of the reading.
func (r RoundData) Clone() RoundData {
	return RoundData{
		RoundID:         cloneInt(r.RoundID),
		Answer:          cloneInt(r.Answer),
		StartedAt:       cloneInt(r.StartedAt),
		UpdatedAt:       cloneInt(r.UpdatedAt),
		AnsweredInRound: cloneInt(r.AnsweredInRound),
	}
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// RoundUpdate is one AnswerUpdated log of an aggregator, with chain position.
type RoundUpdate struct {
	ChainID        uint64 `json:"chain_id"`
	Feed           string `json:"feed"`
	RoundID        string `json:"round_id"`
	Answer         string `json:"answer"`
	UpdatedAt      uint64 `json:"updated_at"`
	BlockNumber    uint64 `json:"block_number"`
	BlockTimestamp uint64 `json:"block_timestamp"`
	TxHash         string `json:"tx_hash"`
	LogIndex       uint64 `json:"log_index"`
	IngestedAt     string `json:"ingested_at"`
}
