package indexer

import (
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/zakhard90/chainlink-price-feed/internal/feed"
	"github.com/zakhard90/chainlink-price-feed/internal/model"
)

func buildRoundUpdate(chainID uint64, log types.Log, answer feed.AnswerUpdated, timestamp uint64, ingestedAt time.Time) model.RoundUpdate {
	var updatedAt uint64
	if answer.UpdatedAt.IsUint64() {
		updatedAt = answer.UpdatedAt.Uint64()
	}
	return model.RoundUpdate{
		ChainID:        chainID,
		Feed:           log.Address.Hex(),
		RoundID:        answer.RoundID.String(),
		Answer:         answer.Current.String(),
		UpdatedAt:      updatedAt,
		BlockNumber:    log.BlockNumber,
		BlockTimestamp: timestamp,
		TxHash:         log.TxHash.Hex(),
		LogIndex:       uint64(log.Index),
		IngestedAt:     ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}
