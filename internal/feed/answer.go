package feed

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// AnswerUpdated is a decoded aggregator AnswerUpdated log.
type AnswerUpdated struct {
	Current   *big.Int
	RoundID   *big.Int
	UpdatedAt *big.Int
}

// AnswerUpdatedTopic returns topic0 of the AnswerUpdated event.
func AnswerUpdatedTopic() (common.Hash, error) {
	parsed, err := AggregatorV3ABI()
	if err != nil {
		return common.Hash{}, err
	}
	return parsed.Events["AnswerUpdated"].ID, nil
}

// DecodeAnswerUpdated decodes an AnswerUpdated log.
func DecodeAnswerUpdated(log types.Log) (AnswerUpdated, error) {
	parsed, err := AggregatorV3ABI()
	if err != nil {
		return AnswerUpdated{}, fmt.Errorf("parse aggregator abi: %w", err)
	}
	event := parsed.Events["AnswerUpdated"]
	if len(log.Topics) != 3 || log.Topics[0] != event.ID {
		return AnswerUpdated{}, fmt.Errorf("not an AnswerUpdated log")
	}

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	fields := make(map[string]interface{})
	if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
		return AnswerUpdated{}, fmt.Errorf("parse topics: %w", err)
	}
	if err := event.Inputs.UnpackIntoMap(fields, log.Data); err != nil {
		return AnswerUpdated{}, fmt.Errorf("unpack data: %w", err)
	}

	current, ok1 := fields["current"].(*big.Int)
	roundID, ok2 := fields["roundId"].(*big.Int)
	updatedAt, ok3 := fields["updatedAt"].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return AnswerUpdated{}, fmt.Errorf("AnswerUpdated: unexpected field types")
	}
	return AnswerUpdated{Current: current, RoundID: roundID, UpdatedAt: updatedAt}, nil
}
