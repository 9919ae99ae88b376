package feed

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/zakhard90/chainlink-price-feed/internal/chain"
	"github.com/zakhard90/chainlink-price-feed/internal/model"
)

// Caller performs read-only contract calls. *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainlinkConfig tunes transport retries.
type ChainlinkConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// Chainlink reads an AggregatorV3 price feed over JSON-RPC.
type Chainlink struct {
	caller  Caller
	address common.Address
	abi     abi.ABI
	cfg     ChainlinkConfig
	logger  *zap.Logger
}

// NewChainlink binds a reader to the aggregator at address.
func NewChainlink(caller Caller, address common.Address, cfg ChainlinkConfig, logger *zap.Logger) (*Chainlink, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	parsed, err := AggregatorV3ABI()
	if err != nil {
		return nil, fmt.Errorf("parse aggregator abi: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chainlink{
		caller:  caller,
		address: address,
		abi:     parsed,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Address returns the aggregator contract address.
func (c *Chainlink) Address() common.Address {
	return c.address
}

// LatestRoundData returns the raw reading, unvalidated.
func (c *Chainlink) LatestRoundData(ctx context.Context) (model.RoundData, error) {
	values, err := c.call(ctx, "latestRoundData")
	if err != nil {
		return model.RoundData{}, err
	}
	if len(values) != 5 {
		return model.RoundData{}, fmt.Errorf("latestRoundData return size %d", len(values))
	}

	ints := make([]*big.Int, 0, len(values))
	for i, value := range values {
		v, ok := value.(*big.Int)
		if !ok {
			return model.RoundData{}, fmt.Errorf("latestRoundData field %d unexpected type %T", i, value)
		}
		ints = append(ints, v)
	}

	return model.RoundData{
		RoundID:         ints[0],
		Answer:          ints[1],
		StartedAt:       ints[2],
		UpdatedAt:       ints[3],
		AnsweredInRound: ints[4],
	}, nil
}

// Decimals returns the number of implied decimals of the answer.
func (c *Chainlink) Decimals(ctx context.Context) (uint8, error) {
	values, err := c.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals unexpected type %T", values[0])
	}
	return decimals, nil
}

// Description returns the feed pair label, e.g. "ETH / USD".
func (c *Chainlink) Description(ctx context.Context) (string, error) {
	values, err := c.call(ctx, "description")
	if err != nil {
		return "", err
	}
	description, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("description unexpected type %T", values[0])
	}
	return description, nil
}

func (c *Chainlink) call(ctx context.Context, method string) ([]interface{}, error) {
	data, err := c.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &c.address, Data: data}

	var resp []byte
	backoff := chain.Backoff{Retries: c.cfg.MaxRetries, Base: c.cfg.RetryBackoff}
	err = backoff.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.caller.CallContract(ctx, msg, nil)
		if err == nil {
			return nil
		}
		c.logger.Warn("feed call failed", zap.String("method", method), zap.String("feed", c.address.Hex()), zap.Error(err))
		if isRevert(err) {
			return chain.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := c.abi.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

// revertCode is the JSON-RPC error code nodes use for a reverted eth_call.
const revertCode = 3

// isRevert reports whether the aggregator itself rejected the call. Asking
// again returns the same answer, so it is not retried.
func isRevert(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertCode {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}
