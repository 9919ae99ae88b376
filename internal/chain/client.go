package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// maxCachedTimestamps bounds the block timestamp cache. Long round scans
// touch one block per answer, so the cache is reset once it fills up.
const maxCachedTimestamps = 4096

// Client is the read-only view of an Ethereum node used by the oracle reader
// and the round scanner.
type Client struct {
	eth *ethclient.Client

	mu         sync.RWMutex
	timestamps map[uint64]uint64
}

// NewClient dials the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return &Client{eth: eth, timestamps: make(map[uint64]uint64)}, nil
}

func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// HeaderByNumber returns a block header. A nil number means latest.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.eth.HeaderByNumber(ctx, number)
}

// BlockTimestamp returns the timestamp of a block, served from cache when
// the block was seen before.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.timestamps[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	if len(c.timestamps) >= maxCachedTimestamps {
		c.timestamps = make(map[uint64]uint64)
	}
	c.timestamps[number] = header.Time
	c.mu.Unlock()
	return header.Time, nil
}

// HasCode reports whether a contract is deployed at address on the latest
// block. A price feed pointing at an empty account answers every eth_call
// with empty data, so callers check this before trusting the address.
func (c *Client) HasCode(ctx context.Context, address common.Address) (bool, error) {
	code, err := c.eth.CodeAt(ctx, address, nil)
	if err != nil {
		return false, fmt.Errorf("code at %s: %w", address.Hex(), err)
	}
	return len(code) > 0, nil
}

// FilterLogs returns logs emitted by address in the inclusive block range,
// restricted to the given topic0 values when any are set.
func (c *Client) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topic0 []common.Hash) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{address},
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	return c.eth.FilterLogs(ctx, query)
}

// CallContract performs an eth_call. A nil block number means latest.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, blockNumber)
}
