package feed

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zakhard90/chainlink-price-feed/internal/model"
)

// Mock is an in-process settable feed.
type Mock struct {
	address common.Address

	mu    sync.RWMutex
	round model.RoundData
	err   error
}

// NewMock returns a feed that has never reported.
func NewMock(address common.Address) *Mock {
	return &Mock{
		address: address,
		round: model.RoundData{
			RoundID:         big.NewInt(0),
			Answer:          big.NewInt(0),
			StartedAt:       big.NewInt(0),
			UpdatedAt:       big.NewInt(0),
			AnsweredInRound: big.NewInt(0),
		},
	}
}

// Address returns the feed identity.
func (m *Mock) Address() common.Address {
	return m.address
}

func (m *Mock) LatestRoundData(ctx context.Context) (model.RoundData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return model.RoundData{}, m.err
	}
	return m.round.Clone(), nil
}

func (m *Mock) SetPrice(price *big.Int) {
	m.mu.Lock()
	m.round.Answer = new(big.Int).Set(price)
	m.mu.Unlock()
}

func (m *Mock) SetUpdateTime(ts uint64) {
	m.mu.Lock()
	m.round.UpdatedAt = new(big.Int).SetUint64(ts)
	m.round.StartedAt = new(big.Int).SetUint64(ts)
	m.mu.Unlock()
}

func (m *Mock) SetRoundID(id uint64) {
	m.mu.Lock()
	m.round.RoundID = new(big.Int).SetUint64(id)
	m.mu.Unlock()
}

func (m *Mock) SetAnsweredInRound(id uint64) {
	m.mu.Lock()
	m.round.AnsweredInRound = new(big.Int).SetUint64(id)
	m.mu.Unlock()
}

// SetRound replaces the whole reading.
func (m *Mock) SetRound(round model.RoundData) {
	m.mu.Lock()
	m.round = round.Clone()
	m.mu.Unlock()
}

// SetError makes subsequent reads fail with err until cleared with nil.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}
