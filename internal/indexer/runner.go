package indexer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/zakhard90/chainlink-price-feed/internal/chain"
	"github.com/zakhard90/chainlink-price-feed/internal/feed"
	"github.com/zakhard90/chainlink-price-feed/internal/model"
)

// ChainReader is the subset of *chain.Client the runner needs.
type ChainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// RoundStorage receives decoded aggregator rounds.
type RoundStorage interface {
	PutRoundBatch(ctx context.Context, rounds []model.RoundUpdate) error
}

// RunConfig holds runtime settings for the round indexer.
type RunConfig struct {
	Feed              common.Address
	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Runner scans an aggregator's AnswerUpdated logs and stores the rounds.
type Runner struct {
	cfg        RunConfig
	chain      ChainReader
	storage    RoundStorage
	logger     *zap.Logger
	now        func() time.Time
	seen       map[string]struct{}
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, chainClient ChainReader, storageSink RoundStorage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		chain:      chainClient,
		storage:    storageSink,
		logger:     logger,
		now:        time.Now,
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the indexing loop and returns the number of stored rounds.
func (r *Runner) Run(ctx context.Context) (int, error) {
	if r.chain == nil {
		return 0, fmt.Errorf("chain client is nil")
	}
	if r.storage == nil {
		return 0, fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return 0, fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.Feed == (common.Address{}) {
		return 0, fmt.Errorf("feed address is required")
	}

	topic, err := feed.AnswerUpdatedTopic()
	if err != nil {
		return 0, fmt.Errorf("answer updated topic: %w", err)
	}

	chainID, err := r.chain.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return 0, fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.chain.LatestBlockNumber(ctx)
		if err != nil {
			return 0, fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return 0, err
	}
	if ok {
		if err := cp.Matches(chainID.Uint64(), r.cfg.Feed); err != nil {
			return 0, err
		}
		if cp.LastProcessedBlock >= from {
			from = cp.LastProcessedBlock + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
		}
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return 0, nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return stored, ctx.Err()
		default:
		}

		r.logger.Info("fetch rounds", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To, topic)
		if err != nil {
			return stored, fmt.Errorf("filter logs: %w", err)
		}

		ingestedAt := r.now().UTC()
		rounds := make([]model.RoundUpdate, 0, len(logs))
		for _, log := range logs {
			if log.Removed || r.isDuplicate(log) {
				continue
			}
			answer, err := feed.DecodeAnswerUpdated(log)
			if err != nil {
				r.logger.Warn("skip undecodable log", zap.String("tx_hash", log.TxHash.Hex()), zap.Uint("log_index", log.Index), zap.Error(err))
				continue
			}
			ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return stored, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			rounds = append(rounds, buildRoundUpdate(chainID.Uint64(), log, answer, ts, ingestedAt))
		}

		if err := r.storage.PutRoundBatch(ctx, rounds); err != nil {
			return stored, fmt.Errorf("store rounds: %w", err)
		}
		stored += len(rounds)

		cp.ChainID = chainID.Uint64()
		cp.Feed = r.cfg.Feed.Hex()
		cp.LastProcessedBlock = blockRange.To
		cp.Rounds += uint64(len(rounds))
		if len(rounds) > 0 {
			cp.LastRoundID = rounds[len(rounds)-1].RoundID
		}
		if err := r.checkpoint.Save(cp); err != nil {
			return stored, err
		}

		r.logger.Info("batch complete", zap.Int("rounds", len(rounds)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return stored, nil
}

func (r *Runner) backoff() chain.Backoff {
	return chain.Backoff{Retries: r.cfg.MaxRetries, Base: r.cfg.RetryBackoff}
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64, topic common.Hash) ([]types.Log, error) {
	var logs []types.Log
	err := r.backoff().Do(ctx, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, r.cfg.Feed, []common.Hash{topic})
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := r.backoff().Do(ctx, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
