package indexer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Checkpoint records how far the scan of one aggregator has progressed.
type Checkpoint struct {
	ChainID            uint64 `json:"chain_id"`
	Feed               string `json:"feed"`
	LastProcessedBlock uint64 `json:"last_processed_block"`
	LastRoundID        string `json:"last_round_id,omitempty"`
	Rounds             uint64 `json:"rounds"`
	UpdatedAt          string `json:"updated_at"`
}

// Matches returns an error when the checkpoint was written for another chain
// or aggregator. Checkpoints without an identity match anything.
func (cp Checkpoint) Matches(chainID uint64, feed common.Address) error {
	if cp.ChainID != 0 && cp.ChainID != chainID {
		return fmt.Errorf("checkpoint belongs to chain %d, not %d", cp.ChainID, chainID)
	}
	if cp.Feed != "" && common.HexToAddress(cp.Feed) != feed {
		return fmt.Errorf("checkpoint belongs to feed %s", cp.Feed)
	}
	return nil
}

// CheckpointStore keeps a checkpoint in a JSON file. A disabled store, or one
// without a path, never loads or saves anything.
type CheckpointStore struct {
	path    string
	enabled bool
	now     func() time.Time
}

func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	return &CheckpointStore{path: path, enabled: enabled && path != "", now: time.Now}
}

func (c *CheckpointStore) Load() (Checkpoint, bool, error) {
	if !c.enabled {
		return Checkpoint{}, false, nil
	}
	data, err := os.ReadFile(c.path)
	switch {
	case os.IsNotExist(err):
		return Checkpoint{}, false, nil
	case err != nil:
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("parse checkpoint %s: %w", c.path, err)
	}
	return cp, true, nil
}

// Save stamps cp with the current time and replaces the file atomically.
func (c *CheckpointStore) Save(cp Checkpoint) error {
	if !c.enabled {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	cp.UpdatedAt = c.now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return os.Rename(tmp, c.path)
}
