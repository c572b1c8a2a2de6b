package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint persists the strategy state that must survive a restart:
// the open position and the escalated drop threshold.
type Checkpoint struct {
	TokenID string `json:"token_id"`

	EntryPrice   float64 `json:"entry_price"`
	PositionSize float64 `json:"position_size"`
	DropPct      float64 `json:"drop_pct"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Matches reports whether the checkpoint belongs to the given token. A
// stale checkpoint from another market must never seed a restart.
func (c Checkpoint) Matches(tokenID string) bool {
	return c.TokenID != "" && c.TokenID == tokenID
}

func LoadCheckpoint(path string) (Checkpoint, bool, error) {
	if path == "" {
		return Checkpoint{}, false, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, err
	}

	var ckpt Checkpoint
	if err := json.Unmarshal(b, &ckpt); err != nil {
		return Checkpoint{}, false, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	return ckpt, true, nil
}

func SaveCheckpoint(path string, ckpt Checkpoint) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if ckpt.UpdatedAt.IsZero() {
		ckpt.UpdatedAt = time.Now().UTC()
	}

	b, err := json.MarshalIndent(ckpt, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
