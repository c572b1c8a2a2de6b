package state

import (
	"path/filepath"
	"testing"
)

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt", "volmaker.json")

	if _, ok, err := LoadCheckpoint(path); err != nil || ok {
		t.Fatalf("missing checkpoint should load empty: ok=%v err=%v", ok, err)
	}

	in := Checkpoint{
		TokenID:      "111",
		EntryPrice:   0.42,
		PositionSize: 25.5,
		DropPct:      0.07,
	}
	if err := SaveCheckpoint(path, in); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	out, ok, err := LoadCheckpoint(path)
	if err != nil || !ok {
		t.Fatalf("LoadCheckpoint: ok=%v err=%v", ok, err)
	}
	if out.TokenID != in.TokenID || out.EntryPrice != in.EntryPrice || out.PositionSize != in.PositionSize || out.DropPct != in.DropPct {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if out.UpdatedAt.IsZero() {
		t.Fatalf("UpdatedAt should be stamped on save")
	}

	if !out.Matches("111") {
		t.Fatalf("checkpoint should match its own token")
	}
	if out.Matches("222") {
		t.Fatalf("checkpoint must not match another token")
	}
}
