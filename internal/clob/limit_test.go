package clob

import (
	"math/big"
	"testing"
)

func TestComputeLimitOrderAmounts_Buy(t *testing.T) {
	priceScale := big.NewInt(100)     // tick=0.01
	priceTicks := big.NewInt(37)      // $0.37
	sizeUnits := big.NewInt(10_000_000) // 10 shares

	makerOut, takerOut, err := computeLimitOrderAmounts(SideBuy, sizeUnits, priceTicks, priceScale)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// BUY: taker = 10 shares, maker = 10 * $0.37 = $3.70.
	if takerOut.Cmp(big.NewInt(10_000_000)) != 0 {
		t.Fatalf("taker mismatch: got %s want 10000000", takerOut.String())
	}
	if makerOut.Cmp(big.NewInt(3_700_000)) != 0 {
		t.Fatalf("maker mismatch: got %s want 3700000", makerOut.String())
	}
}

func TestComputeLimitOrderAmounts_SellRoundsSharesDown(t *testing.T) {
	priceScale := big.NewInt(100)
	priceTicks := big.NewInt(37)
	sizeUnits := big.NewInt(9_876_543) // 9.876543 shares

	makerOut, takerOut, err := computeLimitOrderAmounts(SideSell, sizeUnits, priceTicks, priceScale)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// SELL maker = shares floored to 2dp = 9.87; never exceeds inventory.
	if makerOut.Cmp(big.NewInt(9_870_000)) != 0 {
		t.Fatalf("maker mismatch: got %s want 9870000", makerOut.String())
	}
	// taker = 9.87 * $0.37 = $3.6519 exactly.
	if takerOut.Cmp(big.NewInt(3_651_900)) != 0 {
		t.Fatalf("taker mismatch: got %s want 3651900", takerOut.String())
	}
}

func TestComputeLimitOrderAmounts_FineTick(t *testing.T) {
	priceScale := big.NewInt(1_000) // tick=0.001
	priceTicks := big.NewInt(512)   // $0.512
	sizeUnits := big.NewInt(5_000_000)

	makerOut, takerOut, err := computeLimitOrderAmounts(SideSell, sizeUnits, priceTicks, priceScale)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if makerOut.Cmp(big.NewInt(5_000_000)) != 0 {
		t.Fatalf("maker mismatch: got %s", makerOut.String())
	}
	// 5 * $0.512 = $2.56
	if takerOut.Cmp(big.NewInt(2_560_000)) != 0 {
		t.Fatalf("taker mismatch: got %s", takerOut.String())
	}
}

func TestComputeLimitOrderAmounts_RejectsZero(t *testing.T) {
	priceScale := big.NewInt(100)
	if _, _, err := computeLimitOrderAmounts(SideBuy, big.NewInt(0), big.NewInt(37), priceScale); err == nil {
		t.Fatal("expected error for zero size")
	}
	if _, _, err := computeLimitOrderAmounts(SideBuy, big.NewInt(1_000_000), big.NewInt(0), priceScale); err == nil {
		t.Fatal("expected error for zero price")
	}
	// Dust below 2dp share precision rounds to nothing.
	if _, _, err := computeLimitOrderAmounts(SideSell, big.NewInt(9_999), big.NewInt(37), priceScale); err == nil {
		t.Fatal("expected error for dust size")
	}
}
