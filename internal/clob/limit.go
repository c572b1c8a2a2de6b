package clob

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	ordermodel "github.com/polymarket/go-order-utils/pkg/model"
)

// Limit orders quote shares at 2 decimals; the collateral leg then lands
// exactly on the allowed precision for any supported tick size.
const limitSharesMaxDecimals = 2

// computeLimitOrderAmounts derives maker/taker on-chain units from a share
// quantity and a tick-quantized price. Shares round down so a sell cannot
// exceed inventory; the collateral product is exact at the supported
// precisions.
func computeLimitOrderAmounts(side Side, sizeUnits, priceTicks, priceScale *big.Int) (*big.Int, *big.Int, error) {
	if sizeUnits == nil || sizeUnits.Sign() <= 0 {
		return nil, nil, fmt.Errorf("size must be > 0")
	}
	if priceTicks == nil || priceTicks.Sign() <= 0 {
		return nil, nil, fmt.Errorf("priceTicks must be > 0")
	}
	if priceScale == nil || priceScale.Sign() <= 0 {
		return nil, nil, fmt.Errorf("priceScale must be > 0")
	}

	shares := roundDownUnits(sizeUnits, limitSharesMaxDecimals)
	if shares == nil || shares.Sign() <= 0 {
		return nil, nil, fmt.Errorf("size rounds to 0 at %d decimals", limitSharesMaxDecimals)
	}

	collateral := new(big.Int).Mul(shares, priceTicks)
	collateral.Div(collateral, priceScale)
	if collateral.Sign() <= 0 {
		return nil, nil, fmt.Errorf("order notional rounds to 0")
	}

	switch side {
	case SideBuy:
		// BUY: maker = collateral, taker = shares
		return collateral, shares, nil
	case SideSell:
		// SELL: maker = shares, taker = collateral
		return shares, collateral, nil
	default:
		return nil, nil, fmt.Errorf("invalid side %q", side)
	}
}

// CreateSignedLimitOrder builds and signs a resting limit order from an
// explicit price (collateral per share) and size (shares). The price is
// quantized to the market's tick size and the size is rounded down so a
// sell can never exceed inventory.
func (c *Client) CreateSignedLimitOrder(
	ctx context.Context,
	tokenID string,
	side Side,
	price float64,
	size float64,
	saltGenerator func() int64,
) (*OrderResult, error) {
	if price <= 0 {
		return nil, fmt.Errorf("price must be > 0")
	}
	if size <= 0 {
		return nil, fmt.Errorf("size must be > 0")
	}

	tickSize, err := c.GetTickSize(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	scale, priceDecimals, err := tickScaleFromTickSize(tickSize)
	if err != nil {
		return nil, err
	}

	priceStr := strconv.FormatFloat(price, 'f', priceDecimals, 64)
	priceTicks, err := parseDecimalToUnits(priceStr, priceDecimals)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", priceStr, err)
	}
	if priceTicks.Sign() <= 0 {
		return nil, fmt.Errorf("price %v below tick size %s", price, tickSize)
	}

	sizeStr := strconv.FormatFloat(size, 'f', collateralTokenDecimals, 64)
	sizeUnits, err := parseDecimalToUnits(sizeStr, collateralTokenDecimals)
	if err != nil {
		return nil, fmt.Errorf("parse size %q: %w", sizeStr, err)
	}

	makerAmount, takerAmount, err := computeLimitOrderAmounts(side, sizeUnits, priceTicks, scale)
	if err != nil {
		return nil, err
	}

	var sideEnum ordermodel.Side
	switch side {
	case SideBuy:
		sideEnum = ordermodel.BUY
	case SideSell:
		sideEnum = ordermodel.SELL
	default:
		return nil, fmt.Errorf("invalid side %q", side)
	}

	feeBps, err := c.GetFeeRateBps(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	negRisk, err := c.GetNegRisk(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	contract := ordermodel.CTFExchange
	if negRisk {
		contract = ordermodel.NegRiskCTFExchange
	}

	od := &ordermodel.OrderData{
		Maker:         c.funder.Hex(),
		Taker:         zeroAddressHex,
		TokenId:       tokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		FeeRateBps:    strconv.Itoa(feeBps),
		Nonce:         "0",
		Signer:        c.signer.Hex(),
		Expiration:    "0",
		Side:          sideEnum,
		SignatureType: ordermodel.SignatureType(c.signatureTy),
	}

	signed, err := signOrder(c.chainID, c.privateKey, od, contract, saltGenerator)
	if err != nil {
		return nil, err
	}
	return &OrderResult{SignedOrder: signed, Price: priceStr, TickSize: tickSize}, nil
}
