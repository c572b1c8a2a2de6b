package dataapi

import (
	"context"
	"strings"
)

// TokenPosition reports the wallet's holding for one outcome token.
// A missing position returns zero size and no error.
func (c *Client) TokenPosition(ctx context.Context, user, tokenID string) (size, avgPrice float64, err error) {
	tokenID = strings.TrimSpace(tokenID)
	positions, err := c.GetPositions(ctx, PositionsParams{User: user, Limit: 500})
	if err != nil {
		return 0, 0, err
	}
	for _, p := range positions {
		if p.Asset == tokenID {
			return p.Size, p.AvgPrice, nil
		}
	}
	return 0, 0, nil
}

// RedeemablePositions lists positions in resolved markets that can still
// be claimed, optionally filtered to the given condition id.
func (c *Client) RedeemablePositions(ctx context.Context, user, conditionID string) ([]Position, error) {
	redeemable := true
	positions, err := c.GetPositions(ctx, PositionsParams{
		User:       user,
		Redeemable: &redeemable,
		Limit:      500,
	})
	if err != nil {
		return nil, err
	}
	conditionID = strings.TrimSpace(conditionID)
	if conditionID == "" {
		return positions, nil
	}
	out := positions[:0]
	for _, p := range positions {
		if strings.EqualFold(p.ConditionID, conditionID) {
			out = append(out, p)
		}
	}
	return out, nil
}
