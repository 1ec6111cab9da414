package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/evmauth/core"
)

// BalanceReader reads ERC-1155 balances from the contract
type BalanceReader interface {
	// BalanceOf returns the balance of a single token id
	BalanceOf(ctx context.Context, wallet common.Address, id core.TokenID) (*big.Int, error)

	// BalanceOfBatch returns balances in the same order as ids
	BalanceOfBatch(ctx context.Context, wallet common.Address, ids []core.TokenID) ([]*big.Int, error)
}
