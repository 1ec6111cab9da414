package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/layer-3/evmauth/core"
)

// ERC1155ABI covers the balance views the gate needs
const ERC1155ABI = `[
	{"inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],
	 "name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"accounts","type":"address[]"},{"name":"ids","type":"uint256[]"}],
	 "name":"balanceOfBatch","outputs":[{"name":"","type":"uint256[]"}],"stateMutability":"view","type":"function"}
]`

// ERC1155Reader reads balances from an ERC-1155 contract through any contract caller
type ERC1155Reader struct {
	caller   ethereum.ContractCaller
	contract common.Address
	abi      abi.ABI
}

// NewERC1155Reader creates a reader for contract
func NewERC1155Reader(caller ethereum.ContractCaller, contract common.Address) (*ERC1155Reader, error) {
	parsed, err := abi.JSON(strings.NewReader(ERC1155ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC-1155 ABI: %w", err)
	}
	return &ERC1155Reader{
		caller:   caller,
		contract: contract,
		abi:      parsed,
	}, nil
}

// Dial connects to rpcURL and returns a reader together with the client so the
// caller can close it
func Dial(ctx context.Context, rpcURL string, contract common.Address) (*ERC1155Reader, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	reader, err := NewERC1155Reader(client, contract)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return reader, client, nil
}

// BalanceOf returns the balance of token id held by wallet
func (r *ERC1155Reader) BalanceOf(ctx context.Context, wallet common.Address, id core.TokenID) (*big.Int, error) {
	out, err := r.call(ctx, "balanceOf", wallet, id.BigInt())
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", out[0])
	}
	return balance, nil
}

// BalanceOfBatch returns the balances of ids held by wallet in the same order
func (r *ERC1155Reader) BalanceOfBatch(ctx context.Context, wallet common.Address, ids []core.TokenID) ([]*big.Int, error) {
	accounts := make([]common.Address, len(ids))
	bigIDs := make([]*big.Int, len(ids))
	for i, id := range ids {
		accounts[i] = wallet
		bigIDs[i] = id.BigInt()
	}

	out, err := r.call(ctx, "balanceOfBatch", accounts, bigIDs)
	if err != nil {
		return nil, err
	}
	balances, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOfBatch result type %T", out[0])
	}
	if len(balances) != len(ids) {
		return nil, fmt.Errorf("balanceOfBatch returned %d balances for %d ids", len(balances), len(ids))
	}
	return balances, nil
}

func (r *ERC1155Reader) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	raw, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}

	out, err := r.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s returned %d values", method, len(out))
	}
	return out, nil
}
