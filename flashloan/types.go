package flashloan

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Params are the arguments of a flash-loan funded backrun: borrow Amount of
// Asset, swap it through PoolA then PoolB, repay, keep PercentageToKeep of
// the profit.
type Params struct {
	Asset            common.Address
	Amount           *big.Int
	PoolA            common.Address
	PoolB            common.Address
	PercentageToKeep *big.Int
}

var routeArgs = mustArguments("address", "address", "uint256")

func mustArguments(kinds ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(kinds))
	for _, kind := range kinds {
		typ, err := abi.NewType(kind, "", nil)
		if err != nil {
			panic(fmt.Sprintf("invalid abi type %s: %v", kind, err))
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// EncodeRoute ABI-encodes (poolA, poolB, percentageToKeep), the payload the
// executor contract decodes inside the loan callback.
func (p Params) EncodeRoute() ([]byte, error) {
	data, err := routeArgs.Pack(p.PoolA, p.PoolB, p.PercentageToKeep)
	if err != nil {
		return nil, fmt.Errorf("failed to encode route: %w", err)
	}
	return data, nil
}

// DecodeRoute reverses EncodeRoute.
func DecodeRoute(data []byte) (poolA, poolB common.Address, pct *big.Int, err error) {
	values, err := routeArgs.Unpack(data)
	if err != nil {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("failed to decode route: %w", err)
	}
	return values[0].(common.Address), values[1].(common.Address), values[2].(*big.Int), nil
}
