package gas

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"go.uber.org/zap"
)

// PolicyKind selects how gas parameters are priced.
type PolicyKind string

const (
	// PolicyEstimate asks the node for a gas estimate and price and adds headroom.
	PolicyEstimate PolicyKind = "estimate"
	// PolicyStatic uses a fixed gas limit and the raw suggested price.
	PolicyStatic PolicyKind = "static"
)

// Policy configures an Estimator.
type Policy struct {
	Kind                PolicyKind
	GasLimitHeadroomPct uint64
	GasPriceHeadroomPct uint64
	StaticGasLimit      uint64
}

// DefaultPolicy inflates the estimate by 10% and the price by 20%.
func DefaultPolicy() Policy {
	return Policy{
		Kind:                PolicyEstimate,
		GasLimitHeadroomPct: 10,
		GasPriceHeadroomPct: 20,
	}
}

// Validate checks the policy kind.
func (p Policy) Validate() error {
	switch p.Kind {
	case PolicyEstimate, PolicyStatic:
		return nil
	default:
		return fmt.Errorf("unknown gas policy %q", p.Kind)
	}
}

// Client is the subset of ethclient the estimator needs.
type Client interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// Estimator prices bundle transactions according to a Policy.
type Estimator struct {
	client Client
	policy Policy
	logger *zap.Logger
}

// NewEstimator creates a new gas estimator
func NewEstimator(client Client, policy Policy, logger *zap.Logger) (*Estimator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{
		client: client,
		policy: policy,
		logger: logger,
	}, nil
}

// Policy returns the configured policy.
func (e *Estimator) Policy() Policy {
	return e.policy
}

// GasPrice returns the gas price to bid.
func (e *Estimator) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	if e.policy.Kind == PolicyStatic {
		return price, nil
	}
	return addPercent(price, e.policy.GasPriceHeadroomPct), nil
}

// GasLimit returns the gas limit for msg.
func (e *Estimator) GasLimit(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if e.policy.Kind == PolicyStatic {
		if e.policy.StaticGasLimit > 0 {
			return e.policy.StaticGasLimit, nil
		}
		return e.EstimateArbitrageGas(2), nil
	}

	estimate, err := e.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas: %w", err)
	}
	limit := estimate + estimate*e.policy.GasLimitHeadroomPct/100

	e.logger.Debug("Estimated gas",
		zap.Uint64("estimate", estimate),
		zap.Uint64("limit", limit))

	return limit, nil
}

// EstimateArbitrageGas estimates gas for a typical arbitrage transaction
func (e *Estimator) EstimateArbitrageGas(numHops int) uint64 {
	// Base cost for transaction
	baseCost := uint64(21000)

	// Cost per DEX hop (approximate)
	// This includes:
	// - Storage reads (~2000)
	// - Token transfers (~50000)
	// - Swap execution (~100000)
	costPerHop := uint64(152000)

	return baseCost + (costPerHop * uint64(numHops))
}

func addPercent(v *big.Int, pct uint64) *big.Int {
	extra := new(big.Int).Mul(v, new(big.Int).SetUint64(pct))
	extra.Div(extra, big.NewInt(100))
	return extra.Add(extra, v)
}
