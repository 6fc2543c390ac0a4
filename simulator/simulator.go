package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/backrunner/flashbots"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// SimulationResult represents the result of a bundle simulation
type SimulationResult struct {
	Success         bool
	GasUsed         uint64
	StateBlock      uint64
	MevGasPrice     *big.Int
	Profit          *big.Int
	RefundableValue *big.Int
	Error           error
}

// BundleSimulator is the relay endpoint used for simulation.
type BundleSimulator interface {
	SimBundle(ctx context.Context, bundle *flashbots.Bundle) (*flashbots.Response, error)
}

// Simulator handles bundle simulation against the relay
type Simulator struct {
	relay  BundleSimulator
	logger *zap.Logger
}

// NewSimulator creates a new bundle simulator
func NewSimulator(relay BundleSimulator, logger *zap.Logger) *Simulator {
	return &Simulator{
		relay:  relay,
		logger: logger,
	}
}

type simResult struct {
	Success         bool            `json:"success"`
	Error           string          `json:"error,omitempty"`
	StateBlock      hexutil.Uint64  `json:"stateBlock"`
	MevGasPrice     *hexutil.Big    `json:"mevGasPrice"`
	Profit          *hexutil.Big    `json:"profit"`
	RefundableValue *hexutil.Big    `json:"refundableValue"`
	GasUsed         hexutil.Uint64  `json:"gasUsed"`
	Logs            json.RawMessage `json:"logs,omitempty"`
}

// SimulateBundle runs mev_simBundle. A bundle the relay refuses or that
// reverts is reported in the result; the error covers failures to reach
// the relay.
func (s *Simulator) SimulateBundle(ctx context.Context, bundle *flashbots.Bundle) (*SimulationResult, error) {
	resp, err := s.relay.SimBundle(ctx, bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate bundle: %w", err)
	}

	if resp.Error != nil {
		return &SimulationResult{Success: false, Error: resp.Error}, nil
	}

	var out simResult
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		return nil, fmt.Errorf("failed to decode simulation result: %w", err)
	}

	result := &SimulationResult{
		Success:         out.Success,
		GasUsed:         uint64(out.GasUsed),
		StateBlock:      uint64(out.StateBlock),
		MevGasPrice:     toBig(out.MevGasPrice),
		Profit:          toBig(out.Profit),
		RefundableValue: toBig(out.RefundableValue),
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "bundle simulation failed"
		}
		result.Error = errors.New(msg)
	}

	s.logger.Debug("Simulated bundle",
		zap.String("trigger", bundle.Trigger().Hex()),
		zap.Bool("success", result.Success),
		zap.Uint64("gas_used", result.GasUsed),
		zap.String("profit", result.Profit.String()))

	return result, nil
}

func toBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToInt()
}
