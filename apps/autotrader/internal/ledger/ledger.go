// Package ledger reads wallet balances straight from the chain. Nothing here is cached.
package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// one SOL is 10^9 lamports
const lamportsDecimals = 9

type Ledger interface {
	// Balance returns the native balance of address in SOL.
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
}

// RPCLedger queries a Solana JSON-RPC node.
type RPCLedger struct {
	client     *rpc.Client
	commitment string
	logger     *zap.Logger
}

func Dial(ctx context.Context, url string, logger *zap.Logger) (*RPCLedger, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger rpc: %w", err)
	}
	return NewRPCLedger(client, logger), nil
}

func NewRPCLedger(client *rpc.Client, logger *zap.Logger) *RPCLedger {
	return &RPCLedger{client: client, commitment: "confirmed", logger: logger}
}

type balanceResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value uint64 `json:"value"`
}

func (l *RPCLedger) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	var res balanceResult
	err := l.client.CallContext(ctx, &res, "getBalance", address, map[string]string{"commitment": l.commitment})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance of %s: %w", address, err)
	}

	l.logger.Debug("Read wallet balance",
		zap.String("address", address),
		zap.Uint64("lamports", res.Value),
		zap.Uint64("slot", res.Context.Slot))

	return decimal.New(int64(res.Value), -lamportsDecimals), nil
}

func (l *RPCLedger) Close() {
	l.client.Close()
}
