package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

const DefaultSubmitTimeout = 30 * time.Second

// Error codes returned by the execution service.
const (
	codeInsufficientFunds = -32010
	codeSlippageExceeded  = -32011
	codeInvalidWallet     = -32012
)

// RPCExecutor submits swaps to an execution service speaking JSON-RPC 2.0.
type RPCExecutor struct {
	client  *rpc.Client
	timeout time.Duration
	logger  *zap.Logger
}

var _ Executor = (*RPCExecutor)(nil)

func Dial(ctx context.Context, url string, timeout time.Duration, logger *zap.Logger) (*RPCExecutor, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to execution service: %w", err)
	}
	return NewRPCExecutor(client, timeout, logger), nil
}

func NewRPCExecutor(client *rpc.Client, timeout time.Duration, logger *zap.Logger) *RPCExecutor {
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	return &RPCExecutor{client: client, timeout: timeout, logger: logger}
}

type submitParams struct {
	ClientOrderID string `json:"client_order_id"`
	Wallet        string `json:"wallet"`
	Signer        string `json:"signer"`
	Token         string `json:"token"`
	Side          string `json:"side"`
	Amount        string `json:"amount"`
	SlippageBps   int64  `json:"slippage_bps"`
}

type submitResult struct {
	Signature string `json:"signature"`
}

func (e *RPCExecutor) Execute(ctx context.Context, order Order) (Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	params := submitParams{
		ClientOrderID: order.ClientOrderID,
		Wallet:        order.WalletAddress,
		Signer:        order.SignerRef,
		Token:         order.TokenAddress,
		Side:          string(order.Side),
		Amount:        order.Amount.String(),
		SlippageBps:   order.Slippage.Shift(2).IntPart(),
	}

	var res submitResult
	if err := e.client.CallContext(ctx, &res, "trade_submit", params); err != nil {
		mapped := classify(err)
		e.logger.Warn("Trade submission failed",
			zap.String("client_order_id", order.ClientOrderID),
			zap.String("token_address", order.TokenAddress),
			zap.Error(err))
		return Trade{}, mapped
	}
	if res.Signature == "" {
		return Trade{}, fmt.Errorf("%w: empty signature", ErrSubmissionFailed)
	}

	e.logger.Info("Trade submitted",
		zap.String("client_order_id", order.ClientOrderID),
		zap.String("signature", res.Signature))
	return Trade{Ref: res.Signature}, nil
}

func (e *RPCExecutor) Close() {
	e.client.Close()
}

func classify(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeInsufficientFunds:
			return fmt.Errorf("%w: %s", ErrInsufficientFunds, rpcErr.Error())
		case codeSlippageExceeded:
			return fmt.Errorf("%w: %s", ErrSlippageExceeded, rpcErr.Error())
		case codeInvalidWallet:
			return fmt.Errorf("%w: %s", ErrInvalidWallet, rpcErr.Error())
		}
		return fmt.Errorf("%w: %s", ErrSubmissionFailed, rpcErr.Error())
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
}
