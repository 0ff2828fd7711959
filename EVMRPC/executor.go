package EVMRPC

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"gorealisbridge/types"
)

// confirmationPoll is how often the executor checks the head while
// waiting for confirmations.
const confirmationPoll = 3 * time.Second

// Executor calls the bridge contract with one key. Nonces come from the
// node's pending state, which is enough because the sender waits for
// each transaction before submitting the next.
type Executor struct {
	client   *Client
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	gasLimit uint64
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewExecutor(client *Client, privateKey string, chainID int64, gasLimit uint64, timeout time.Duration, logger zerolog.Logger) (*Executor, error) {
	key, err := parseKey(privateKey)
	if err != nil {
		return nil, err
	}
	e := &Executor{
		client:   client,
		contract: bind.NewBoundContract(client.contract, BridgeABI, client.eth, client.eth, client.eth),
		key:      key,
		chainID:  big.NewInt(chainID),
		gasLimit: gasLimit,
		timeout:  timeout,
		logger:   client.logger.With().Str("component", "executor").Logger(),
	}
	e.logger.Info().Str("address", crypto.PubkeyToAddress(key.PublicKey).Hex()).Msg("bsc executor ready")
	return e, nil
}

func parseKey(privateKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid bsc private key: %w", err)
	}
	return key, nil
}

// AddressFromKey returns the account address of a hex private key.
func AddressFromKey(privateKey string) (common.Address, error) {
	key, err := parseKey(privateKey)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

func (e *Executor) Chain() types.Chain {
	return types.BSC
}

func (e *Executor) Close() {
	e.client.Close()
}

// Execute sends the contract call for ev and waits until the transaction
// has the configured number of confirmations. It returns the tx hash.
func (e *Executor) Execute(ctx context.Context, ev types.CrossChainEvent) (string, error) {
	method, args, err := callArgs(ev)
	if err != nil {
		return "", types.NewSendError(types.SendRejected, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	opts, err := bind.NewKeyedTransactorWithChainID(e.key, e.chainID)
	if err != nil {
		return "", types.NewSendError(types.SendRejected, err)
	}
	opts.Context = ctx
	opts.GasLimit = e.gasLimit

	tx, err := e.contract.Transact(opts, method, args...)
	if err != nil {
		return "", classify(ctx, err)
	}
	hash := tx.Hash().Hex()
	e.logger.Debug().Str("hash", hash).Str("method", method).Msg("transaction sent")

	receipt, err := bind.WaitMined(ctx, e.client.eth, tx)
	if err != nil {
		return hash, classify(ctx, err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return hash, types.NewSendError(types.SendRejected, fmt.Errorf("transaction %s reverted", hash))
	}

	if err := e.waitConfirmations(ctx, receipt.BlockNumber.Uint64()); err != nil {
		return hash, classify(ctx, err)
	}
	return hash, nil
}

func (e *Executor) waitConfirmations(ctx context.Context, included uint64) error {
	target := included + e.client.confirmations
	if e.client.confirmations > 0 {
		target--
	}

	ticker := time.NewTicker(confirmationPoll)
	defer ticker.Stop()
	for {
		head, err := e.client.eth.BlockNumber(ctx)
		if err != nil {
			return err
		}
		if head >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// classify turns client errors into send errors. JSON-RPC error replies
// mean the node refused the call; anything else is the connection.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return types.NewSendError(types.SendTimeout, err)
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return types.NewSendError(types.SendRejected, err)
	}
	return types.NewSendError(types.SendConnection, err)
}

// NativeBalance is the balance of addr in wei, read from the first
// reachable url.
func NativeBalance(ctx context.Context, urls []string, addr common.Address, logger zerolog.Logger) (string, error) {
	return WithClient(urls, logger, func(client *ethclient.Client) (string, error) {
		balance, err := client.BalanceAt(ctx, addr, nil)
		if err != nil {
			return "", err
		}
		return balance.String(), nil
	})
}
