package EVMRPC

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"gorealisbridge/types"
)

// WithClient tries every url in turn until f succeeds on one of them.
func WithClient[T any](urls []string, logger zerolog.Logger, f func(client *ethclient.Client) (T, error)) (res T, err error) {
	var client *ethclient.Client
	for _, url := range urls {
		client, err = ethclient.Dial(url)
		if err != nil {
			logger.Warn().Err(err).Str("url", url).Msg("Error connecting to EVM node")
			continue
		}

		res, err = f(client)
		client.Close()
		if err == nil {
			return
		}
	}
	return
}

// logFilterer is the part of the client used to read bridge logs.
type logFilterer interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
}

// Client is one websocket connection to a BSC node, scoped to the bridge
// contract.
type Client struct {
	eth           *ethclient.Client
	contract      common.Address
	confirmations uint64
	logger        zerolog.Logger
}

func Dial(ctx context.Context, url string, contract common.Address, confirmations uint64, logger zerolog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to bsc node %s: %w", url, err)
	}
	return &Client{
		eth:           eth,
		contract:      contract,
		confirmations: confirmations,
		logger:        logger.With().Str("chain", types.BSC.String()).Logger(),
	}, nil
}

func (c *Client) Chain() types.Chain {
	return types.BSC
}

func (c *Client) Close() {
	c.eth.Close()
}

type headSubscription struct {
	heads         chan *ethtypes.Header
	sub           ethereum.Subscription
	confirmations uint64
	once          sync.Once
}

// Next returns the newest height that has the configured number of
// confirmations. Heads younger than that are skipped.
func (s *headSubscription) Next() (uint64, error) {
	for {
		select {
		case head := <-s.heads:
			n := head.Number.Uint64()
			if n+1 < s.confirmations {
				continue
			}
			return lagged(n, s.confirmations), nil
		case err, ok := <-s.sub.Err():
			if !ok || err == nil {
				return 0, types.ErrSubscriptionClosed
			}
			return 0, fmt.Errorf("new heads subscription: %w", err)
		}
	}
}

func (s *headSubscription) Close() {
	s.once.Do(s.sub.Unsubscribe)
}

// lagged is the height with confirmations blocks on top, counting itself.
func lagged(head, confirmations uint64) uint64 {
	if confirmations == 0 {
		return head
	}
	return head + 1 - confirmations
}

func (c *Client) SubscribeHeads(ctx context.Context) (types.HeadSubscription, error) {
	heads := make(chan *ethtypes.Header, 16)
	sub, err := c.eth.SubscribeNewHead(ctx, heads)
	if err != nil {
		return nil, fmt.Errorf("cannot subscribe to new heads: %w", err)
	}
	return &headSubscription{heads: heads, sub: sub, confirmations: c.confirmations}, nil
}

func (c *Client) BlockEvents(ctx context.Context, height uint64) ([]types.RawEvent, error) {
	return blockEvents(ctx, c.eth, c.contract, height)
}

// blockEvents returns the bridge contract logs of one block in log order.
// Logs of other events of the contract are skipped.
func blockEvents(ctx context.Context, f logFilterer, contract common.Address, height uint64) ([]types.RawEvent, error) {
	h := new(big.Int).SetUint64(height)
	logs, err := f.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: h,
		ToBlock:   h,
		Addresses: []common.Address{contract},
	})
	if err != nil {
		return nil, fmt.Errorf("cannot filter logs of block %d: %w", height, err)
	}

	var out []types.RawEvent
	for _, l := range logs {
		if l.Removed || len(l.Topics) == 0 {
			continue
		}
		event, err := BridgeABI.EventByID(l.Topics[0])
		if err != nil || !watchedEvents[event.Name] {
			continue
		}

		blockHeight := l.BlockNumber
		raw := types.RawEvent{
			Chain:       types.BSC,
			BlockHeight: &blockHeight,
			TxHash:      l.TxHash.Hex(),
			Method:      event.Name,
			Payload:     l.Data,
		}
		values, err := event.Inputs.Unpack(l.Data)
		if err != nil {
			raw.Err = err
		} else {
			raw.Params, raw.Err = paramsFromValues(event.Name, values)
		}
		out = append(out, raw)
	}
	return out, nil
}
