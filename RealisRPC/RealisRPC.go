// Package RealisRPC wraps the substrate client for the Realis side of the
// bridge: finalized head subscription, bridge pallet extrinsics per block,
// and signed submission of bridge calls.
package RealisRPC

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	gstypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"gorealisbridge/types"
)

// Client is one websocket connection to a Realis node.
type Client struct {
	api    *gsrpc.SubstrateAPI
	pallet string
	prefix uint16
	logger zerolog.Logger

	mu    sync.Mutex
	meta  *gstypes.Metadata
	calls map[gstypes.CallIndex]string
}

func Dial(url, pallet string, prefix uint16, logger zerolog.Logger) (*Client, error) {
	api, err := gsrpc.NewSubstrateAPI(url)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to realis node %s: %w", url, err)
	}
	c := &Client{
		api:    api,
		pallet: pallet,
		prefix: prefix,
		logger: logger.With().Str("chain", types.Realis.String()).Logger(),
	}
	if err := c.refreshMetadata(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// WithAPI dials url for a single call, the way the EVM side does for
// one-off queries.
func WithAPI[T any](url string, f func(api *gsrpc.SubstrateAPI) (T, error)) (res T, err error) {
	api, err := gsrpc.NewSubstrateAPI(url)
	if err != nil {
		return res, fmt.Errorf("cannot connect to realis node %s: %w", url, err)
	}
	defer closeAPI(api)
	return f(api)
}

func closeAPI(api *gsrpc.SubstrateAPI) {
	if c, ok := api.Client.(interface{ Close() }); ok {
		c.Close()
	}
}

func (c *Client) refreshMetadata() error {
	meta, err := c.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return fmt.Errorf("cannot fetch realis metadata: %w", err)
	}

	calls := make(map[gstypes.CallIndex]string, len(watchedCalls))
	for _, name := range watchedCalls {
		idx, err := meta.FindCallIndex(c.pallet + "." + name)
		if err != nil {
			return fmt.Errorf("call %s.%s missing from runtime metadata: %w", c.pallet, name, err)
		}
		calls[idx] = name
	}

	c.mu.Lock()
	c.meta, c.calls = meta, calls
	c.mu.Unlock()
	return nil
}

func (c *Client) metadata() (*gstypes.Metadata, map[gstypes.CallIndex]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta, c.calls
}

func (c *Client) Chain() types.Chain {
	return types.Realis
}

func (c *Client) Close() {
	closeAPI(c.api)
}

// headSubscription holds the channels of the client's finalized heads
// subscription.
type headSubscription struct {
	heads       <-chan gstypes.Header
	errs        <-chan error
	unsubscribe func()
	once        sync.Once
}

func (s *headSubscription) Next() (uint64, error) {
	select {
	case head, ok := <-s.heads:
		if !ok {
			return 0, types.ErrSubscriptionClosed
		}
		return uint64(head.Number), nil
	case err, ok := <-s.errs:
		if !ok || err == nil {
			return 0, types.ErrSubscriptionClosed
		}
		return 0, fmt.Errorf("finalized heads subscription: %w", err)
	}
}

func (s *headSubscription) Close() {
	s.once.Do(s.unsubscribe)
}

// SubscribeHeads follows finalized heads, so no confirmation lag is needed.
func (c *Client) SubscribeHeads(ctx context.Context) (types.HeadSubscription, error) {
	sub, err := c.api.RPC.Chain.SubscribeFinalizedHeads()
	if err != nil {
		return nil, fmt.Errorf("cannot subscribe to finalized heads: %w", err)
	}
	return &headSubscription{
		heads:       sub.Chan(),
		errs:        sub.Err(),
		unsubscribe: sub.Unsubscribe,
	}, nil
}

// BlockEvents returns the bridge pallet extrinsics of the block at height,
// in extrinsic order.
func (c *Client) BlockEvents(ctx context.Context, height uint64) ([]types.RawEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash, err := c.api.RPC.Chain.GetBlockHash(height)
	if err != nil {
		return nil, fmt.Errorf("cannot get hash of block %d: %w", height, err)
	}
	block, err := c.api.RPC.Chain.GetBlock(hash)
	if err != nil {
		return nil, fmt.Errorf("cannot get block %d: %w", height, err)
	}

	_, calls := c.metadata()
	var out []types.RawEvent
	for i, ext := range block.Block.Extrinsics {
		method, ok := calls[ext.Method.CallIndex]
		if !ok {
			continue
		}

		h := height
		raw := types.RawEvent{
			Chain:       types.Realis,
			BlockHeight: &h,
			Method:      method,
			Payload:     []byte(ext.Method.Args),
		}
		raw.TxHash, err = extrinsicHash(ext)
		if err != nil {
			c.logger.Warn().Err(err).Uint64("height", height).Int("index", i).Msg("cannot hash extrinsic")
			raw.TxHash = fmt.Sprintf("%d-%d", height, i)
		}

		signer := ""
		if ext.IsSigned() {
			signer, err = c.signerAddress(ext)
			if err != nil {
				raw.Err = err
				out = append(out, raw)
				continue
			}
		}
		raw.Params, raw.Err = paramsFromArgs(method, ext.Method.Args, signer, c.prefix)
		out = append(out, raw)
	}
	return out, nil
}

func (c *Client) signerAddress(ext gstypes.Extrinsic) (string, error) {
	var buf bytes.Buffer
	if err := scale.NewEncoder(&buf).Encode(ext.Signature.Signer); err != nil {
		return "", fmt.Errorf("cannot encode signer: %w", err)
	}
	pub, err := signerPublicKey(buf.Bytes())
	if err != nil {
		return "", err
	}
	return types.EncodeSS58(pub, c.prefix)
}

// extrinsicHash is blake2b-256 over the length-prefixed extrinsic, the
// hash block explorers show.
func extrinsicHash(ext gstypes.Extrinsic) (string, error) {
	var buf bytes.Buffer
	if err := scale.NewEncoder(&buf).Encode(ext); err != nil {
		return "", err
	}
	sum := blake2b.Sum256(buf.Bytes())
	return "0x" + hex.EncodeToString(sum[:]), nil
}

// FreeBalanceAt dials url and returns the free balance of pub.
func FreeBalanceAt(url string, pub []byte) (string, error) {
	return WithAPI(url, func(api *gsrpc.SubstrateAPI) (string, error) {
		return FreeBalance(api, pub)
	})
}

// FreeBalance reads System.Account of pub.
func FreeBalance(api *gsrpc.SubstrateAPI, pub []byte) (string, error) {
	meta, err := api.RPC.State.GetMetadataLatest()
	if err != nil {
		return "", err
	}
	info, ok, err := accountInfo(api, meta, pub)
	if err != nil {
		return "", err
	}
	if !ok || info.Data.Free.Int == nil {
		return "0", nil
	}
	return info.Data.Free.String(), nil
}

func accountInfo(api *gsrpc.SubstrateAPI, meta *gstypes.Metadata, pub []byte) (gstypes.AccountInfo, bool, error) {
	var info gstypes.AccountInfo
	key, err := gstypes.CreateStorageKey(meta, "System", "Account", pub)
	if err != nil {
		return info, false, fmt.Errorf("cannot build System.Account key: %w", err)
	}
	ok, err := api.RPC.State.GetStorageLatest(key, &info)
	if err != nil {
		return info, false, fmt.Errorf("cannot read System.Account: %w", err)
	}
	return info, ok, nil
}
