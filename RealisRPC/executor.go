package RealisRPC

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	gstypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/rs/zerolog"

	"gorealisbridge/types"
)

// Executor submits bridge calls on Realis with one signing key. It is
// driven by a single sender goroutine and keeps its own nonce sequence.
type Executor struct {
	client  *Client
	keyring signature.KeyringPair
	timeout time.Duration
	logger  zerolog.Logger

	nextNonce uint64
	haveNonce bool
}

func NewExecutor(client *Client, seed string, timeout time.Duration, logger zerolog.Logger) (*Executor, error) {
	keyring, err := Keyring(seed, client.prefix)
	if err != nil {
		return nil, err
	}
	return &Executor{
		client:  client,
		keyring: keyring,
		timeout: timeout,
		logger:  client.logger.With().Str("component", "executor").Logger(),
	}, nil
}

func (e *Executor) Chain() types.Chain {
	return types.Realis
}

func (e *Executor) Close() {
	e.client.Close()
}

// Execute submits the Realis call for ev and waits until the extrinsic is
// in a block. It returns the extrinsic hash.
func (e *Executor) Execute(ctx context.Context, ev types.CrossChainEvent) (string, error) {
	name, args, err := callArgs(ev)
	if err != nil {
		return "", types.NewSendError(types.SendRejected, err)
	}

	meta, _ := e.client.metadata()
	call, err := gstypes.NewCall(meta, e.client.pallet+"."+name, args...)
	if err != nil {
		return "", types.NewSendError(types.SendRejected, fmt.Errorf("cannot build %s call: %w", name, err))
	}
	ext := gstypes.NewExtrinsic(call)

	api := e.client.api
	genesisHash, err := api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		return "", types.NewSendError(types.SendConnection, err)
	}
	rv, err := api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return "", types.NewSendError(types.SendConnection, err)
	}
	nonce, err := e.nonce(meta)
	if err != nil {
		return "", types.NewSendError(types.SendConnection, err)
	}

	err = ext.Sign(e.keyring, gstypes.SignatureOptions{
		BlockHash:          genesisHash,
		Era:                gstypes.ExtrinsicEra{IsMortalEra: false},
		GenesisHash:        genesisHash,
		Nonce:              gstypes.NewUCompactFromUInt(nonce),
		SpecVersion:        rv.SpecVersion,
		Tip:                gstypes.NewUCompactFromUInt(0),
		TransactionVersion: rv.TransactionVersion,
	})
	if err != nil {
		return "", types.NewSendError(types.SendRejected, fmt.Errorf("cannot sign extrinsic: %w", err))
	}
	hash, err := extrinsicHash(ext)
	if err != nil {
		return "", types.NewSendError(types.SendRejected, err)
	}

	sub, err := api.RPC.Author.SubmitAndWatchExtrinsic(ext)
	if err != nil {
		// the node answered, the transaction itself was refused
		if isRPCError(err) {
			e.haveNonce = false
			return "", types.NewSendError(types.SendRejected, err)
		}
		return "", types.NewSendError(types.SendConnection, err)
	}
	defer sub.Unsubscribe()
	e.nextNonce, e.haveNonce = nonce+1, true

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	for {
		select {
		case status := <-sub.Chan():
			switch {
			case status.IsInBlock, status.IsFinalized:
				e.logger.Debug().Str("hash", hash).Str("call", name).Msg("extrinsic included")
				return hash, nil
			case status.IsDropped, status.IsInvalid, status.IsUsurped:
				e.haveNonce = false
				return hash, types.NewSendError(types.SendRejected, fmt.Errorf("extrinsic %s not included: %s", hash, statusName(status)))
			}
		case err := <-sub.Err():
			return hash, types.NewSendError(types.SendConnection, err)
		case <-ctx.Done():
			return hash, types.NewSendError(types.SendTimeout, ctx.Err())
		}
	}
}

// nonce is the larger of the on-chain nonce and the local sequence, so
// back to back submissions do not wait for inclusion of the previous one.
func (e *Executor) nonce(meta *gstypes.Metadata) (uint64, error) {
	info, _, err := accountInfo(e.client.api, meta, e.keyring.PublicKey)
	if err != nil {
		return 0, err
	}
	onChain := uint64(info.Nonce)
	if e.haveNonce && e.nextNonce > onChain {
		return e.nextNonce, nil
	}
	return onChain, nil
}

// Keyring derives the signing pair from a seed, mnemonic or dev URI such
// as //Alice.
func Keyring(seed string, prefix uint16) (signature.KeyringPair, error) {
	keyring, err := signature.KeyringPairFromSecret(seed, uint8(prefix))
	if err != nil {
		return signature.KeyringPair{}, fmt.Errorf("invalid realis signing seed: %w", err)
	}
	return keyring, nil
}

func isRPCError(err error) bool {
	var rpcErr interface{ ErrorCode() int }
	return errors.As(err, &rpcErr)
}

func statusName(s gstypes.ExtrinsicStatus) string {
	switch {
	case s.IsDropped:
		return "dropped"
	case s.IsInvalid:
		return "invalid"
	case s.IsUsurped:
		return "usurped"
	}
	return "unknown"
}
