// Package decoder turns raw bridge extrinsics and logs into canonical
// cross-chain events. It performs no I/O.
//
// Token methods carry [receiver, amount, sender].
// NFT methods carry [sender, receiver, tokenId, tokenType]; tokenType is
// optional and defaults to 0.
package decoder

import (
	"fmt"
	"strconv"

	"gorealisbridge/types"
)

// Func is the decoder signature used by listeners.
type Func func(raw types.RawEvent) (types.CrossChainEvent, error)

// Realis pallet calls recognised by the bridge.
const (
	RealisTransferTokenToBSC    = "transfer_token_to_bsc"
	RealisTransferNftToBSC      = "transfer_nft_to_bsc"
	RealisTransferTokenToRealis = "transfer_token_to_realis"
	RealisTransferNftToRealis   = "transfer_nft_to_realis"
)

// BSC bridge contract events recognised by the bridge.
const (
	BSCTransferToRealis    = "TransferToRealis"
	BSCTransferNftToRealis = "TransferNftToRealis"
	BSCTransferFromRealis  = "TransferFromRealis"
	BSCMintNftFromRealis   = "MintNftFromRealis"
)

type method struct {
	kind      types.EventKind
	direction types.Direction
}

var realisMethods = map[string]method{
	RealisTransferTokenToBSC:    {types.EventKindToken, types.Observed},
	RealisTransferNftToBSC:      {types.EventKindNft, types.Observed},
	RealisTransferTokenToRealis: {types.EventKindToken, types.Confirmed},
	RealisTransferNftToRealis:   {types.EventKindNft, types.Confirmed},
}

var bscMethods = map[string]method{
	BSCTransferToRealis:    {types.EventKindToken, types.Observed},
	BSCTransferNftToRealis: {types.EventKindNft, types.Observed},
	BSCTransferFromRealis:  {types.EventKindToken, types.Confirmed},
	BSCMintNftFromRealis:   {types.EventKindNft, types.Confirmed},
}

// Realis decodes an extrinsic of the Realis bridge pallet.
func Realis(raw types.RawEvent) (types.CrossChainEvent, error) {
	return decode(types.Realis, realisMethods, raw)
}

// BSC decodes a log of the BSC bridge contract.
func BSC(raw types.RawEvent) (types.CrossChainEvent, error) {
	return decode(types.BSC, bscMethods, raw)
}

// ForChain returns the decoder for events seen on chain.
func ForChain(chain types.Chain) (Func, error) {
	switch chain {
	case types.Realis:
		return Realis, nil
	case types.BSC:
		return BSC, nil
	}
	return nil, fmt.Errorf("no decoder for chain %s", chain)
}

func decode(chain types.Chain, methods map[string]method, raw types.RawEvent) (types.CrossChainEvent, error) {
	m, ok := methods[raw.Method]
	if !ok {
		return nil, &DecodeError{Kind: ErrUnknownMethod, Method: raw.Method, Index: -1}
	}
	if raw.Err != nil {
		return nil, &DecodeError{Kind: ErrUnderlying, Method: raw.Method, Index: -1, Err: raw.Err}
	}

	// observed transfers start on this chain, confirmed ones on the other
	senderChain := chain
	if m.direction == types.Confirmed {
		senderChain = chain.Counterpart()
	}
	receiverChain := senderChain.Counterpart()

	meta := types.EventMeta{
		Chain:       chain,
		BlockHeight: raw.BlockHeight,
		TxHash:      raw.TxHash,
	}
	p := params{method: raw.Method, values: raw.Params}

	switch m.kind {
	case types.EventKindToken:
		to, err := p.account(0, receiverChain)
		if err != nil {
			return nil, err
		}
		amount, err := p.amount(1)
		if err != nil {
			return nil, err
		}
		from, err := p.account(2, senderChain)
		if err != nil {
			return nil, err
		}
		meta.From, meta.To = from, to
		if m.direction == types.Observed {
			return types.TokenTransferObserved{EventMeta: meta, Amount: amount}, nil
		}
		return types.TokenTransferConfirmed{EventMeta: meta, Amount: amount}, nil

	case types.EventKindNft:
		from, err := p.account(0, senderChain)
		if err != nil {
			return nil, err
		}
		to, err := p.account(1, receiverChain)
		if err != nil {
			return nil, err
		}
		id, err := p.tokenID(2)
		if err != nil {
			return nil, err
		}
		tokenType, err := p.tokenType(3)
		if err != nil {
			return nil, err
		}
		meta.From, meta.To = from, to
		if m.direction == types.Observed {
			return types.NftTransferObserved{EventMeta: meta, TokenID: id, TokenType: tokenType}, nil
		}
		return types.NftTransferConfirmed{EventMeta: meta, TokenID: id, TokenType: tokenType}, nil
	}

	return nil, &DecodeError{Kind: ErrUnknownMethod, Method: raw.Method, Index: -1}
}

type params struct {
	method string
	values []string
}

func (p params) get(i int) (string, error) {
	if i >= len(p.values) {
		return "", &DecodeError{Kind: ErrMissingParam, Method: p.method, Index: i}
	}
	return p.values[i], nil
}

func (p params) account(i int, chain types.Chain) (types.Account, error) {
	s, err := p.get(i)
	if err != nil {
		return types.Account{}, err
	}
	acc, err := types.NewAccount(chain, s)
	if err != nil {
		return types.Account{}, &DecodeError{Kind: ErrAddress, Method: p.method, Index: i, Err: err}
	}
	return acc, nil
}

func (p params) amount(i int) (types.Amount, error) {
	s, err := p.get(i)
	if err != nil {
		return types.Amount{}, err
	}
	a, err := types.ParseAmount(s)
	if err != nil {
		return types.Amount{}, &DecodeError{Kind: ErrAmount, Method: p.method, Index: i, Err: err}
	}
	return a, nil
}

func (p params) tokenID(i int) (types.TokenID, error) {
	s, err := p.get(i)
	if err != nil {
		return types.TokenID{}, err
	}
	id, err := types.ParseTokenID(s)
	if err != nil {
		return types.TokenID{}, &DecodeError{Kind: ErrTokenID, Method: p.method, Index: i, Err: err}
	}
	return id, nil
}

func (p params) tokenType(i int) (uint8, error) {
	if i >= len(p.values) {
		return 0, nil
	}
	v, err := strconv.ParseUint(p.values[i], 10, 8)
	if err != nil {
		return 0, &DecodeError{Kind: ErrTokenType, Method: p.method, Index: i, Err: err}
	}
	return uint8(v), nil
}
