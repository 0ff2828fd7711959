package types

import (
	"encoding/json"
	"fmt"
)

// Direction tells whether an event asks the counter chain to execute a
// transfer or acknowledges one the bridge already executed.
type Direction uint8

const (
	Observed Direction = iota + 1
	Confirmed
)

func (d Direction) String() string {
	switch d {
	case Observed:
		return "observed"
	case Confirmed:
		return "confirmed"
	}
	return "unknown"
}

// EventMeta is shared by every event variant. Chain is the chain the event
// was seen on; From and To carry their own chain tags.
type EventMeta struct {
	Chain       Chain
	BlockHeight *uint64
	TxHash      string
	From        Account
	To          Account
}

func (m EventMeta) Meta() EventMeta { return m }

// CrossChainEvent is a closed union: TokenTransferObserved,
// NftTransferObserved, TokenTransferConfirmed and NftTransferConfirmed.
type CrossChainEvent interface {
	Meta() EventMeta
	Kind() EventKind
	Direction() Direction
	crossChainEvent()
}

type TokenTransferObserved struct {
	EventMeta
	Amount Amount
}

type NftTransferObserved struct {
	EventMeta
	TokenID   TokenID
	TokenType uint8
}

type TokenTransferConfirmed struct {
	EventMeta
	Amount Amount
}

type NftTransferConfirmed struct {
	EventMeta
	TokenID   TokenID
	TokenType uint8
}

func (TokenTransferObserved) Kind() EventKind  { return EventKindToken }
func (NftTransferObserved) Kind() EventKind    { return EventKindNft }
func (TokenTransferConfirmed) Kind() EventKind { return EventKindToken }
func (NftTransferConfirmed) Kind() EventKind   { return EventKindNft }

func (TokenTransferObserved) Direction() Direction  { return Observed }
func (NftTransferObserved) Direction() Direction    { return Observed }
func (TokenTransferConfirmed) Direction() Direction { return Confirmed }
func (NftTransferConfirmed) Direction() Direction   { return Confirmed }

func (TokenTransferObserved) crossChainEvent()  {}
func (NftTransferObserved) crossChainEvent()    {}
func (TokenTransferConfirmed) crossChainEvent() {}
func (NftTransferConfirmed) crossChainEvent()   {}

// UnknownEventError is returned by exhaustive switches that meet a variant
// they do not handle.
type UnknownEventError struct {
	Event CrossChainEvent
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown cross-chain event variant %T", e.Event)
}

const (
	variantTokenObserved  = "token_observed"
	variantNftObserved    = "nft_observed"
	variantTokenConfirmed = "token_confirmed"
	variantNftConfirmed   = "nft_confirmed"
)

type eventEnvelope struct {
	Variant     string   `json:"variant"`
	Chain       Chain    `json:"chain"`
	BlockHeight *uint64  `json:"block,omitempty"`
	TxHash      string   `json:"hash"`
	From        Account  `json:"from"`
	To          Account  `json:"to"`
	Amount      *Amount  `json:"amount,omitempty"`
	TokenID     *TokenID `json:"token_id,omitempty"`
	TokenType   *uint8   `json:"token_type,omitempty"`
}

// MarshalEvent encodes the event as the JSON value stored in the journal.
func MarshalEvent(ev CrossChainEvent) ([]byte, error) {
	env := eventEnvelope{}
	switch e := ev.(type) {
	case TokenTransferObserved:
		env.Variant = variantTokenObserved
		env.Amount = &e.Amount
	case NftTransferObserved:
		env.Variant = variantNftObserved
		env.TokenID = &e.TokenID
		env.TokenType = &e.TokenType
	case TokenTransferConfirmed:
		env.Variant = variantTokenConfirmed
		env.Amount = &e.Amount
	case NftTransferConfirmed:
		env.Variant = variantNftConfirmed
		env.TokenID = &e.TokenID
		env.TokenType = &e.TokenType
	default:
		return nil, &UnknownEventError{Event: ev}
	}

	meta := ev.Meta()
	env.Chain = meta.Chain
	env.BlockHeight = meta.BlockHeight
	env.TxHash = meta.TxHash
	env.From = meta.From
	env.To = meta.To
	return json.Marshal(env)
}

func UnmarshalEvent(data []byte) (CrossChainEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("cannot unmarshal event envelope: %w", err)
	}

	meta := EventMeta{
		Chain:       env.Chain,
		BlockHeight: env.BlockHeight,
		TxHash:      env.TxHash,
		From:        env.From,
		To:          env.To,
	}

	switch env.Variant {
	case variantTokenObserved, variantTokenConfirmed:
		if env.Amount == nil {
			return nil, fmt.Errorf("%s event %s has no amount", env.Variant, env.TxHash)
		}
		if env.Variant == variantTokenObserved {
			return TokenTransferObserved{EventMeta: meta, Amount: *env.Amount}, nil
		}
		return TokenTransferConfirmed{EventMeta: meta, Amount: *env.Amount}, nil
	case variantNftObserved, variantNftConfirmed:
		if env.TokenID == nil {
			return nil, fmt.Errorf("%s event %s has no token id", env.Variant, env.TxHash)
		}
		var tokenType uint8
		if env.TokenType != nil {
			tokenType = *env.TokenType
		}
		if env.Variant == variantNftObserved {
			return NftTransferObserved{EventMeta: meta, TokenID: *env.TokenID, TokenType: tokenType}, nil
		}
		return NftTransferConfirmed{EventMeta: meta, TokenID: *env.TokenID, TokenType: tokenType}, nil
	}
	return nil, fmt.Errorf("unknown event variant %q", env.Variant)
}
