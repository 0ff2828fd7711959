package types

import (
	"context"
	"errors"
	"fmt"
)

// RawEvent is one bridge-relevant extrinsic or log as delivered by a chain
// client, before decoding. Params are positional, base-10 for numbers.
type RawEvent struct {
	Chain       Chain
	BlockHeight *uint64
	TxHash      string
	Method      string
	Params      []string
	Payload     []byte // undecoded argument bytes, journaled on decode failure
	Err         error  // set when the client could not unpack Payload
}

var ErrSubscriptionClosed = errors.New("head subscription closed")

// HeadSubscription delivers finalized block heights. Next blocks until a
// head arrives or the subscription fails.
type HeadSubscription interface {
	Next() (uint64, error)
	Close()
}

// ChainSource is the read side of a chain client used by listeners.
type ChainSource interface {
	Chain() Chain
	SubscribeHeads(ctx context.Context) (HeadSubscription, error)
	BlockEvents(ctx context.Context, height uint64) ([]RawEvent, error)
	Close()
}

// Executor signs and submits the counter-chain call for an event and waits
// for it to be included. It owns the signing key and nonce sequence.
type Executor interface {
	Chain() Chain
	Execute(ctx context.Context, ev CrossChainEvent) (string, error)
	Close()
}

type SendErrorKind uint8

const (
	SendTimeout SendErrorKind = iota + 1
	SendRejected
	SendConnection
)

func (k SendErrorKind) String() string {
	switch k {
	case SendTimeout:
		return "timeout"
	case SendRejected:
		return "rejected"
	case SendConnection:
		return "connection"
	}
	return "unknown"
}

// SendError is returned by executors. Connection means the client itself is
// unusable, not only the one call.
type SendError struct {
	Kind SendErrorKind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

func NewSendError(kind SendErrorKind, err error) *SendError {
	return &SendError{Kind: kind, Err: err}
}
