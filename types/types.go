package types

import (
	"fmt"
	"strings"
	"time"
)

// Chain identifies one side of the bridge.
// Realis is the substrate chain, BSC the EVM chain.
type Chain uint8

const (
	ChainUnknown Chain = iota
	Realis
	BSC
)

func (c Chain) String() string {
	switch c {
	case Realis:
		return "realis"
	case BSC:
		return "bsc"
	}
	return "unknown"
}

// Counterpart returns the chain on the other side of the bridge.
func (c Chain) Counterpart() Chain {
	switch c {
	case Realis:
		return BSC
	case BSC:
		return Realis
	}
	return ChainUnknown
}

func ParseChain(s string) (Chain, error) {
	switch strings.ToLower(s) {
	case "realis":
		return Realis, nil
	case "bsc":
		return BSC, nil
	}
	return ChainUnknown, fmt.Errorf("unknown chain %q", s)
}

func (c Chain) MarshalText() ([]byte, error) {
	if c != Realis && c != BSC {
		return nil, fmt.Errorf("cannot marshal chain %d", c)
	}
	return []byte(c.String()), nil
}

func (c *Chain) UnmarshalText(text []byte) error {
	parsed, err := ParseChain(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Status of a journaled event. The ordinals are persisted, never reorder them.
type Status uint8

const (
	StatusGot        Status = 0 // decoded by a listener, not yet picked by a sender
	StatusInProgress Status = 1 // accepted by the sender, counter-chain tx being submitted
	StatusSuccess    Status = 2 // counter-chain tx included
	StatusError      Status = 3 // submission or confirmation failed
)

var statusNames = map[Status]string{
	StatusGot:        "got",
	StatusInProgress: "in_progress",
	StatusSuccess:    "success",
	StatusError:      "error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

func ParseStatus(s string) (Status, error) {
	for status, name := range statusNames {
		if name == s {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// EventKind is persisted in the journal type column.
type EventKind uint8

const (
	EventKindToken EventKind = 1
	EventKindNft   EventKind = 2
)

func (k EventKind) String() string {
	switch k {
	case EventKindToken:
		return "token"
	case EventKindNft:
		return "nft"
	}
	return "unknown"
}

// JournalRecord is one persisted bridge event keyed by (Chain, Hash).
type JournalRecord struct {
	Chain     Chain
	Hash      string
	Block     *uint64
	From      string
	To        string
	Value     []byte // JSON envelope of the decoded event
	Kind      EventKind
	Status    Status
	UpdatedAt time.Time
}

// Event rebuilds the decoded event stored in the record.
func (r JournalRecord) Event() (CrossChainEvent, error) {
	return UnmarshalEvent(r.Value)
}

// NewJournalRecord builds the Got record for a freshly decoded event.
func NewJournalRecord(ev CrossChainEvent, now time.Time) (JournalRecord, error) {
	value, err := MarshalEvent(ev)
	if err != nil {
		return JournalRecord{}, err
	}
	meta := ev.Meta()
	return JournalRecord{
		Chain:     meta.Chain,
		Hash:      meta.TxHash,
		Block:     meta.BlockHeight,
		From:      meta.From.Address,
		To:        meta.To.Address,
		Value:     value,
		Kind:      ev.Kind(),
		Status:    StatusGot,
		UpdatedAt: now,
	}, nil
}

// UndecodedEvent is a bridge-relevant payload the decoder rejected.
type UndecodedEvent struct {
	Chain Chain
	Block uint64
	Hash  string
	Data  []byte
}
