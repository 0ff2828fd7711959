package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// MaxAmountBits is the width of the canonical token amount.
const MaxAmountBits = 128

var (
	ErrAmountOverflow = errors.New("amount does not fit in 128 bits")
	ErrNotDecimal     = errors.New("not a base-10 unsigned integer")
	ErrValueOverflow  = errors.New("value does not fit in 256 bits")
)

// Amount is an unsigned 128-bit token amount, independent of either chain's
// native numeric width.
type Amount struct {
	v uint256.Int
}

func ParseAmount(s string) (Amount, error) {
	v, err := parseDecimal(s)
	if err != nil {
		return Amount{}, err
	}
	if v.BitLen() > MaxAmountBits {
		return Amount{}, ErrAmountOverflow
	}
	return Amount{v: *v}, nil
}

func AmountFromUint64(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

func (a Amount) String() string {
	return a.v.Dec()
}

// ToBig converts to a big.Int for chain clients.
func (a Amount) ToBig() *big.Int {
	return a.v.ToBig()
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// TokenID identifies an NFT. Full 256-bit range.
type TokenID struct {
	v uint256.Int
}

func ParseTokenID(s string) (TokenID, error) {
	v, err := parseDecimal(s)
	if err != nil {
		return TokenID{}, err
	}
	return TokenID{v: *v}, nil
}

func TokenIDFromUint64(n uint64) TokenID {
	var id TokenID
	id.v.SetUint64(n)
	return id
}

func (t TokenID) String() string {
	return t.v.Dec()
}

func (t TokenID) ToBig() *big.Int {
	return t.v.ToBig()
}

func (t TokenID) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TokenID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTokenID(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// parseDecimal accepts digits only: no sign, no hex prefix, no whitespace.
func parseDecimal(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, ErrNotDecimal
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, ErrNotDecimal
		}
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValueOverflow, err)
	}
	return v, nil
}
