package types

import (
	"bytes"
	"errors"
	"fmt"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// DefaultSS58Prefix is the generic substrate network prefix.
const DefaultSS58Prefix uint16 = 42

var ss58Preimage = []byte("SS58PRE")

var ErrInvalidSS58 = errors.New("invalid ss58 address")

// Account is an address tagged with the chain it belongs to.
type Account struct {
	Chain   Chain  `json:"chain"`
	Address string `json:"address"`
}

func (a Account) String() string {
	return a.Address
}

// NewAccount validates addr against the address format of chain.
func NewAccount(chain Chain, addr string) (Account, error) {
	switch chain {
	case Realis:
		return NewRealisAccount(addr)
	case BSC:
		return NewBSCAccount(addr)
	}
	return Account{}, fmt.Errorf("no address format for chain %s", chain)
}

func NewRealisAccount(addr string) (Account, error) {
	if _, _, err := DecodeSS58(addr); err != nil {
		return Account{}, err
	}
	return Account{Chain: Realis, Address: addr}, nil
}

// NewBSCAccount accepts any hex casing and stores the checksummed form.
func NewBSCAccount(addr string) (Account, error) {
	if !common.IsHexAddress(addr) {
		return Account{}, fmt.Errorf("invalid evm address %q", addr)
	}
	checksummed := common.HexToAddress(addr).Hex()
	if err := ethav.Validate(checksummed); err != nil {
		return Account{}, fmt.Errorf("invalid evm address %q: %w", addr, err)
	}
	return Account{Chain: BSC, Address: checksummed}, nil
}

// PublicKey returns the raw key bytes: 32 for Realis, 20 for BSC.
func (a Account) PublicKey() ([]byte, error) {
	switch a.Chain {
	case Realis:
		_, pub, err := DecodeSS58(a.Address)
		return pub, err
	case BSC:
		return common.HexToAddress(a.Address).Bytes(), nil
	}
	return nil, fmt.Errorf("no key format for chain %s", a.Chain)
}

// EncodeSS58 encodes a 32-byte public key with the given network prefix.
func EncodeSS58(pub []byte, prefix uint16) (string, error) {
	if len(pub) != 32 {
		return "", fmt.Errorf("%w: public key must be 32 bytes, got %d", ErrInvalidSS58, len(pub))
	}
	var payload []byte
	switch {
	case prefix < 64:
		payload = []byte{byte(prefix)}
	case prefix < 16384:
		first := byte((prefix&0x00fc)>>2) | 0x40
		second := byte(prefix>>8) | byte((prefix&0x0003)<<6)
		payload = []byte{first, second}
	default:
		return "", fmt.Errorf("%w: prefix %d out of range", ErrInvalidSS58, prefix)
	}
	payload = append(payload, pub...)
	sum := ss58Checksum(payload)
	return base58.Encode(append(payload, sum[:2]...)), nil
}

// DecodeSS58 returns the network prefix and the 32-byte public key.
func DecodeSS58(addr string) (uint16, []byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidSS58, err)
	}

	var prefixLen int
	var prefix uint16
	switch len(raw) {
	case 35:
		prefixLen = 1
		prefix = uint16(raw[0])
		if prefix >= 64 {
			return 0, nil, fmt.Errorf("%w: bad prefix byte", ErrInvalidSS58)
		}
	case 36:
		prefixLen = 2
		lower := (raw[0] << 2) | (raw[1] >> 6)
		upper := raw[1] & 0x3f
		prefix = uint16(lower) | uint16(upper)<<8
	default:
		return 0, nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidSS58, len(raw))
	}

	body := raw[:len(raw)-2]
	sum := ss58Checksum(body)
	if !bytes.Equal(sum[:2], raw[len(raw)-2:]) {
		return 0, nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidSS58)
	}
	return prefix, body[prefixLen:], nil
}

func ss58Checksum(payload []byte) [64]byte {
	return blake2b.Sum512(append(append([]byte{}, ss58Preimage...), payload...))
}
