package EVMRPC

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"gorealisbridge/decoder"
	"gorealisbridge/types"
)

// bridge contract methods called by the executor
const (
	methodTransferFromRealis      = "transferFromRealis"
	methodMintNftFromRealis       = "mintNftFromRealis"
	methodConfirmTransferToRealis = "confirmTransferToRealis"
	methodConfirmNftToRealis      = "confirmNftToRealis"
)

// BridgeABIJSON is the part of the bridge contract ABI the relay uses.
// Event arguments are not indexed; everything is in the log data.
const BridgeABIJSON = `[
	{"type":"event","name":"TransferToRealis","anonymous":false,"inputs":[
		{"name":"from","type":"address","indexed":false},
		{"name":"to","type":"string","indexed":false},
		{"name":"value","type":"uint256","indexed":false}]},
	{"type":"event","name":"TransferNftToRealis","anonymous":false,"inputs":[
		{"name":"from","type":"address","indexed":false},
		{"name":"to","type":"string","indexed":false},
		{"name":"tokenId","type":"uint256","indexed":false},
		{"name":"tokenType","type":"uint8","indexed":false}]},
	{"type":"event","name":"TransferFromRealis","anonymous":false,"inputs":[
		{"name":"from","type":"string","indexed":false},
		{"name":"to","type":"address","indexed":false},
		{"name":"value","type":"uint256","indexed":false}]},
	{"type":"event","name":"MintNftFromRealis","anonymous":false,"inputs":[
		{"name":"from","type":"string","indexed":false},
		{"name":"to","type":"address","indexed":false},
		{"name":"tokenId","type":"uint256","indexed":false},
		{"name":"tokenType","type":"uint8","indexed":false}]},
	{"type":"function","name":"transferFromRealis","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"from","type":"string"}]},
	{"type":"function","name":"mintNftFromRealis","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"from","type":"string"},
		{"name":"to","type":"address"},
		{"name":"tokenId","type":"uint256"},
		{"name":"tokenType","type":"uint8"}]},
	{"type":"function","name":"confirmTransferToRealis","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"from","type":"address"},
		{"name":"to","type":"string"},
		{"name":"value","type":"uint256"}]},
	{"type":"function","name":"confirmNftToRealis","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"from","type":"address"},
		{"name":"to","type":"string"},
		{"name":"tokenId","type":"uint256"},
		{"name":"tokenType","type":"uint8"}]}
]`

var BridgeABI abi.ABI

func init() {
	var err error
	BridgeABI, err = abi.JSON(strings.NewReader(BridgeABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid bridge ABI: %v", err))
	}
}

var watchedEvents = map[string]bool{
	decoder.BSCTransferToRealis:    true,
	decoder.BSCTransferNftToRealis: true,
	decoder.BSCTransferFromRealis:  true,
	decoder.BSCMintNftFromRealis:   true,
}

// paramsFromValues orders unpacked event arguments the way the decoder
// expects them.
//
//	TransferToRealis(from, to, value)                -> [to, value, from]
//	TransferNftToRealis(from, to, tokenId, type)     -> [from, to, tokenId, type]
//	TransferFromRealis(from, to, value)              -> [to, value, from]
//	MintNftFromRealis(from, to, tokenId, type)       -> [from, to, tokenId, type]
func paramsFromValues(event string, values []interface{}) ([]string, error) {
	strs := make([]string, len(values))
	for i, v := range values {
		s, err := valueString(v)
		if err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", event, i, err)
		}
		strs[i] = s
	}

	switch event {
	case decoder.BSCTransferToRealis, decoder.BSCTransferFromRealis:
		if len(strs) != 3 {
			return nil, fmt.Errorf("%s has %d arguments, want 3", event, len(strs))
		}
		return []string{strs[1], strs[2], strs[0]}, nil
	case decoder.BSCTransferNftToRealis, decoder.BSCMintNftFromRealis:
		return strs, nil
	}
	return nil, fmt.Errorf("no argument layout for %s", event)
}

func valueString(v interface{}) (string, error) {
	switch x := v.(type) {
	case common.Address:
		return x.Hex(), nil
	case string:
		return x, nil
	case *big.Int:
		return x.String(), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	}
	return "", fmt.Errorf("unexpected argument type %T", v)
}

// callArgs maps ev to the contract method that executes it on BSC.
func callArgs(ev types.CrossChainEvent) (string, []interface{}, error) {
	meta := ev.Meta()
	switch e := ev.(type) {
	case types.TokenTransferObserved:
		return methodTransferFromRealis, []interface{}{
			common.HexToAddress(meta.To.Address), e.Amount.ToBig(), meta.From.Address,
		}, nil
	case types.NftTransferObserved:
		return methodMintNftFromRealis, []interface{}{
			meta.From.Address, common.HexToAddress(meta.To.Address), e.TokenID.ToBig(), e.TokenType,
		}, nil
	case types.TokenTransferConfirmed:
		return methodConfirmTransferToRealis, []interface{}{
			common.HexToAddress(meta.From.Address), meta.To.Address, e.Amount.ToBig(),
		}, nil
	case types.NftTransferConfirmed:
		return methodConfirmNftToRealis, []interface{}{
			common.HexToAddress(meta.From.Address), meta.To.Address, e.TokenID.ToBig(), e.TokenType,
		}, nil
	}
	return "", nil, &types.UnknownEventError{Event: ev}
}
