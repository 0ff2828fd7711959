package RealisRPC

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	gstypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/ethereum/go-ethereum/common"

	"gorealisbridge/decoder"
	"gorealisbridge/types"
)

// Calls the bridge submits on Realis for transfers and confirmations
// coming from BSC.
const (
	callConfirmTokenToBSC = "confirm_token_to_bsc"
	callConfirmNftToBSC   = "confirm_nft_to_bsc"
)

// watchedCalls are the pallet calls the listener turns into raw events.
var watchedCalls = []string{
	decoder.RealisTransferTokenToBSC,
	decoder.RealisTransferNftToBSC,
	decoder.RealisTransferTokenToRealis,
	decoder.RealisTransferNftToRealis,
}

// paramsFromArgs unpacks the SCALE encoded call arguments into the
// positional string params the decoder expects. signer is the SS58
// address of the extrinsic signer and is empty for unsigned extrinsics.
//
//	transfer_token_to_bsc(to: H160, amount: u128)                      -> [to, amount, signer]
//	transfer_nft_to_bsc(to: H160, token_id: U256, token_type: u8)       -> [signer, to, token_id, token_type]
//	transfer_token_to_realis(from: H160, to: AccountId, amount: u128)   -> [to, amount, from]
//	transfer_nft_to_realis(from: H160, to: AccountId, id: U256, t: u8)  -> [from, to, id, t]
func paramsFromArgs(method string, args []byte, signer string, prefix uint16) ([]string, error) {
	dec := scale.NewDecoder(bytes.NewReader(args))

	switch method {
	case decoder.RealisTransferTokenToBSC:
		if signer == "" {
			return nil, fmt.Errorf("%s is not signed", method)
		}
		var to gstypes.H160
		var amount gstypes.U128
		if err := decodeAll(dec, &to, &amount); err != nil {
			return nil, err
		}
		return []string{h160Hex(to), amount.String(), signer}, nil

	case decoder.RealisTransferNftToBSC:
		if signer == "" {
			return nil, fmt.Errorf("%s is not signed", method)
		}
		var to gstypes.H160
		var id gstypes.U256
		var tokenType gstypes.U8
		if err := decodeAll(dec, &to, &id, &tokenType); err != nil {
			return nil, err
		}
		return []string{signer, h160Hex(to), id.String(), strconv.Itoa(int(tokenType))}, nil

	case decoder.RealisTransferTokenToRealis:
		var from gstypes.H160
		var to [32]byte
		var amount gstypes.U128
		if err := decodeAll(dec, &from, &to, &amount); err != nil {
			return nil, err
		}
		receiver, err := types.EncodeSS58(to[:], prefix)
		if err != nil {
			return nil, err
		}
		return []string{receiver, amount.String(), h160Hex(from)}, nil

	case decoder.RealisTransferNftToRealis:
		var from gstypes.H160
		var to [32]byte
		var id gstypes.U256
		var tokenType gstypes.U8
		if err := decodeAll(dec, &from, &to, &id, &tokenType); err != nil {
			return nil, err
		}
		receiver, err := types.EncodeSS58(to[:], prefix)
		if err != nil {
			return nil, err
		}
		return []string{h160Hex(from), receiver, id.String(), strconv.Itoa(int(tokenType))}, nil
	}

	return nil, fmt.Errorf("no argument layout for %s", method)
}

func decodeAll(dec *scale.Decoder, targets ...interface{}) error {
	for i, target := range targets {
		if err := dec.Decode(target); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return nil
}

func h160Hex(h gstypes.H160) string {
	return common.BytesToAddress(h[:]).Hex()
}

// signerPublicKey extracts the account id from a SCALE encoded
// MultiAddress. Only the Id variant (tag 0) carries a plain public key.
func signerPublicKey(encoded []byte) ([]byte, error) {
	if len(encoded) != 33 || encoded[0] != 0 {
		return nil, fmt.Errorf("signer is not a plain account id")
	}
	return encoded[1:], nil
}

// callArgs builds the arguments of the Realis call that executes ev.
// It returns the call name within the pallet.
func callArgs(ev types.CrossChainEvent) (string, []interface{}, error) {
	meta := ev.Meta()
	switch e := ev.(type) {
	case types.TokenTransferObserved:
		from, to, err := bscToRealis(meta)
		if err != nil {
			return "", nil, err
		}
		return decoder.RealisTransferTokenToRealis, []interface{}{from, to, gstypes.NewU128(*e.Amount.ToBig())}, nil

	case types.NftTransferObserved:
		from, to, err := bscToRealis(meta)
		if err != nil {
			return "", nil, err
		}
		return decoder.RealisTransferNftToRealis, []interface{}{from, to, gstypes.NewU256(*e.TokenID.ToBig()), gstypes.NewU8(e.TokenType)}, nil

	case types.TokenTransferConfirmed:
		from, to, err := realisToBSC(meta)
		if err != nil {
			return "", nil, err
		}
		return callConfirmTokenToBSC, []interface{}{from, to, gstypes.NewU128(*e.Amount.ToBig())}, nil

	case types.NftTransferConfirmed:
		from, to, err := realisToBSC(meta)
		if err != nil {
			return "", nil, err
		}
		return callConfirmNftToBSC, []interface{}{from, to, gstypes.NewU256(*e.TokenID.ToBig()), gstypes.NewU8(e.TokenType)}, nil
	}
	return "", nil, &types.UnknownEventError{Event: ev}
}

func bscToRealis(meta types.EventMeta) (gstypes.H160, [32]byte, error) {
	var to [32]byte
	pub, err := meta.To.PublicKey()
	if err != nil {
		return gstypes.H160{}, to, err
	}
	copy(to[:], pub)
	return gstypes.NewH160(common.HexToAddress(meta.From.Address).Bytes()), to, nil
}

func realisToBSC(meta types.EventMeta) ([32]byte, gstypes.H160, error) {
	var from [32]byte
	pub, err := meta.From.PublicKey()
	if err != nil {
		return from, gstypes.H160{}, err
	}
	copy(from[:], pub)
	return from, gstypes.NewH160(common.HexToAddress(meta.To.Address).Bytes()), nil
}
