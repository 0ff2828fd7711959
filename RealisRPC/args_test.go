package RealisRPC

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	gstypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorealisbridge/decoder"
	"gorealisbridge/types"
)

const (
	alice    = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	alicePub = "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"
	bscAcc   = "0x6D1eee1CFeEAb71A4d7Fcc73f0EF67A9CA2cD943"
)

func encode(t *testing.T, values ...interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := scale.NewEncoder(&buf)
	for _, v := range values {
		require.NoError(t, enc.Encode(v))
	}
	return buf.Bytes()
}

func alicePubKey(t *testing.T) [32]byte {
	t.Helper()
	var pub [32]byte
	b, err := hex.DecodeString(alicePub)
	require.NoError(t, err)
	copy(pub[:], b)
	return pub
}

func bscH160() gstypes.H160 {
	return gstypes.NewH160(common.HexToAddress(bscAcc).Bytes())
}

func TestParamsFromArgs(t *testing.T) {
	pub := alicePubKey(t)

	cases := []struct {
		name   string
		method string
		args   []byte
		signer string
		want   []string
	}{
		{
			name:   "token to bsc",
			method: decoder.RealisTransferTokenToBSC,
			args:   encode(t, bscH160(), gstypes.NewU128(*big.NewInt(1_000_000_000_000))),
			signer: alice,
			want:   []string{bscAcc, "1000000000000", alice},
		},
		{
			name:   "nft to bsc",
			method: decoder.RealisTransferNftToBSC,
			args:   encode(t, bscH160(), gstypes.NewU256(*big.NewInt(77)), gstypes.NewU8(2)),
			signer: alice,
			want:   []string{alice, bscAcc, "77", "2"},
		},
		{
			name:   "token to realis",
			method: decoder.RealisTransferTokenToRealis,
			args:   encode(t, bscH160(), pub, gstypes.NewU128(*big.NewInt(5))),
			want:   []string{alice, "5", bscAcc},
		},
		{
			name:   "nft to realis",
			method: decoder.RealisTransferNftToRealis,
			args:   encode(t, bscH160(), pub, gstypes.NewU256(*big.NewInt(9)), gstypes.NewU8(0)),
			want:   []string{bscAcc, alice, "9", "0"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params, err := paramsFromArgs(tc.method, tc.args, tc.signer, types.DefaultSS58Prefix)
			require.NoError(t, err)
			assert.Equal(t, tc.want, params)

			// the params must satisfy the decoder as-is
			_, err = decoder.Realis(types.RawEvent{Chain: types.Realis, TxHash: "0x01", Method: tc.method, Params: params})
			assert.NoError(t, err)
		})
	}
}

func TestParamsFromArgsErrors(t *testing.T) {
	_, err := paramsFromArgs(decoder.RealisTransferTokenToBSC, encode(t, bscH160()), alice, types.DefaultSS58Prefix)
	assert.Error(t, err, "truncated arguments")

	_, err = paramsFromArgs(decoder.RealisTransferTokenToBSC, encode(t, bscH160(), gstypes.NewU128(*big.NewInt(1))), "", types.DefaultSS58Prefix)
	assert.Error(t, err, "unsigned observed call")

	_, err = paramsFromArgs("set_code", nil, alice, types.DefaultSS58Prefix)
	assert.Error(t, err)
}

func TestSignerPublicKey(t *testing.T) {
	pub := alicePubKey(t)

	got, err := signerPublicKey(append([]byte{0}, pub[:]...))
	require.NoError(t, err)
	assert.Equal(t, pub[:], got)

	_, err = signerPublicKey(append([]byte{1}, pub[:]...))
	assert.Error(t, err, "index variant")
	_, err = signerPublicKey([]byte{0, 1, 2})
	assert.Error(t, err)
}

func TestCallArgsRoundTrip(t *testing.T) {
	height := uint64(3)
	observed := types.TokenTransferObserved{
		EventMeta: types.EventMeta{
			Chain:       types.BSC,
			BlockHeight: &height,
			TxHash:      "0xabc",
			From:        types.Account{Chain: types.BSC, Address: bscAcc},
			To:          types.Account{Chain: types.Realis, Address: alice},
		},
		Amount: types.AmountFromUint64(42),
	}

	name, args, err := callArgs(observed)
	require.NoError(t, err)
	assert.Equal(t, decoder.RealisTransferTokenToRealis, name)

	// what the executor submits is what the listener reads back
	params, err := paramsFromArgs(name, encode(t, args...), "", types.DefaultSS58Prefix)
	require.NoError(t, err)
	assert.Equal(t, []string{alice, "42", bscAcc}, params)
}

func TestConfirmCallArgs(t *testing.T) {
	confirmed := types.NftTransferConfirmed{
		EventMeta: types.EventMeta{
			Chain:  types.BSC,
			TxHash: "0xdef",
			From:   types.Account{Chain: types.Realis, Address: alice},
			To:     types.Account{Chain: types.BSC, Address: bscAcc},
		},
		TokenID:   types.TokenIDFromUint64(11),
		TokenType: 4,
	}

	name, args, err := callArgs(confirmed)
	require.NoError(t, err)
	assert.Equal(t, callConfirmNftToBSC, name)

	want := encode(t, alicePubKey(t), bscH160(), gstypes.NewU256(*big.NewInt(11)), gstypes.NewU8(4))
	assert.Equal(t, want, encode(t, args...))
}
