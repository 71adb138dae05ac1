package sum

import (
	"testing"

	"github.com/luxfi/dap-aggregator/vdaf"
	"github.com/stretchr/testify/require"
)

func share(v uint64) []byte {
	s := Share{Total: v}
	return s.Encode()
}

func TestPrepRoundTrip(t *testing.T) {
	var v Vdaf

	leaderState, leaderOut, err := v.PrepInit(nil, nil, nil, nil, share(7))
	require.NoError(t, err)
	helperState, helperOut, err := v.PrepInit(nil, nil, nil, nil, share(35))
	require.NoError(t, err)

	combined, err := v.Combine(leaderOut, helperOut)
	require.NoError(t, err)

	_, _, done, out, err := v.PrepNext(leaderState, combined)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, Share{Total: 7}, out)

	_, _, done, out, err = v.PrepNext(helperState, combined)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, Share{Total: 35}, out)
}

func TestPrepInitRejectsBadShareSize(t *testing.T) {
	var v Vdaf
	_, _, err := v.PrepInit(nil, nil, nil, nil, []byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInputShareSize)
}

func TestPrepNextRejectsBadPeerMsgSize(t *testing.T) {
	var v Vdaf
	state, _, err := v.PrepInit(nil, nil, nil, nil, share(1))
	require.NoError(t, err)
	_, _, _, _, err = v.PrepNext(state, []byte{1})
	require.ErrorIs(t, err, vdaf.ErrPrep)
}

func TestMerge(t *testing.T) {
	a := Share{Total: 3}
	b, err := a.Merge(Share{Total: 4})
	require.NoError(t, err)
	require.Equal(t, Share{Total: 7}, b)
	require.False(t, b.(Share).IsEmpty())
}

func TestMergeTypeMismatch(t *testing.T) {
	a := Share{Total: 1}
	_, err := a.Merge(fakeShare{})
	require.Error(t, err)
}

type fakeShare struct{}

func (fakeShare) Merge(vdaf.Share) (vdaf.Share, error) { return nil, nil }
func (fakeShare) IsEmpty() bool                        { return true }
func (fakeShare) Encode() []byte                        { return nil }

func TestDecodeRoundTrip(t *testing.T) {
	s := Share{Total: 99}
	decoded, err := Decode(s.Encode())
	require.NoError(t, err)
	require.Equal(t, s, decoded)
}

func TestDecodeBadLength(t *testing.T) {
	_, err := Decode([]byte{1, 2})
	require.ErrorIs(t, err, ErrInputShareSize)
}

func TestIsSingleRound(t *testing.T) {
	var v Vdaf
	require.True(t, v.IsSingleRound())
}
